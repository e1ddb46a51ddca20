package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	startBody = `{
		"session_id": "cli-1",
		"current_segment": {"checkpoint_index": 0, "text": "Maya found a glowing pebble.", "emotion": "curious"},
		"next_options": [
			{"id": "A", "label": "Keep it", "transition": {"from_checkpoint": 0, "to_checkpoint": 1, "text": "She slipped it into her pocket."}},
			{"id": "B", "label": "Give it away", "transition": {"from_checkpoint": 0, "to_checkpoint": 1, "text": "She handed it to her friend."}}
		],
		"remaining_checkpoints": 1
	}`
	finalBody = `{
		"segment": {"checkpoint_index": 1, "text": "The pebble lit the way home.", "emotion": "happy"},
		"next_options": [],
		"reached_final": true,
		"ending": {"reflection": "Sharing makes the light brighter."}
	}`
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		case "/api/story/start":
			var req map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_, _ = io.WriteString(w, startBody)
		case "/api/story/continue":
			var req map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "cli-1", req["session_id"])
			assert.Equal(t, "B", req["choice_id"])
			_, _ = io.WriteString(w, finalBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStoryctl_FullStory(t *testing.T) {
	backend := newBackend(t)
	common := []string{"--api", backend.URL, "--data-dir", t.TempDir(), "--tab", "t1", "--log-level", "error"}

	out, err := run(t, "", append([]string{"health"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")

	out, err = run(t, "", append([]string{"start", "--name", "Maya", "--interest", "stones", "--moral", "sharing"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "glowing pebble")
	assert.Contains(t, out, "storyctl play --tab t1")

	// Недопустимый ввод не уходит на бэкенд, история продолжается
	out, err = run(t, "C\nB\n", append([]string{"play"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "A) Keep it")
	assert.Contains(t, out, "Please choose one of the offered options.")
	assert.Contains(t, out, "She handed it to her friend.")
	assert.Contains(t, out, "Sharing makes the light brighter.")

	out, err = run(t, "", append([]string{"show"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "> Give it away")
	assert.Contains(t, out, "state: final")

	_, err = run(t, "", append([]string{"reset"}, common...)...)
	require.NoError(t, err)
	_, err = run(t, "", append([]string{"show"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no story in progress")
}

func TestStoryctl_StartValidation(t *testing.T) {
	backend := newBackend(t)
	_, err := run(t, "", "start", "--name", "Maya", "--api", backend.URL, "--data-dir", t.TempDir(), "--log-level", "error")
	require.Error(t, err, "at least one interest is required")
}

func TestStoryctl_PlayStopsOnQuit(t *testing.T) {
	backend := newBackend(t)
	common := []string{"--api", backend.URL, "--data-dir", t.TempDir(), "--log-level", "error"}

	_, err := run(t, "", append([]string{"start", "--name", "Leo", "--interest", "trains"}, common...)...)
	require.NoError(t, err)

	out, err := run(t, "q\n", append([]string{"play"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Progress saved.")
}
