package clients_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"story-player/internal/clients"
	"story-player/internal/metrics"
	"story-player/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) clients.StoryAPIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := clients.NewStoryAPIClient(srv.URL, 2*time.Second, zap.NewNop())
	require.NoError(t, err)
	return c
}

// metricValue возвращает значение счетчика или число наблюдений гистограммы
// с заданными метками из реестра плеера. Отсутствующая серия дает 0.
func metricValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, l := range m.GetLabel() {
				got[l.GetName()] = l.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue series
				}
			}
			if h := m.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestNewStoryAPIClient_InvalidURL(t *testing.T) {
	_, err := clients.NewStoryAPIClient("not a url", time.Second, nil)
	assert.Error(t, err)
}

func TestStoryAPIClient_StartStory(t *testing.T) {
	req := models.StartRequest{
		Child: models.Child{
			Name:      "Maya",
			Gender:    "female",
			AgeGroup:  models.AgeGroup7to9,
			Interests: []string{"space", "stars", "drawing"},
			Context:   "starting new school",
		},
		Duration:    models.DurationShort,
		Interactive: true,
		MoralFocus:  models.MoralKindness,
	}

	t.Run("Sends typed request and decodes response", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/story/start", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

			var got map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			assert.Equal(t, float64(2), got["duration"])
			assert.Equal(t, true, got["interactive"])
			assert.Equal(t, "kindness", got["moral_focus"])
			child := got["child"].(map[string]any)
			assert.Equal(t, "Maya", child["name"])
			assert.Equal(t, "7-9", child["age_group"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(startInteractiveV2Body))
		})

		res, err := c.StartStory(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "sess-42", res.SessionID)
		assert.Len(t, res.Interactive.NextOptions, 2)
	})

	t.Run("Server error is retryable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
		})

		res, err := c.StartStory(context.Background(), req)
		assert.Nil(t, res)
		var apiErr *clients.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, "model overloaded", apiErr.Message)
		assert.True(t, apiErr.Retryable)
		assert.True(t, errors.Is(err, models.ErrBackendUnavailable))
		assert.Equal(t, "We couldn't start your story. Please try again.", clients.UserMessage(err))
	})

	t.Run("Malformed body is retryable shape error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"session_id":"s","whatever":true}`))
		})
		okBefore := metricValue(t, "story_player_backend_requests_total", map[string]string{"op": clients.OpStartStory, "outcome": "ok"})
		samplesBefore := metricValue(t, "story_player_backend_request_duration_seconds", map[string]string{"op": clients.OpStartStory})
		malformedBefore := metricValue(t, "story_player_backend_malformed_responses_total", map[string]string{"op": clients.OpStartStory})

		_, err := c.StartStory(context.Background(), req)
		assert.True(t, errors.Is(err, models.ErrUnrecognizedShape))
		assert.True(t, clients.IsRetryable(err))

		// Запрос учитывается один раз, неразобранный ответ отдельно
		assert.Equal(t, okBefore+1, metricValue(t, "story_player_backend_requests_total", map[string]string{"op": clients.OpStartStory, "outcome": "ok"}))
		assert.Equal(t, samplesBefore+1, metricValue(t, "story_player_backend_request_duration_seconds", map[string]string{"op": clients.OpStartStory}))
		assert.Equal(t, malformedBefore+1, metricValue(t, "story_player_backend_malformed_responses_total", map[string]string{"op": clients.OpStartStory}))
		assert.Zero(t, metricValue(t, "story_player_backend_requests_total", map[string]string{"op": clients.OpStartStory, "outcome": "malformed"}))
	})

	t.Run("Bad request is not retryable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		_, err := c.StartStory(context.Background(), req)
		assert.False(t, clients.IsRetryable(err))
		assert.Equal(t, "We couldn't start your story.", clients.UserMessage(err))
	})
}

func TestStoryAPIClient_ContinueStory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/story/continue", r.URL.Path)
		var got models.ContinueRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, models.ContinueRequest{SessionID: "sess-42", CheckpointIndex: 0, ChoiceID: models.ChoiceA}, got)
		_, _ = w.Write([]byte(`{"segment":{"checkpoint_index":1,"text":"Up"},"reached_final":true,"ending":{"reflection":"The end..."}}`))
	})

	res, err := c.ContinueStory(context.Background(), models.ContinueRequest{SessionID: "sess-42", CheckpointIndex: 0, ChoiceID: models.ChoiceA})
	require.NoError(t, err)
	assert.True(t, res.Final)
	assert.Equal(t, "The end...", res.Reflection)
}

func TestStoryAPIClient_PollBranches(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/story/sess-42/branches", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("checkpoint"))
		_, _ = w.Write([]byte(`{"ready":false}`))
	})

	res, err := c.PollBranches(context.Background(), "sess-42", 3)
	require.NoError(t, err)
	assert.False(t, res.Ready)
}

func TestStoryAPIClient_HealthCheck(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})
		ok, err := c.HealthCheck(context.Background())
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c, err := clients.NewStoryAPIClient(url, time.Second, nil)
		require.NoError(t, err)
		ok, err := c.HealthCheck(context.Background())
		assert.False(t, ok)
		assert.True(t, errors.Is(err, models.ErrBackendUnavailable))
	})
}
