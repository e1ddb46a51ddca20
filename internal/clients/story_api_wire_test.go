package clients_test

import (
	"errors"
	"testing"

	"story-player/internal/clients"
	"story-player/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startInteractiveV2Body = `{
	"session_id": "sess-42",
	"current_segment": {"checkpoint_index": 0, "text": "Maya looked at the stars.", "emotion": "wonder", "audio_url": "https://cdn/0.mp3"},
	"next_options": [
		{"id": "A", "label": "Build a rocket", "transition": {"from_checkpoint": 0, "to_checkpoint": 1, "text": "She grabbed her crayons.", "emotion": "excited"}},
		{"id": "B", "label": "Ask a friend", "transition": {"from_checkpoint": 0, "to_checkpoint": 1, "text": "She walked to the new class.", "emotion": "shy"}}
	],
	"remaining_checkpoints": 3
}`

func TestDecodeStartResponse(t *testing.T) {
	t.Run("Interactive v2 with options", func(t *testing.T) {
		res, err := clients.DecodeStartResponse([]byte(startInteractiveV2Body))
		require.NoError(t, err)

		assert.Equal(t, clients.FormatStartInteractiveV2, res.Format)
		assert.Equal(t, "sess-42", res.SessionID)
		require.NotNil(t, res.Interactive)
		assert.Nil(t, res.Linear)
		assert.Equal(t, 0, res.Interactive.CurrentSegment.CheckpointIndex)
		assert.Equal(t, "wonder", res.Interactive.CurrentSegment.Emotion)
		require.Len(t, res.Interactive.NextOptions, 2)
		assert.Equal(t, models.ChoiceA, res.Interactive.NextOptions[0].ID)
		assert.Equal(t, 1, res.Interactive.NextOptions[0].Transition.ToCheckpoint)
		assert.Equal(t, 3, res.Interactive.RemainingCheckpoints)
	})

	t.Run("Interactive v2 still generating", func(t *testing.T) {
		res, err := clients.DecodeStartResponse([]byte(`{"session_id":"s","current_segment":{"checkpoint_index":0,"text":"hi"},"next_options":[],"remaining_checkpoints":2}`))
		require.NoError(t, err)
		assert.Empty(t, res.Interactive.NextOptions)
	})

	t.Run("Linear v2", func(t *testing.T) {
		res, err := clients.DecodeStartResponse([]byte(`{"session_id":"s","segments":[{"checkpoint_index":0,"text":"a"},{"checkpoint_index":1,"text":"b"}]}`))
		require.NoError(t, err)
		assert.Equal(t, clients.FormatStartLinearV2, res.Format)
		require.NotNil(t, res.Linear)
		assert.Len(t, res.Linear.Segments, 2)
	})

	t.Run("Interactive v1 legacy field names", func(t *testing.T) {
		body := `{"session_id":"legacy","segment":{"index":0,"narration":"Long ago","mood":"calm","audio":"a.mp3"},
			"choices":[{"id":"A","text":"Left","preview":{"from":0,"to":1,"narration":"left"}},{"id":"B","text":"Right","preview":{"from":0,"to":1,"narration":"right"}}],
			"checkpoints_left":4}`
		res, err := clients.DecodeStartResponse([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, clients.FormatStartInteractiveV1, res.Format)
		assert.Equal(t, "Long ago", res.Interactive.CurrentSegment.Text)
		assert.Equal(t, "calm", res.Interactive.CurrentSegment.Emotion)
		assert.Equal(t, "a.mp3", res.Interactive.CurrentSegment.AudioURL)
		assert.Equal(t, "Right", res.Interactive.NextOptions[1].Label)
		assert.Equal(t, 4, res.Interactive.RemainingCheckpoints)
	})

	t.Run("Linear v1 uses position as index", func(t *testing.T) {
		res, err := clients.DecodeStartResponse([]byte(`{"session_id":"s","story":{"segments":[{"narration":"one"},{"narration":"two"}]}}`))
		require.NoError(t, err)
		assert.Equal(t, clients.FormatStartLinearV1, res.Format)
		assert.Equal(t, 1, res.Linear.Segments[1].CheckpointIndex)
	})

	errorCases := []struct {
		name string
		body string
		want error
	}{
		{"not json", `<html>`, models.ErrMalformedResponse},
		{"unknown shape", `{"session_id":"s","pages":[]}`, models.ErrUnrecognizedShape},
		{"missing session id", `{"current_segment":{"checkpoint_index":0,"text":"x"},"next_options":[],"remaining_checkpoints":1}`, models.ErrMalformedResponse},
		{"single option", `{"session_id":"s","current_segment":{"checkpoint_index":0,"text":"x"},"next_options":[{"id":"A","label":"a","transition":{"from_checkpoint":0,"to_checkpoint":1}}],"remaining_checkpoints":1}`, models.ErrMalformedResponse},
		{"duplicate ids", `{"session_id":"s","current_segment":{"checkpoint_index":0,"text":"x"},"next_options":[{"id":"A","label":"a","transition":{"from_checkpoint":0,"to_checkpoint":1}},{"id":"A","label":"b","transition":{"from_checkpoint":0,"to_checkpoint":1}}],"remaining_checkpoints":1}`, models.ErrMalformedResponse},
		{"missing remaining", `{"session_id":"s","current_segment":{"checkpoint_index":0,"text":"x"},"next_options":[]}`, models.ErrMalformedResponse},
		{"missing checkpoint index", `{"session_id":"s","current_segment":{"text":"x"},"next_options":[],"remaining_checkpoints":1}`, models.ErrMalformedResponse},
		{"empty linear", `{"session_id":"s","segments":[]}`, models.ErrMalformedResponse},
		{"option without transition", `{"session_id":"s","current_segment":{"checkpoint_index":0,"text":"x"},"next_options":[{"id":"A","label":"a"},{"id":"B","label":"b"}],"remaining_checkpoints":1}`, models.ErrMalformedResponse},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := clients.DecodeStartResponse([]byte(tc.body))
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.True(t, clients.IsShapeError(err))
		})
	}
}

func TestDecodeContinueResponse(t *testing.T) {
	t.Run("Mid v2", func(t *testing.T) {
		body := `{"segment":{"checkpoint_index":1,"text":"Up she went"},"reached_final":false,
			"next_options":[{"id":"A","label":"Moon","transition":{"from_checkpoint":1,"to_checkpoint":2}},{"id":"B","label":"Mars","transition":{"from_checkpoint":1,"to_checkpoint":2}}]}`
		res, err := clients.DecodeContinueResponse([]byte(body))
		require.NoError(t, err)
		assert.False(t, res.Final)
		assert.Equal(t, 1, res.Segment.CheckpointIndex)
		assert.Len(t, res.NextOptions, 2)
	})

	t.Run("Mid v2 without options yet", func(t *testing.T) {
		res, err := clients.DecodeContinueResponse([]byte(`{"segment":{"checkpoint_index":1,"text":"x"},"reached_final":false}`))
		require.NoError(t, err)
		assert.Empty(t, res.NextOptions)
	})

	t.Run("Final v2", func(t *testing.T) {
		res, err := clients.DecodeContinueResponse([]byte(`{"segment":{"checkpoint_index":3,"text":"Home again"},"reached_final":true,"ending":{"reflection":"The end..."}}`))
		require.NoError(t, err)
		assert.True(t, res.Final)
		assert.Equal(t, "The end...", res.Reflection)
		assert.Empty(t, res.NextOptions)
	})

	t.Run("Final v1", func(t *testing.T) {
		res, err := clients.DecodeContinueResponse([]byte(`{"checkpoint_segment":{"index":2,"narration":"Bye"},"is_final":true,"reflection":"Kindness wins"}`))
		require.NoError(t, err)
		assert.Equal(t, clients.FormatContinueV1, res.Format)
		assert.True(t, res.Final)
		assert.Equal(t, "Kindness wins", res.Reflection)
	})

	t.Run("Final without reflection is malformed", func(t *testing.T) {
		_, err := clients.DecodeContinueResponse([]byte(`{"segment":{"checkpoint_index":3,"text":"x"},"reached_final":true}`))
		assert.True(t, errors.Is(err, models.ErrMalformedResponse))
	})

	t.Run("Unknown shape", func(t *testing.T) {
		_, err := clients.DecodeContinueResponse([]byte(`{"text":"x","done":true}`))
		assert.True(t, errors.Is(err, models.ErrUnrecognizedShape))
	})
}

func TestDecodePollResponse(t *testing.T) {
	t.Run("Pending v2", func(t *testing.T) {
		res, err := clients.DecodePollResponse([]byte(`{"ready":false}`))
		require.NoError(t, err)
		assert.False(t, res.Ready)
	})

	t.Run("Ready v2", func(t *testing.T) {
		res, err := clients.DecodePollResponse([]byte(`{"ready":true,"options":[{"id":"A","label":"a","transition":{"from_checkpoint":1,"to_checkpoint":2}},{"id":"B","label":"b","transition":{"from_checkpoint":1,"to_checkpoint":2}}]}`))
		require.NoError(t, err)
		assert.True(t, res.Ready)
		assert.Len(t, res.Options, 2)
	})

	t.Run("Ready v1", func(t *testing.T) {
		res, err := clients.DecodePollResponse([]byte(`{"status":"ready","choices":[{"id":"A","text":"a","preview":{"from":1,"to":2}},{"id":"B","text":"b","preview":{"from":1,"to":2}}]}`))
		require.NoError(t, err)
		assert.Equal(t, clients.FormatPollV1, res.Format)
		assert.Len(t, res.Options, 2)
	})

	t.Run("Ready without options is malformed", func(t *testing.T) {
		_, err := clients.DecodePollResponse([]byte(`{"ready":true,"options":[]}`))
		assert.True(t, errors.Is(err, models.ErrMalformedResponse))
	})

	t.Run("Unknown v1 status", func(t *testing.T) {
		_, err := clients.DecodePollResponse([]byte(`{"status":"exploded"}`))
		assert.True(t, errors.Is(err, models.ErrMalformedResponse))
	})
}
