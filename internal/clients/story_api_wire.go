package clients

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"story-player/internal/models"
)

// Известные форматы ответов бэкенда. Каждый ответ сначала классифицируется
// по ключам-дискриминаторам, затем разбирается строго своим декодером.
// Неизвестная форма - жесткая ошибка, а не молчаливые значения по умолчанию.
const (
	FormatStartInteractiveV2 = "start.v2.interactive"
	FormatStartLinearV2      = "start.v2.linear"
	FormatStartInteractiveV1 = "start.v1.interactive"
	FormatStartLinearV1      = "start.v1.linear"
	FormatContinueV2         = "continue.v2"
	FormatContinueV1         = "continue.v1"
	FormatPollV2             = "poll.v2"
	FormatPollV1             = "poll.v1"
)

// --- Текущий формат (v2) --- //

type wireSegmentV2 struct {
	CheckpointIndex *int   `json:"checkpoint_index"`
	Text            string `json:"text"`
	Emotion         string `json:"emotion"`
	AudioURL        string `json:"audio_url"`
}

type wireTransitionV2 struct {
	FromCheckpoint *int   `json:"from_checkpoint"`
	ToCheckpoint   *int   `json:"to_checkpoint"`
	Text           string `json:"text"`
	Emotion        string `json:"emotion"`
	AudioURL       string `json:"audio_url"`
}

type wireOptionV2 struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Transition *wireTransitionV2 `json:"transition"`
}

type startInteractiveV2 struct {
	SessionID            string         `json:"session_id"`
	CurrentSegment       *wireSegmentV2 `json:"current_segment"`
	NextOptions          []wireOptionV2 `json:"next_options"`
	RemainingCheckpoints *int           `json:"remaining_checkpoints"`
}

type startLinearV2 struct {
	SessionID string          `json:"session_id"`
	Segments  []wireSegmentV2 `json:"segments"`
}

type continueV2 struct {
	Segment      *wireSegmentV2 `json:"segment"`
	NextOptions  []wireOptionV2 `json:"next_options"`
	ReachedFinal *bool          `json:"reached_final"`
	Ending       *struct {
		Reflection string `json:"reflection"`
	} `json:"ending"`
}

type pollV2 struct {
	Ready   *bool          `json:"ready"`
	Options []wireOptionV2 `json:"options"`
}

// --- Устаревший формат (v1): narration/mood/audio, choices/preview --- //

type wireSegmentV1 struct {
	Index     *int   `json:"index"`
	Narration string `json:"narration"`
	Mood      string `json:"mood"`
	Audio     string `json:"audio"`
}

type wirePreviewV1 struct {
	From      *int   `json:"from"`
	To        *int   `json:"to"`
	Narration string `json:"narration"`
	Mood      string `json:"mood"`
	Audio     string `json:"audio"`
}

type wireChoiceV1 struct {
	ID      string         `json:"id"`
	Text    string         `json:"text"`
	Preview *wirePreviewV1 `json:"preview"`
}

type startInteractiveV1 struct {
	SessionID       string         `json:"session_id"`
	Segment         *wireSegmentV1 `json:"segment"`
	Choices         []wireChoiceV1 `json:"choices"`
	CheckpointsLeft *int           `json:"checkpoints_left"`
}

type startLinearV1 struct {
	SessionID string `json:"session_id"`
	Story     *struct {
		Segments []wireSegmentV1 `json:"segments"`
	} `json:"story"`
}

type continueV1 struct {
	CheckpointSegment *wireSegmentV1 `json:"checkpoint_segment"`
	Choices           []wireChoiceV1 `json:"choices"`
	IsFinal           *bool          `json:"is_final"`
	Reflection        string         `json:"reflection"`
}

type pollV1 struct {
	Status  string         `json:"status"`
	Choices []wireChoiceV1 `json:"choices"`
}

// --- Классификация --- //

// topLevelKeys возвращает набор ключей верхнего уровня JSON объекта.
func topLevelKeys(body []byte) (map[string]json.RawMessage, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, fmt.Errorf("%w: body is not a JSON object: %v", models.ErrMalformedResponse, err)
	}
	if keys == nil {
		return nil, fmt.Errorf("%w: body is null", models.ErrMalformedResponse)
	}
	return keys, nil
}

func has(keys map[string]json.RawMessage, names ...string) bool {
	for _, n := range names {
		if _, ok := keys[n]; !ok {
			return false
		}
	}
	return true
}

func keyList(keys map[string]json.RawMessage) string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	return strings.Join(names, ",")
}

// DetectStartFormat определяет формат ответа на старт.
func DetectStartFormat(body []byte) (string, error) {
	keys, err := topLevelKeys(body)
	if err != nil {
		return "", err
	}
	switch {
	case has(keys, "current_segment"):
		return FormatStartInteractiveV2, nil
	case has(keys, "segments"):
		return FormatStartLinearV2, nil
	case has(keys, "segment", "choices"):
		return FormatStartInteractiveV1, nil
	case has(keys, "story"):
		return FormatStartLinearV1, nil
	}
	return "", fmt.Errorf("%w: start response keys [%s]", models.ErrUnrecognizedShape, keyList(keys))
}

// DetectContinueFormat определяет формат ответа на продолжение.
func DetectContinueFormat(body []byte) (string, error) {
	keys, err := topLevelKeys(body)
	if err != nil {
		return "", err
	}
	switch {
	case has(keys, "segment", "reached_final"):
		return FormatContinueV2, nil
	case has(keys, "checkpoint_segment", "is_final"):
		return FormatContinueV1, nil
	}
	return "", fmt.Errorf("%w: continue response keys [%s]", models.ErrUnrecognizedShape, keyList(keys))
}

// DetectPollFormat определяет формат ответа о готовности веток.
func DetectPollFormat(body []byte) (string, error) {
	keys, err := topLevelKeys(body)
	if err != nil {
		return "", err
	}
	switch {
	case has(keys, "ready"):
		return FormatPollV2, nil
	case has(keys, "status"):
		return FormatPollV1, nil
	}
	return "", fmt.Errorf("%w: poll response keys [%s]", models.ErrUnrecognizedShape, keyList(keys))
}

// --- Нормализация --- //

func malformed(format, msg string, args ...any) error {
	return fmt.Errorf("%w (%s): %s", models.ErrMalformedResponse, format, fmt.Sprintf(msg, args...))
}

func strictUnmarshal(format string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return malformed(format, "decode: %v", err)
	}
	return nil
}

func (w *wireSegmentV2) normalize(format string) (models.CheckpointSegment, error) {
	if w == nil {
		return models.CheckpointSegment{}, malformed(format, "segment is missing")
	}
	if w.CheckpointIndex == nil || *w.CheckpointIndex < 0 {
		return models.CheckpointSegment{}, malformed(format, "segment has no valid checkpoint_index")
	}
	if strings.TrimSpace(w.Text) == "" {
		return models.CheckpointSegment{}, malformed(format, "segment %d has empty text", *w.CheckpointIndex)
	}
	return models.CheckpointSegment{
		Segment:         models.Segment{Text: w.Text, Emotion: w.Emotion, AudioURL: w.AudioURL},
		CheckpointIndex: *w.CheckpointIndex,
	}, nil
}

func normalizeOptionsV2(format string, in []wireOptionV2) ([]models.ChoiceOption, error) {
	out := make([]models.ChoiceOption, 0, len(in))
	for _, o := range in {
		if o.Transition == nil || o.Transition.FromCheckpoint == nil || o.Transition.ToCheckpoint == nil {
			return nil, malformed(format, "option %q has no transition", o.ID)
		}
		out = append(out, models.ChoiceOption{
			ID:    models.ChoiceID(o.ID),
			Label: o.Label,
			Transition: models.TransitionSegment{
				Segment:        models.Segment{Text: o.Transition.Text, Emotion: o.Transition.Emotion, AudioURL: o.Transition.AudioURL},
				FromCheckpoint: *o.Transition.FromCheckpoint,
				ToCheckpoint:   *o.Transition.ToCheckpoint,
			},
		})
	}
	if err := models.ValidateOptions(out); err != nil {
		return nil, malformed(format, "%v", err)
	}
	return out, nil
}

func (w *wireSegmentV1) normalize(format string, fallbackIndex int) (models.CheckpointSegment, error) {
	if w == nil {
		return models.CheckpointSegment{}, malformed(format, "segment is missing")
	}
	idx := fallbackIndex
	if w.Index != nil {
		idx = *w.Index
	}
	if idx < 0 {
		return models.CheckpointSegment{}, malformed(format, "segment has no valid index")
	}
	if strings.TrimSpace(w.Narration) == "" {
		return models.CheckpointSegment{}, malformed(format, "segment %d has empty narration", idx)
	}
	return models.CheckpointSegment{
		Segment:         models.Segment{Text: w.Narration, Emotion: w.Mood, AudioURL: w.Audio},
		CheckpointIndex: idx,
	}, nil
}

func normalizeChoicesV1(format string, in []wireChoiceV1) ([]models.ChoiceOption, error) {
	out := make([]models.ChoiceOption, 0, len(in))
	for _, c := range in {
		if c.Preview == nil || c.Preview.From == nil || c.Preview.To == nil {
			return nil, malformed(format, "choice %q has no preview", c.ID)
		}
		out = append(out, models.ChoiceOption{
			ID:    models.ChoiceID(c.ID),
			Label: c.Text,
			Transition: models.TransitionSegment{
				Segment:        models.Segment{Text: c.Preview.Narration, Emotion: c.Preview.Mood, AudioURL: c.Preview.Audio},
				FromCheckpoint: *c.Preview.From,
				ToCheckpoint:   *c.Preview.To,
			},
		})
	}
	if err := models.ValidateOptions(out); err != nil {
		return nil, malformed(format, "%v", err)
	}
	return out, nil
}

// DecodeStartResponse классифицирует и нормализует ответ на старт истории.
func DecodeStartResponse(body []byte) (*models.StartResult, error) {
	format, err := DetectStartFormat(body)
	if err != nil {
		return nil, err
	}
	res := &models.StartResult{Format: format}

	switch format {
	case FormatStartInteractiveV2:
		var w startInteractiveV2
		if err := strictUnmarshal(format, body, &w); err != nil {
			return nil, err
		}
		seg, err := w.CurrentSegment.normalize(format)
		if err != nil {
			return nil, err
		}
		opts, err := normalizeOptionsV2(format, w.NextOptions)
		if err != nil {
			return nil, err
		}
		if w.RemainingCheckpoints == nil {
			return nil, malformed(format, "remaining_checkpoints is missing")
		}
		res.SessionID = w.SessionID
		res.Interactive = &models.InteractiveStart{CurrentSegment: seg, NextOptions: opts, RemainingCheckpoints: *w.RemainingCheckpoints}

	case FormatStartLinearV2:
		var w startLinearV2
		if err := strictUnmarshal(format, body, &w); err != nil {
			return nil, err
		}
		if len(w.Segments) == 0 {
			return nil, malformed(format, "segments list is empty")
		}
		segs := make([]models.CheckpointSegment, 0, len(w.Segments))
		for i := range w.Segments {
			seg, err := w.Segments[i].normalize(format)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		}
		res.SessionID = w.SessionID
		res.Linear = &models.LinearStart{Segments: segs}

	case FormatStartInteractiveV1:
		var w startInteractiveV1
		if err := strictUnmarshal(format, body, &w); err != nil {
			return nil, err
		}
		seg, err := w.Segment.normalize(format, -1)
		if err != nil {
			return nil, err
		}
		opts, err := normalizeChoicesV1(format, w.Choices)
		if err != nil {
			return nil, err
		}
		if w.CheckpointsLeft == nil {
			return nil, malformed(format, "checkpoints_left is missing")
		}
		res.SessionID = w.SessionID
		res.Interactive = &models.InteractiveStart{CurrentSegment: seg, NextOptions: opts, RemainingCheckpoints: *w.CheckpointsLeft}

	case FormatStartLinearV1:
		var w startLinearV1
		if err := strictUnmarshal(format, body, &w); err != nil {
			return nil, err
		}
		if w.Story == nil || len(w.Story.Segments) == 0 {
			return nil, malformed(format, "story.segments is empty")
		}
		// В v1 линейные сегменты могли приходить без index: позиция в списке и есть индекс.
		segs := make([]models.CheckpointSegment, 0, len(w.Story.Segments))
		for i := range w.Story.Segments {
			seg, err := w.Story.Segments[i].normalize(format, i)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		}
		res.SessionID = w.SessionID
		res.Linear = &models.LinearStart{Segments: segs}
	}

	if res.SessionID == "" {
		return nil, malformed(format, "session_id is missing")
	}
	return res, nil
}

// DecodeContinueResponse классифицирует и нормализует ответ на продолжение истории.
func DecodeContinueResponse(body []byte) (*models.ContinueResult, error) {
	format, err := DetectContinueFormat(body)
	if err != nil {
		return nil, err
	}
	res := &models.ContinueResult{Format: format}

	switch format {
	case FormatContinueV2:
		var w continueV2
		if err := strictUnmarshal(format, body, &w); err != nil {
			return nil, err
		}
		if w.ReachedFinal == nil {
			return nil, malformed(format, "reached_final is null")
		}
		if res.Segment, err = w.Segment.normalize(format); err != nil {
			return nil, err
		}
		res.Final = *w.ReachedFinal
		if res.Final {
			if w.Ending == nil || strings.TrimSpace(w.Ending.Reflection) == "" {
				return nil, malformed(format, "final response has no ending.reflection")
			}
			res.Reflection = w.Ending.Reflection
		} else if res.NextOptions, err = normalizeOptionsV2(format, w.NextOptions); err != nil {
			return nil, err
		}

	case FormatContinueV1:
		var w continueV1
		if err := strictUnmarshal(format, body, &w); err != nil {
			return nil, err
		}
		if w.IsFinal == nil {
			return nil, malformed(format, "is_final is null")
		}
		if res.Segment, err = w.CheckpointSegment.normalize(format, -1); err != nil {
			return nil, err
		}
		res.Final = *w.IsFinal
		if res.Final {
			if strings.TrimSpace(w.Reflection) == "" {
				return nil, malformed(format, "final response has no reflection")
			}
			res.Reflection = w.Reflection
		} else if res.NextOptions, err = normalizeChoicesV1(format, w.Choices); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// DecodePollResponse классифицирует и нормализует ответ о готовности веток.
func DecodePollResponse(body []byte) (*models.PollResult, error) {
	format, err := DetectPollFormat(body)
	if err != nil {
		return nil, err
	}
	res := &models.PollResult{Format: format}

	switch format {
	case FormatPollV2:
		var w pollV2
		if err := strictUnmarshal(format, body, &w); err != nil {
			return nil, err
		}
		if w.Ready == nil {
			return nil, malformed(format, "ready is null")
		}
		res.Ready = *w.Ready
		if res.Ready {
			if res.Options, err = normalizeOptionsV2(format, w.Options); err != nil {
				return nil, err
			}
		}

	case FormatPollV1:
		var w pollV1
		if err := strictUnmarshal(format, body, &w); err != nil {
			return nil, err
		}
		switch w.Status {
		case "ready":
			res.Ready = true
			if res.Options, err = normalizeChoicesV1(format, w.Choices); err != nil {
				return nil, err
			}
		case "pending":
		default:
			return nil, malformed(format, "unknown status %q", w.Status)
		}
	}

	if res.Ready && len(res.Options) == 0 {
		return nil, malformed(format, "ready without options")
	}
	return res, nil
}

// IsShapeError сообщает, связана ли ошибка с форматом тела ответа.
func IsShapeError(err error) bool {
	return errors.Is(err, models.ErrMalformedResponse) || errors.Is(err, models.ErrUnrecognizedShape)
}
