package models

import (
	"fmt"
)

// Segment - единица озвученного текста истории.
type Segment struct {
	Text     string `json:"text"`
	Emotion  string `json:"emotion"`
	AudioURL string `json:"audio_url,omitempty"`
}

// CheckpointSegment - сегмент в контрольной точке с абсолютным индексом.
type CheckpointSegment struct {
	Segment
	CheckpointIndex int `json:"checkpoint_index"`
}

// TransitionSegment - сегмент-переход между двумя контрольными точками.
// Прикрепляется к варианту выбора как превью.
type TransitionSegment struct {
	Segment
	FromCheckpoint int `json:"from_checkpoint"`
	ToCheckpoint   int `json:"to_checkpoint"`
}

// ChoiceID - идентификатор варианта выбора, всегда "A" или "B".
type ChoiceID string

const (
	ChoiceA ChoiceID = "A"
	ChoiceB ChoiceID = "B"
)

// Valid сообщает, входит ли идентификатор в двухэлементный набор.
func (id ChoiceID) Valid() bool {
	return id == ChoiceA || id == ChoiceB
}

// ChoiceOption - одна из двух веток в контрольной точке.
type ChoiceOption struct {
	ID         ChoiceID          `json:"id"`
	Label      string            `json:"label"`
	Transition TransitionSegment `json:"transition"`
}

// ValidateOptions проверяет, что набор вариантов пуст (ветки еще генерируются)
// либо содержит ровно два варианта с разными идентификаторами A и B.
func ValidateOptions(options []ChoiceOption) error {
	switch len(options) {
	case 0:
		return nil
	case 2:
	default:
		return fmt.Errorf("expected 0 or 2 choice options, got %d", len(options))
	}
	seen := make(map[ChoiceID]bool, 2)
	for _, opt := range options {
		if !opt.ID.Valid() {
			return fmt.Errorf("unknown choice option id %q", opt.ID)
		}
		if seen[opt.ID] {
			return fmt.Errorf("duplicate choice option id %q", opt.ID)
		}
		if opt.Label == "" {
			return fmt.Errorf("choice option %q has empty label", opt.ID)
		}
		seen[opt.ID] = true
	}
	return nil
}

// Settings - параметры истории.
type Settings struct {
	Duration    Duration `json:"duration"`
	Interactive bool     `json:"interactive"`
	AgeGroup    AgeGroup `json:"age_group"`
}

// StartRequest - строго типизированный запрос на старт истории.
// Создается один раз на границе формы.
type StartRequest struct {
	Child       Child      `json:"child"`
	Duration    Duration   `json:"duration"`
	Interactive bool       `json:"interactive"`
	MoralFocus  MoralFocus `json:"moral_focus"`
}

// Settings возвращает настройки сессии, выводимые из запроса.
func (r StartRequest) Settings() Settings {
	return Settings{
		Duration:    r.Duration,
		Interactive: r.Interactive,
		AgeGroup:    r.Child.AgeGroup,
	}
}

// Validate проверяет поля запроса, которые не покрываются тегами Child.
func (r StartRequest) Validate() error {
	if err := r.Child.Check(); err != nil {
		return err
	}
	if !r.Duration.Valid() {
		return fmt.Errorf("%w: unsupported duration %d", ErrInvalidInput, r.Duration)
	}
	if !r.MoralFocus.Valid() {
		return fmt.Errorf("%w: unknown moral focus %q", ErrInvalidInput, r.MoralFocus)
	}
	return nil
}

// ContinueRequest - запрос на продолжение истории выбранной веткой.
type ContinueRequest struct {
	SessionID       string   `json:"session_id"`
	CheckpointIndex int      `json:"checkpoint_index"`
	ChoiceID        ChoiceID `json:"choice_id"`
}
