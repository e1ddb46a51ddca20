package models

import (
	"errors"
	"fmt"
	"time"
)

// HistoryEntry - сыгранный сегмент и метка варианта, который к нему привел.
type HistoryEntry struct {
	Segment      CheckpointSegment  `json:"segment"`
	ChosenOption string             `json:"chosen_option,omitempty"` // Пусто для первой записи
	Transition   *TransitionSegment `json:"transition,omitempty"`    // Превью выбранного варианта
}

// InteractiveState - состояние интерактивной истории.
type InteractiveState struct {
	CurrentSegment       CheckpointSegment `json:"current_segment"`
	NextOptions          []ChoiceOption    `json:"next_options"`
	RemainingCheckpoints int               `json:"remaining_checkpoints"`
	History              []HistoryEntry    `json:"history"`
}

// Session - корневой агрегат истории одного пользователя (одной вкладки).
type Session struct {
	SessionID        string              `json:"session_id"`
	Child            *Child              `json:"child"`
	Settings         *Settings           `json:"settings"`
	MoralFocus       MoralFocus          `json:"moral_focus,omitempty"`
	Interactive      *InteractiveState   `json:"interactive_state,omitempty"`
	Segments         []CheckpointSegment `json:"segments,omitempty"` // Неинтерактивная история
	ReachedFinal     bool                `json:"reached_final"`
	EndingReflection string              `json:"ending_reflection,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// InteractiveStart - нормализованный результат старта интерактивной истории.
type InteractiveStart struct {
	CurrentSegment       CheckpointSegment
	NextOptions          []ChoiceOption
	RemainingCheckpoints int
}

// LinearStart - нормализованный результат старта неинтерактивной истории.
type LinearStart struct {
	Segments []CheckpointSegment
}

// StartResult - нормализованный ответ на старт. Заполнено ровно одно из Interactive/Linear.
type StartResult struct {
	Format      string
	SessionID   string
	Interactive *InteractiveStart
	Linear      *LinearStart
}

// ContinueResult - нормализованный ответ на продолжение (промежуточный или финальный).
type ContinueResult struct {
	Format      string
	Segment     CheckpointSegment
	NextOptions []ChoiceOption
	Final       bool
	Reflection  string
}

// PollResult - нормализованный ответ о готовности веток.
type PollResult struct {
	Format  string
	Ready   bool
	Options []ChoiceOption
}

// NewSession собирает сессию из запроса формы и нормализованного ответа бэкенда.
func NewSession(req StartRequest, res *StartResult, now time.Time) (*Session, error) {
	if res == nil || res.SessionID == "" {
		return nil, fmt.Errorf("%w: start result has no session id", ErrMalformedResponse)
	}
	child := req.Child
	settings := req.Settings()
	s := &Session{
		SessionID:  res.SessionID,
		Child:      &child,
		Settings:   &settings,
		MoralFocus: req.MoralFocus,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	switch {
	case req.Interactive && res.Interactive != nil:
		in := res.Interactive
		remaining := in.RemainingCheckpoints
		if remaining < 0 {
			remaining = 0
		}
		s.Interactive = &InteractiveState{
			CurrentSegment:       in.CurrentSegment,
			NextOptions:          append([]ChoiceOption(nil), in.NextOptions...),
			RemainingCheckpoints: remaining,
			History:              []HistoryEntry{{Segment: in.CurrentSegment}},
		}
	case !req.Interactive && res.Linear != nil:
		s.Segments = append([]CheckpointSegment(nil), res.Linear.Segments...)
		s.ReachedFinal = true
	default:
		return nil, fmt.Errorf("%w: interactive=%t does not match response format %q", ErrMalformedResponse, req.Interactive, res.Format)
	}
	return s, nil
}

// Validate проверяет обязательные поля сессии. Используется при загрузке из хранилища.
func (s *Session) Validate() error {
	if s == nil {
		return errors.New("session is nil")
	}
	if s.SessionID == "" {
		return errors.New("missing session_id")
	}
	if s.Child == nil {
		return errors.New("missing child")
	}
	if s.Settings == nil {
		return errors.New("missing settings")
	}
	if s.Settings.Interactive {
		if s.Interactive == nil {
			return errors.New("interactive session has no interactive_state")
		}
		if len(s.Interactive.History) == 0 {
			return errors.New("interactive session has empty history")
		}
		last := s.Interactive.History[len(s.Interactive.History)-1]
		if last.Segment != s.Interactive.CurrentSegment {
			return errors.New("last history entry does not match current segment")
		}
		if s.ReachedFinal && len(s.Interactive.NextOptions) > 0 {
			return errors.New("final session still offers options")
		}
		if len(s.Segments) > 0 {
			return errors.New("interactive session also carries linear segments")
		}
		if err := ValidateOptions(s.Interactive.NextOptions); err != nil {
			return err
		}
		return nil
	}
	if len(s.Segments) == 0 {
		return errors.New("non-interactive session has no segments")
	}
	if s.Interactive != nil {
		return errors.New("non-interactive session also carries interactive_state")
	}
	return nil
}

// IsInteractive сообщает, интерактивна ли сессия.
func (s *Session) IsInteractive() bool {
	return s.Settings != nil && s.Settings.Interactive && s.Interactive != nil
}

// CurrentCheckpoint возвращает индекс текущей контрольной точки.
func (s *Session) CurrentCheckpoint() int {
	if s.Interactive == nil {
		return 0
	}
	return s.Interactive.CurrentSegment.CheckpointIndex
}

// FindOption ищет вариант среди текущих next_options.
func (s *Session) FindOption(id ChoiceID) (ChoiceOption, bool) {
	if s.Interactive == nil {
		return ChoiceOption{}, false
	}
	for _, opt := range s.Interactive.NextOptions {
		if opt.ID == id {
			return opt, true
		}
	}
	return ChoiceOption{}, false
}

// NeedsBranches сообщает, нужно ли опрашивать бэкенд о готовности веток.
func (s *Session) NeedsBranches() bool {
	return s.IsInteractive() && !s.ReachedFinal && len(s.Interactive.NextOptions) == 0
}

// ApplyContinuation применяет ответ на продолжение после выбора варианта chosen.
func (s *Session) ApplyContinuation(chosen ChoiceOption, res *ContinueResult, now time.Time) error {
	if !s.IsInteractive() {
		return ErrNotInteractive
	}
	if s.ReachedFinal {
		return ErrSessionFinal
	}
	if res == nil {
		return fmt.Errorf("%w: empty continue result", ErrMalformedResponse)
	}
	if !res.Final {
		if err := ValidateOptions(res.NextOptions); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	st := s.Interactive
	transition := chosen.Transition
	st.History = append(st.History, HistoryEntry{
		Segment:      res.Segment,
		ChosenOption: chosen.Label,
		Transition:   &transition,
	})
	st.CurrentSegment = res.Segment
	if st.RemainingCheckpoints > 0 {
		st.RemainingCheckpoints--
	}

	if res.Final {
		s.ReachedFinal = true
		s.EndingReflection = res.Reflection
		st.NextOptions = []ChoiceOption{}
		st.RemainingCheckpoints = 0
	} else {
		st.NextOptions = append([]ChoiceOption{}, res.NextOptions...)
	}
	s.UpdatedAt = now
	return nil
}

// ApplyBranches подставляет готовые варианты для контрольной точки checkpoint.
// Возвращает false, если результат устарел и был отброшен.
func (s *Session) ApplyBranches(checkpoint int, options []ChoiceOption, now time.Time) (bool, error) {
	if !s.IsInteractive() || s.ReachedFinal {
		return false, nil
	}
	if s.CurrentCheckpoint() != checkpoint || len(s.Interactive.NextOptions) > 0 {
		return false, nil
	}
	if len(options) == 0 {
		return false, nil
	}
	if err := ValidateOptions(options); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	s.Interactive.NextOptions = append([]ChoiceOption{}, options...)
	s.UpdatedAt = now
	return true, nil
}

// Clone возвращает глубокую копию сессии.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Child != nil {
		child := *s.Child
		child.Interests = append([]string(nil), s.Child.Interests...)
		out.Child = &child
	}
	if s.Settings != nil {
		settings := *s.Settings
		out.Settings = &settings
	}
	if s.Segments != nil {
		out.Segments = append([]CheckpointSegment(nil), s.Segments...)
	}
	if s.Interactive != nil {
		st := *s.Interactive
		st.NextOptions = append([]ChoiceOption{}, s.Interactive.NextOptions...)
		st.History = make([]HistoryEntry, len(s.Interactive.History))
		for i, e := range s.Interactive.History {
			st.History[i] = e
			if e.Transition != nil {
				t := *e.Transition
				st.History[i].Transition = &t
			}
		}
		out.Interactive = &st
	}
	return &out
}
