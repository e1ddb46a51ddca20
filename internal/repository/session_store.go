package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"story-player/internal/metrics"
	"story-player/internal/models"

	"go.uber.org/zap"
)

// SessionKey - общеизвестный ключ, под которым лежит сессия истории.
const SessionKey = "story_session"

// TabSessionKey возвращает ключ сессии, привязанный к вкладке tabID.
func TabSessionKey(tabID string) string {
	return "tab:" + tabID + ":" + SessionKey
}

// persistedInteractive - сохраненное интерактивное состояние.
// История читается как сырые элементы, чтобы распознать устаревший формат
// (голые сегменты вместо пар сегмент + выбор).
type persistedInteractive struct {
	CurrentSegment       models.CheckpointSegment `json:"current_segment"`
	NextOptions          []models.ChoiceOption    `json:"next_options"`
	RemainingCheckpoints int                      `json:"remaining_checkpoints"`
	History              []json.RawMessage        `json:"history"`
}

// persistedSession перекрывает поле interactive_state модели на время декодирования.
type persistedSession struct {
	models.Session
	Interactive *persistedInteractive `json:"interactive_state,omitempty"`
}

// SessionStore - единственный источник правды о положении игрока в истории для одной вкладки.
// Сессия целиком сериализуется при каждом переходе.
type SessionStore struct {
	storage SessionStorage
	key     string
	logger  *zap.Logger
}

// NewSessionStore создает хранилище сессии для вкладки tabID поверх storage.
func NewSessionStore(storage SessionStorage, tabID string, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		storage: storage,
		key:     TabSessionKey(tabID),
		logger:  logger.Named("SessionStore").With(zap.String("tabID", tabID)),
	}
}

// Save сериализует и записывает сессию целиком. Невалидная сессия не записывается.
func (s *SessionStore) Save(ctx context.Context, sess *models.Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid session: %w", err)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.storage.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	metrics.IncSessionStore("saved")
	s.logger.Debug("Session saved", zap.String("sessionID", sess.SessionID), zap.Int("bytes", len(data)))
	return nil
}

// Load читает, проверяет и при необходимости мигрирует сохраненную сессию.
// Возвращает models.ErrNoSession, если сессии нет, и models.ErrSessionCorrupted,
// если блоб поврежден (в этом случае он уже удален из хранилища).
func (s *SessionStore) Load(ctx context.Context) (*models.Session, error) {
	data, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, models.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	sess, migrated, decodeErr := decodeSession(data)
	if decodeErr == nil {
		decodeErr = sess.Validate()
	}
	if decodeErr != nil {
		s.logger.Warn("Stored session is corrupted, discarding", zap.Error(decodeErr))
		metrics.IncSessionStore("corrupted")
		if err := s.storage.Remove(ctx, s.key); err != nil {
			s.logger.Error("Failed to remove corrupted session", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", models.ErrSessionCorrupted, decodeErr)
	}

	if migrated {
		s.logger.Info("Migrated legacy session history", zap.String("sessionID", sess.SessionID))
		metrics.IncSessionStore("migrated")
		if err := s.Save(ctx, sess); err != nil {
			// Миграция в памяти уже выполнена; при следующей загрузке попробуем снова.
			s.logger.Warn("Failed to persist migrated session", zap.Error(err))
		}
	}
	metrics.IncSessionStore("loaded")
	return sess, nil
}

// Clear удаляет сессию вкладки (пользователь начинает новую историю).
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.storage.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	metrics.IncSessionStore("cleared")
	s.logger.Debug("Session cleared")
	return nil
}

// decodeSession разбирает блоб и переводит устаревшую историю в текущий формат.
func decodeSession(data []byte) (*models.Session, bool, error) {
	var p persistedSession
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("invalid session json: %w", err)
	}
	sess := p.Session
	sess.Interactive = nil
	if p.Interactive == nil {
		return &sess, false, nil
	}

	migrated := false
	history := make([]models.HistoryEntry, 0, len(p.Interactive.History))
	for i, raw := range p.Interactive.History {
		entry, legacy, err := decodeHistoryEntry(raw)
		if err != nil {
			return nil, false, fmt.Errorf("history[%d]: %w", i, err)
		}
		migrated = migrated || legacy
		history = append(history, entry)
	}
	sess.Interactive = &models.InteractiveState{
		CurrentSegment:       p.Interactive.CurrentSegment,
		NextOptions:          p.Interactive.NextOptions,
		RemainingCheckpoints: p.Interactive.RemainingCheckpoints,
		History:              history,
	}
	return &sess, migrated, nil
}

// decodeHistoryEntry распознает текущую запись {segment, chosen_option}
// или устаревший голый сегмент {checkpoint_index, text, ...}.
func decodeHistoryEntry(raw json.RawMessage) (models.HistoryEntry, bool, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil || keys == nil {
		return models.HistoryEntry{}, false, errors.New("history entry is not an object")
	}
	if _, ok := keys["segment"]; ok {
		var entry models.HistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return models.HistoryEntry{}, false, err
		}
		return entry, false, nil
	}
	_, hasText := keys["text"]
	_, hasIndex := keys["checkpoint_index"]
	if hasText || hasIndex {
		var seg models.CheckpointSegment
		if err := json.Unmarshal(raw, &seg); err != nil {
			return models.HistoryEntry{}, false, err
		}
		return models.HistoryEntry{Segment: seg}, true, nil
	}
	return models.HistoryEntry{}, false, errors.New("unrecognized history entry")
}
