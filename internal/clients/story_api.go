package clients

import (
	"context"
	"errors"
	"fmt"

	"story-player/internal/models"
)

// Операции бэкенда историй (используются в логах, метриках и APIError).
const (
	OpStartStory    = "start_story"
	OpContinueStory = "continue_story"
	OpPollBranches  = "poll_branches"
	OpHealthCheck   = "health_check"
)

// StoryAPIClient определяет интерфейс к удаленному бэкенду генерации историй.
// Реализация - чистый транслятор форматов плюс HTTP транспорт, без побочных эффектов.
//
//go:generate mockery --name StoryAPIClient --output ../service/mocks --outpkg mocks --case=underscore
type StoryAPIClient interface {
	// StartStory создает новую сессию истории.
	StartStory(ctx context.Context, req models.StartRequest) (*models.StartResult, error)
	// ContinueStory продолжает историю выбранной веткой.
	ContinueStory(ctx context.Context, req models.ContinueRequest) (*models.ContinueResult, error)
	// PollBranches спрашивает, готовы ли варианты для контрольной точки checkpoint.
	PollBranches(ctx context.Context, sessionID string, checkpoint int) (*models.PollResult, error)
	// HealthCheck проверяет доступность бэкенда.
	HealthCheck(ctx context.Context) (bool, error)
}

// APIError - ошибка обращения к бэкенду: транспорт, статус ответа или формат тела.
type APIError struct {
	Op         string
	StatusCode int    // 0, если ответа не было
	Message    string // Сообщение бэкенда, если удалось его прочитать
	Retryable  bool
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("story api %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("story api %s failed: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// UserMessage возвращает человекочитаемое сообщение для показа пользователю.
func (e *APIError) UserMessage() string {
	var action string
	switch e.Op {
	case OpStartStory:
		action = "start your story"
	case OpContinueStory:
		action = "continue your story"
	case OpPollBranches:
		action = "prepare the next choices"
	default:
		action = "reach the story service"
	}
	if e.Retryable {
		return fmt.Sprintf("We couldn't %s. Please try again.", action)
	}
	return fmt.Sprintf("We couldn't %s.", action)
}

// UserMessage достает человекочитаемое сообщение из любой ошибки клиента.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	if errors.Is(err, models.ErrGenerationStalled) {
		return "Your next choices are taking too long to prepare. Please try again."
	}
	return "Something went wrong. Please try again."
}

// IsRetryable сообщает, имеет ли смысл повторить операцию.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return errors.Is(err, models.ErrGenerationStalled)
}
