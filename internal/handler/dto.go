package handler

import (
	"story-player/internal/models"
	"story-player/internal/service"
)

// CreateStoryRequest - тело POST /api/stories (форма создания истории).
type CreateStoryRequest struct {
	Child       models.Child `json:"child"`
	Duration    int          `json:"duration" validate:"required,oneof=2 5 10"`
	Interactive bool         `json:"interactive"`
	MoralFocus  string       `json:"moral_focus" validate:"required,oneof=kindness courage honesty sharing patience friendship curiosity"`
}

// toStartRequest нормализует форму в запрос старта.
func (r CreateStoryRequest) toStartRequest() models.StartRequest {
	return models.StartRequest{
		Child:       r.Child.Normalize(),
		Duration:    models.Duration(r.Duration),
		Interactive: r.Interactive,
		MoralFocus:  models.MoralFocus(r.MoralFocus),
	}
}

// ChoiceRequest - тело POST /api/stories/current/choices.
type ChoiceRequest struct {
	OptionID string `json:"option_id" validate:"required,oneof=A B"`
}

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message  string            `json:"message"`
	Redirect string            `json:"redirect,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Snapshot *service.Snapshot `json:"snapshot,omitempty"`
}

// HealthResponse - ответ GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend bool   `json:"backend"`
}
