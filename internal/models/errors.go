package models

import "errors"

// Общие ошибки приложения
var (
	// Ошибки сессии
	ErrNoSession        = errors.New("no story session stored")
	ErrSessionCorrupted = errors.New("stored story session is corrupted")

	// Недопустимые переходы плеера (ошибки программиста, UI должен их предотвращать)
	ErrIllegalChoice    = errors.New("choice option is not offered at the current checkpoint")
	ErrSessionFinal     = errors.New("story session has already reached its final checkpoint")
	ErrContinueInFlight = errors.New("a continuation request is already in flight")
	ErrNotInteractive   = errors.New("story session is not interactive")
	ErrNothingToRetry   = errors.New("player is not in an error state")
	ErrSessionReplaced  = errors.New("story session was replaced while the request was in flight")
	ErrPlayerClosed     = errors.New("player is closed")

	// Генерация веток
	ErrGenerationStalled = errors.New("branch generation stalled")

	// Ошибки бэкенда и формата ответа
	ErrMalformedResponse  = errors.New("malformed backend response")
	ErrUnrecognizedShape  = errors.New("unrecognized backend response shape")
	ErrBackendUnavailable = errors.New("story backend unavailable")

	// Ошибки входных данных
	ErrInvalidInput = errors.New("invalid input data")
)
