package handler

import (
	"errors"
	"net/http"

	"story-player/internal/clients"
	"story-player/internal/models"
	"story-player/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const createRedirect = "/create"

// handleServiceError переводит ошибку плеера в HTTP ответ.
// snap добавляется в тело, чтобы UI мог показать состояние ошибки.
func handleServiceError(c *gin.Context, logger *zap.Logger, err error, snap *service.Snapshot) {
	var statusCode int
	apiErr := APIError{Message: err.Error()}

	var apiClientErr *clients.APIError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
	case errors.Is(err, models.ErrNoSession):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "No story in progress", Redirect: createRedirect}
	case errors.Is(err, models.ErrSessionCorrupted):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: "Saved story could not be restored", Redirect: createRedirect}
	case errors.Is(err, models.ErrIllegalChoice),
		errors.Is(err, models.ErrSessionFinal),
		errors.Is(err, models.ErrContinueInFlight),
		errors.Is(err, models.ErrNotInteractive),
		errors.Is(err, models.ErrNothingToRetry),
		errors.Is(err, models.ErrSessionReplaced):
		statusCode = http.StatusConflict
		apiErr.Snapshot = snap
	case errors.Is(err, models.ErrPlayerClosed):
		statusCode = http.StatusServiceUnavailable
		apiErr = APIError{Message: "Player is shutting down, please retry"}
	case errors.As(err, &apiClientErr), errors.Is(err, models.ErrGenerationStalled):
		statusCode = http.StatusBadGateway
		apiErr = APIError{Message: clients.UserMessage(err), Snapshot: snap}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error", Snapshot: snap}
	}

	if statusCode >= http.StatusInternalServerError {
		// Залогирует ZapLoggingMiddlewareForGin
		_ = c.Error(err)
	} else {
		logger.Debug("Request rejected", zap.Int("status", statusCode), zap.Error(err))
	}
	c.AbortWithStatusJSON(statusCode, apiErr)
}

// handleValidationError отвечает 400 со списком некорректных полей.
func handleValidationError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "Validation failed", Fields: fields})
}
