package handler

import (
	"context"
	"net/http"
	"time"

	"story-player/internal/clients"
	"story-player/internal/middleware"
	"story-player/internal/models"
	"story-player/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const healthCheckTimeout = 3 * time.Second

// PlayerHandler обслуживает браузерный UI плеера.
type PlayerHandler struct {
	players        *service.PlayerManager
	api            clients.StoryAPIClient
	connections    *ConnectionManager
	validate       *validator.Validate
	allowedOrigins []string
	logger         *zap.Logger
}

// NewPlayerHandler создает PlayerHandler.
func NewPlayerHandler(players *service.PlayerManager, api clients.StoryAPIClient, connections *ConnectionManager, allowedOrigins []string, logger *zap.Logger) *PlayerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlayerHandler{
		players:        players,
		api:            api,
		connections:    connections,
		validate:       validator.New(),
		allowedOrigins: allowedOrigins,
		logger:         logger.Named("PlayerHandler"),
	}
}

// RegisterRoutes регистрирует маршруты плеера.
func (h *PlayerHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)

	stories := r.Group("/api/stories", middleware.TabID())
	{
		stories.POST("", h.createStory)
		stories.GET("/current", h.getCurrent)
		stories.POST("/current/choices", h.choose)
		stories.POST("/current/retry", h.retry)
		stories.DELETE("/current", h.reset)
		stories.GET("/current/events", h.serveEvents)
	}
}

func (h *PlayerHandler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()
	ok, err := h.api.HealthCheck(ctx)
	if err != nil {
		h.logger.Warn("Story backend health check failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Backend: ok})
}

// detached отвязывает вызов бэкенда от запроса: уход пользователя со страницы
// не должен обрывать начатую генерацию.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (h *PlayerHandler) createStory(c *gin.Context) {
	var req CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid create story body", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
		return
	}
	req.Child = req.Child.Normalize()
	if err := h.validate.Struct(req); err != nil {
		handleValidationError(c, err)
		return
	}

	player := h.players.Get(middleware.GetTabID(c))
	snap, err := player.Start(detached(c), req.toStartRequest())
	if err != nil {
		handleServiceError(c, h.logger, err, &snap)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *PlayerHandler) getCurrent(c *gin.Context) {
	player := h.players.Get(middleware.GetTabID(c))
	snap, err := player.Resume(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err, &snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *PlayerHandler) choose(c *gin.Context) {
	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handleValidationError(c, err)
		return
	}

	player := h.players.Get(middleware.GetTabID(c))
	// После рестарта сервера сессию нужно поднять из хранилища
	if _, err := player.Resume(c.Request.Context()); err != nil {
		handleServiceError(c, h.logger, err, nil)
		return
	}
	snap, err := player.Choose(detached(c), models.ChoiceID(req.OptionID))
	if err != nil {
		handleServiceError(c, h.logger, err, &snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *PlayerHandler) retry(c *gin.Context) {
	player := h.players.Get(middleware.GetTabID(c))
	snap, err := player.Retry(detached(c))
	if err != nil {
		handleServiceError(c, h.logger, err, &snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *PlayerHandler) reset(c *gin.Context) {
	player := h.players.Get(middleware.GetTabID(c))
	if err := player.Reset(c.Request.Context()); err != nil {
		handleServiceError(c, h.logger, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect": createRedirect})
}
