package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"story-player/internal/middleware"
	"story-player/internal/models"
	"story-player/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Время на запись сообщения клиенту.
	writeWait = 10 * time.Second
	// Время ожидания следующего pong от клиента.
	pongWait = 60 * time.Second
	// Период пингов. Должен быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Клиент ничего не шлет, кроме управляющих кадров.
	maxMessageSize = 512
	sendQueueSize  = 16
)

// Типы событий websocket
const (
	EventSnapshot = "snapshot"
	EventRedirect = "redirect"
)

// WSMessage - событие, отправляемое вкладке.
type WSMessage struct {
	Type     string            `json:"type"`
	Snapshot *service.Snapshot `json:"snapshot,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

func (h *PlayerHandler) newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// serveEvents поднимает websocket и пушит снимок плеера при каждом изменении.
func (h *PlayerHandler) serveEvents(c *gin.Context) {
	tabID := middleware.GetTabID(c)
	log := h.logger.With(zap.String("tabID", tabID))
	player := h.players.Get(tabID)

	upgrader := h.newUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		log.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}
	log.Info("WebSocket connection established")

	client := &Client{TabID: tabID, Conn: conn, send: make(chan []byte, sendQueueSize)}
	h.connections.RegisterClient(client)

	unsubscribe := player.Subscribe(func(s service.Snapshot) {
		h.push(tabID, WSMessage{Type: EventSnapshot, Snapshot: &s}, log)
	})

	snap, err := player.Resume(c.Request.Context())
	switch {
	case err == nil:
		h.push(tabID, WSMessage{Type: EventSnapshot, Snapshot: &snap}, log)
	case errors.Is(err, models.ErrNoSession), errors.Is(err, models.ErrSessionCorrupted):
		h.push(tabID, WSMessage{Type: EventRedirect, Redirect: createRedirect}, log)
	default:
		log.Error("Failed to resume session for websocket", zap.Error(err))
		h.push(tabID, WSMessage{Type: EventSnapshot, Snapshot: &snap}, log)
	}

	go client.writePump(log)
	go client.readPump(func() {
		unsubscribe()
		h.connections.UnregisterClient(client)
	}, log)
}

func (h *PlayerHandler) push(tabID string, msg WSMessage, log *zap.Logger) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error("Failed to marshal websocket message", zap.Error(err))
		return
	}
	h.connections.SendToTab(tabID, data)
}

// readPump читает управляющие кадры и замечает закрытие соединения.
func (c *Client) readPump(onClose func(), logger *zap.Logger) {
	defer func() {
		onClose()
		_ = c.Conn.Close()
		logger.Debug("readPump finished")
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			} else {
				logger.Info("WebSocket connection closed")
			}
			return
		}
		logger.Debug("Ignoring message from client", zap.Int("size", len(message)))
	}
}

// writePump переносит сообщения из очереди send в соединение и шлет пинги.
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Одно событие на кадр: клиент разбирает каждый кадр как JSON
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
