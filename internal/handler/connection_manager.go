package handler

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client - одно websocket соединение вкладки.
type Client struct {
	TabID string
	Conn  *websocket.Conn
	send  chan []byte
}

// ConnectionManager управляет websocket соединениями, по одному на вкладку.
// Канал send клиента закрывается только под mu, поэтому SendToTab не пишет в закрытый канал.
type ConnectionManager struct {
	mu      sync.RWMutex
	clients map[string]*Client
	stopped bool
	logger  *zap.Logger
}

// NewConnectionManager создает менеджер соединений.
func NewConnectionManager(logger *zap.Logger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionManager{
		clients: make(map[string]*Client),
		logger:  logger.Named("ConnectionManager"),
	}
}

// RegisterClient регистрирует клиента. Старое соединение той же вкладки закрывается.
func (m *ConnectionManager) RegisterClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		close(client.send)
		return
	}
	if old, ok := m.clients[client.TabID]; ok {
		m.logger.Debug("Replacing connection", zap.String("tabID", client.TabID))
		close(old.send)
	}
	m.clients[client.TabID] = client
}

// UnregisterClient удаляет клиента, если он все еще текущий для своей вкладки.
func (m *ConnectionManager) UnregisterClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.clients[client.TabID]; ok && cur == client {
		delete(m.clients, client.TabID)
		close(client.send)
		m.logger.Debug("Client unregistered", zap.String("tabID", client.TabID))
	}
}

// SendToTab ставит сообщение в очередь соединения вкладки без блокировки.
// Возвращает false, если вкладка не подключена или очередь переполнена.
func (m *ConnectionManager) SendToTab(tabID string, message []byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[tabID]
	if !ok {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		m.logger.Warn("Send queue is full, dropping message", zap.String("tabID", tabID))
		return false
	}
}

// Len возвращает число подключенных вкладок.
func (m *ConnectionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Stop закрывает очереди всех соединений. writePump отправит CloseMessage.
func (m *ConnectionManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for tabID, client := range m.clients {
		close(client.send)
		delete(m.clients, tabID)
	}
}
