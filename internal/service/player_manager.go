package service

import (
	"sync"
	"time"

	"story-player/internal/clients"
	"story-player/internal/metrics"
	"story-player/internal/repository"

	"go.uber.org/zap"
)

// PlayerManager хранит по одному плееру на вкладку браузера (X-Tab-ID).
// Плееры, к которым давно не обращались, закрываются; их сессии остаются в хранилище.
type PlayerManager struct {
	api     clients.StoryAPIClient
	poller  BranchWaiter
	storage repository.SessionStorage
	idleTTL time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	players map[string]*Player

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewPlayerManager создает менеджер. При idleTTL > 0 запускается фоновая очистка.
func NewPlayerManager(api clients.StoryAPIClient, poller BranchWaiter, storage repository.SessionStorage, idleTTL time.Duration, logger *zap.Logger) *PlayerManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &PlayerManager{
		api:     api,
		poller:  poller,
		storage: storage,
		idleTTL: idleTTL,
		logger:  logger.Named("PlayerManager"),
		players: make(map[string]*Player),
		stop:    make(chan struct{}),
	}
	if idleTTL > 0 {
		m.wg.Add(1)
		go m.janitor()
	}
	return m
}

// Get возвращает плеер вкладки, создавая его при первом обращении.
func (m *PlayerManager) Get(tabID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[tabID]; ok {
		return p
	}
	store := repository.NewSessionStore(m.storage, tabID, m.logger)
	p := NewPlayer(m.api, store, m.poller, m.logger.With(zap.String("tabID", tabID)))
	m.players[tabID] = p
	metrics.SetActivePlayers(len(m.players))
	m.logger.Debug("Player created", zap.String("tabID", tabID))
	return p
}

// Remove закрывает и забывает плеер вкладки.
func (m *PlayerManager) Remove(tabID string) {
	m.mu.Lock()
	p, ok := m.players[tabID]
	delete(m.players, tabID)
	metrics.SetActivePlayers(len(m.players))
	m.mu.Unlock()
	if ok {
		p.Close()
	}
}

// Len возвращает число активных плееров.
func (m *PlayerManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players)
}

// EvictIdle закрывает плееры без активности дольше idleTTL относительно now.
// Плееры с запросом в полете не трогаются.
func (m *PlayerManager) EvictIdle(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	var evicted []*Player
	m.mu.Lock()
	for tabID, p := range m.players {
		if p.Snapshot().Busy || now.Sub(p.LastActivity()) < m.idleTTL {
			continue
		}
		delete(m.players, tabID)
		evicted = append(evicted, p)
	}
	metrics.SetActivePlayers(len(m.players))
	m.mu.Unlock()

	for _, p := range evicted {
		p.Close()
	}
	if len(evicted) > 0 {
		m.logger.Info("Evicted idle players", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

func (m *PlayerManager) janitor() {
	defer m.wg.Done()
	interval := m.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.EvictIdle(now)
		}
	}
}

// Shutdown останавливает очистку и закрывает все плееры.
func (m *PlayerManager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()

	m.mu.Lock()
	players := m.players
	m.players = make(map[string]*Player)
	metrics.SetActivePlayers(0)
	m.mu.Unlock()

	for _, p := range players {
		p.Close()
	}
	m.logger.Info("All players closed", zap.Int("count", len(players)))
}
