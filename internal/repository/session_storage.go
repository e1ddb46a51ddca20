package repository

import (
	"context"
	"errors"
	"sync"
)

// ErrKeyNotFound возвращается хранилищем, если ключа нет.
var ErrKeyNotFound = errors.New("key not found in session storage")

// SessionStorage - абстракция над посессионным хранилищем вкладки браузера
// (аналог sessionStorage): строковые ключи, непрозрачные значения.
type SessionStorage interface {
	// Get возвращает значение ключа или ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set записывает значение ключа целиком.
	Set(ctx context.Context, key string, value []byte) error
	// Remove удаляет ключ. Отсутствие ключа ошибкой не считается.
	Remove(ctx context.Context, key string) error
}

// MemorySessionStorage хранит значения в памяти процесса.
type MemorySessionStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ SessionStorage = (*MemorySessionStorage)(nil)

// NewMemorySessionStorage создает пустое хранилище в памяти.
func NewMemorySessionStorage() *MemorySessionStorage {
	return &MemorySessionStorage{data: make(map[string][]byte)}
}

func (m *MemorySessionStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemorySessionStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemorySessionStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len возвращает число ключей (для тестов и отладки).
func (m *MemorySessionStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
