package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileSessionStorage хранит каждый ключ в отдельном файле каталога dir.
// Используется CLI-плеером, чтобы прогресс переживал перезапуск процесса.
type FileSessionStorage struct {
	dir    string
	logger *zap.Logger
}

var _ SessionStorage = (*FileSessionStorage)(nil)

// NewFileSessionStorage создает каталог dir, если его нет.
func NewFileSessionStorage(dir string, logger *zap.Logger) (*FileSessionStorage, error) {
	if dir == "" {
		return nil, errors.New("session file directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSessionStorage{dir: dir, logger: logger.Named("FileSessionStorage")}, nil
}

// path превращает ключ в безопасное имя файла.
func (f *FileSessionStorage) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+".json")
}

func (f *FileSessionStorage) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	return data, nil
}

// Set пишет во временный файл и атомарно переименовывает его.
func (f *FileSessionStorage) Set(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(f.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	f.logger.Debug("Session file written", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

func (f *FileSessionStorage) Remove(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
