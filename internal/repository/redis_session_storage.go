package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "story_player:"

type redisSessionStorage struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// Compile-time check
var _ SessionStorage = (*redisSessionStorage)(nil)

// NewRedisSessionStorage создает хранилище сессий в Redis.
// ttl продлевается при каждой записи; 0 - без срока жизни.
func NewRedisSessionStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) SessionStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisSessionStorage{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisSessionStorage"),
	}
}

func (r *redisSessionStorage) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get session from redis", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	return val, nil
}

func (r *redisSessionStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to set session in redis", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to set session in redis: %w", err)
	}
	r.logger.Debug("Session stored in redis", zap.String("key", key), zap.Duration("ttl", r.ttl))
	return nil
}

func (r *redisSessionStorage) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		r.logger.Error("Failed to delete session from redis", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}
