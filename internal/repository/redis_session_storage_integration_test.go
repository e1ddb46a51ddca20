package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"story-player/internal/models"
	"story-player/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

// RedisStorageTestSuite проверяет RedisSessionStorage на настоящем Redis в контейнере.
type RedisStorageTestSuite struct {
	suite.Suite
	ctx         context.Context
	container   *tcredis.RedisContainer
	redisClient *redis.Client
	storage     repository.SessionStorage
}

func (s *RedisStorageTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcredis.Run(s.ctx, "redis:7-alpine")
	require.NoError(s.T(), err, "Failed to start redis container")
	s.container = container

	uri, err := container.ConnectionString(s.ctx)
	require.NoError(s.T(), err)
	opts, err := redis.ParseURL(uri)
	require.NoError(s.T(), err)

	s.redisClient = redis.NewClient(opts)
	require.NoError(s.T(), s.redisClient.Ping(s.ctx).Err())
	s.storage = repository.NewRedisSessionStorage(s.redisClient, time.Minute, zap.NewNop())
}

func (s *RedisStorageTestSuite) TearDownSuite() {
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *RedisStorageTestSuite) SetupTest() {
	require.NoError(s.T(), s.redisClient.FlushDB(s.ctx).Err())
}

func (s *RedisStorageTestSuite) TestSaveLoadClear() {
	store := repository.NewSessionStore(s.storage, "tab-redis", nil)
	sess := testSession(s.T())

	s.Require().NoError(store.Save(s.ctx, sess))
	loaded, err := store.Load(s.ctx)
	s.Require().NoError(err)
	s.Equal(sess.SessionID, loaded.SessionID)
	s.Equal(sess.Interactive.History, loaded.Interactive.History)

	ttl, err := s.redisClient.TTL(s.ctx, "story_player:"+repository.TabSessionKey("tab-redis")).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))

	s.Require().NoError(store.Clear(s.ctx))
	_, err = store.Load(s.ctx)
	s.True(errors.Is(err, models.ErrNoSession))
}

func (s *RedisStorageTestSuite) TestCorruptedBlobIsRemoved() {
	key := repository.TabSessionKey("tab-corrupt")
	s.Require().NoError(s.storage.Set(s.ctx, key, []byte(`{"child":{}}`)))

	_, err := repository.NewSessionStore(s.storage, "tab-corrupt", nil).Load(s.ctx)
	s.True(errors.Is(err, models.ErrSessionCorrupted))

	_, err = s.storage.Get(s.ctx, key)
	s.True(errors.Is(err, repository.ErrKeyNotFound))
}

func TestRedisStorageIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	suite.Run(t, new(RedisStorageTestSuite))
}
