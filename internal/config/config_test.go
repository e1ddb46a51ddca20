package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("STORY_API_BASE_URL", "http://localhost:8000")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Poller.Interval)
	assert.Equal(t, 90, cfg.Poller.MaxAttempts)
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Equal(t, 60*time.Second, cfg.StoryAPI.Timeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("STORY_API_BASE_URL", "https://stories.example.com")
	t.Setenv("BRANCH_POLL_INTERVAL", "250ms")
	t.Setenv("BRANCH_POLL_MAX_ATTEMPTS", "12")
	t.Setenv("SESSION_STORAGE", "Redis")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Poller.Interval)
	assert.Equal(t, 12, cfg.Poller.MaxAttempts)
	assert.Equal(t, StorageRedis, cfg.Storage.Type)
	assert.Len(t, cfg.Server.CORSAllowedOrigins, 2)
	assert.True(t, cfg.IsProduction())

	for _, f := range cfg.LogFields() {
		assert.NotEqual(t, "secret", f.String, "password must not be logged")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing base url", map[string]string{}},
		{"relative base url", map[string]string{"STORY_API_BASE_URL": "/api"}},
		{"unknown storage", map[string]string{"STORY_API_BASE_URL": "http://x", "SESSION_STORAGE": "s3"}},
		{"zero attempts", map[string]string{"STORY_API_BASE_URL": "http://x", "BRANCH_POLL_MAX_ATTEMPTS": "0"}},
		{"bad duration", map[string]string{"STORY_API_BASE_URL": "http://x", "STORY_API_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORY_API_BASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
