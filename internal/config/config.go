package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Типы хранилища сессий
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Config содержит конфигурацию плеера историй.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	StoryAPI StoryAPIConfig
	Poller   PollerConfig
	Storage  StorageConfig
	Redis    RedisConfig
	// Плеер закрывается после простоя, сессия остается в хранилище
	PlayerIdleTTL time.Duration `envconfig:"PLAYER_IDLE_TTL" default:"30m"`
}

// ServerConfig содержит настройки HTTP сервера.
type ServerConfig struct {
	Port               string   `envconfig:"PLAYER_SERVER_PORT" default:"8090"`
	Env                string   `envconfig:"ENV" default:"development"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// LogConfig содержит настройки логгера.
type LogConfig struct {
	Level    string `envconfig:"LOG_LEVEL" default:"info"`
	Encoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// StoryAPIConfig содержит настройки бэкенда генерации историй.
type StoryAPIConfig struct {
	BaseURL string        `envconfig:"STORY_API_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"STORY_API_TIMEOUT" default:"60s"`
}

// PollerConfig содержит настройки опроса готовности веток.
type PollerConfig struct {
	Interval    time.Duration `envconfig:"BRANCH_POLL_INTERVAL" default:"1s"`
	MaxAttempts int           `envconfig:"BRANCH_POLL_MAX_ATTEMPTS" default:"90"`
}

// StorageConfig содержит настройки хранилища сессий.
type StorageConfig struct {
	Type       string        `envconfig:"SESSION_STORAGE" default:"memory"`
	FileDir    string        `envconfig:"SESSION_FILE_DIR" default:"./data/sessions"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"168h"`
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Password string `envconfig:"REDIS_PASSWORD"`
}

// LoadConfig загружает конфигурацию из переменных окружения.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.StoryAPI.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("некорректный STORY_API_BASE_URL %q", c.StoryAPI.BaseURL)
	}
	if c.StoryAPI.Timeout <= 0 {
		return fmt.Errorf("STORY_API_TIMEOUT должен быть положительным")
	}
	if c.Poller.Interval <= 0 || c.Poller.MaxAttempts <= 0 {
		return fmt.Errorf("BRANCH_POLL_INTERVAL и BRANCH_POLL_MAX_ATTEMPTS должны быть положительными")
	}
	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	switch c.Storage.Type {
	case StorageMemory, StorageRedis:
	case StorageFile:
		if c.Storage.FileDir == "" {
			return fmt.Errorf("SESSION_FILE_DIR обязателен для SESSION_STORAGE=file")
		}
	default:
		return fmt.Errorf("неизвестный SESSION_STORAGE %q (memory, file, redis)", c.Storage.Type)
	}
	return nil
}

// IsProduction сообщает, запущен ли сервис в production окружении.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

// LogFields возвращает поля для логирования загруженной конфигурации. Пароли скрыты.
func (c *Config) LogFields() []zap.Field {
	redisPassword := "[НЕ ЗАДАН]"
	if c.Redis.Password != "" {
		redisPassword = "[ЗАГРУЖЕН]"
	}
	return []zap.Field{
		zap.String("port", c.Server.Port),
		zap.Strings("corsOrigins", c.Server.CORSAllowedOrigins),
		zap.String("storyAPI", c.StoryAPI.BaseURL),
		zap.Duration("storyAPITimeout", c.StoryAPI.Timeout),
		zap.Duration("pollInterval", c.Poller.Interval),
		zap.Int("pollMaxAttempts", c.Poller.MaxAttempts),
		zap.String("storage", c.Storage.Type),
		zap.String("redisAddr", c.Redis.Addr),
		zap.String("redisPassword", redisPassword),
		zap.Duration("playerIdleTTL", c.PlayerIdleTTL),
	}
}
