package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - настройки сервера, читаются из окружения (и .env, если он есть).
type Config struct {
	// Server
	Port   int
	AppEnv string // dev | prod
	// JWTSecret проверяет токены провайдера входа. Пустой - только анонимный режим.
	JWTSecret string

	// Progress
	RemoteStore        string // postgres | redis | memory
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	LocalStorePath     string
	StreakTimezone     *time.Location
	StoreRetryAttempts int
	StoreRetryDelay    time.Duration
	// SessionIdleTTL - через сколько простоя сессия прогресса закрывается.
	SessionIdleTTL time.Duration

	// Catalog
	CatalogPath string

	// Speech
	TTSBackend     string // google | yandex | none
	TTSLang        string
	YandexAPIKey   string
	YandexFolderID string
	YandexTTSURL   string
	TTSCacheSize   int
	MediaDir       string
}

func (c *Config) Production() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

// Load читает .env (его отсутствие не ошибка) и переменные окружения.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		Port:               getEnvInt("PORT", 8080),
		AppEnv:             strings.ToLower(getEnv("APP_ENV", "dev")),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		RemoteStore:        strings.ToLower(getEnv("REMOTE_STORE", "postgres")),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		LocalStorePath:     getEnv("LOCAL_STORE_PATH", "soyle-local.db"),
		StoreRetryAttempts: getEnvInt("STORE_RETRY_ATTEMPTS", 4),
		StoreRetryDelay:    getEnvDuration("STORE_RETRY_DELAY", 200*time.Millisecond),
		SessionIdleTTL:     getEnvDuration("SESSION_IDLE_TTL", 15*time.Minute),
		CatalogPath:        getEnv("CATALOG_PATH", ""),
		TTSBackend:         strings.ToLower(getEnv("TTS_BACKEND", "none")),
		TTSLang:            getEnv("TTS_LANG", "kk-KZ"),
		YandexAPIKey:       getEnv("YANDEX_API_KEY", ""),
		YandexFolderID:     getEnv("YANDEX_FOLDER_ID", ""),
		YandexTTSURL:       getEnv("YANDEX_TTS_URL", ""),
		TTSCacheSize:       getEnvInt("TTS_CACHE_SIZE", 256),
		MediaDir:           getEnv("MEDIA_DIR", "media"),
	}

	loc, err := time.LoadLocation(getEnv("STREAK_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("STREAK_TIMEZONE: %w", err)
	}
	cfg.StreakTimezone = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" && c.Production() {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}

	switch c.RemoteStore {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for REMOTE_STORE=postgres")
		}
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown REMOTE_STORE %q (want postgres, redis or memory)", c.RemoteStore)
	}

	switch c.TTSBackend {
	case "google", "none":
	case "yandex":
		if c.YandexAPIKey == "" || c.YandexFolderID == "" {
			return fmt.Errorf("YANDEX_API_KEY and YANDEX_FOLDER_ID are required for TTS_BACKEND=yandex")
		}
	default:
		return fmt.Errorf("unknown TTS_BACKEND %q (want google, yandex or none)", c.TTSBackend)
	}

	if c.StoreRetryAttempts < 1 {
		return fmt.Errorf("STORE_RETRY_ATTEMPTS must be at least 1")
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
