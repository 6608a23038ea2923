package config

import (
	"strings"
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{"returns default when not set", "", time.Second},
		{"parses duration", "250ms", 250 * time.Millisecond},
		{"returns default on garbage", "soon", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			if got := getEnvDuration("TEST_DURATION", time.Second); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("REMOTE_STORE", "memory")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatalf("fromEnv() error = %v", err)
	}
	if cfg.Port != 8080 || cfg.TTSBackend != "none" || cfg.StoreRetryAttempts != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.StreakTimezone != time.UTC {
		t.Errorf("StreakTimezone = %v, want UTC", cfg.StreakTimezone)
	}
	if cfg.SessionIdleTTL != 15*time.Minute {
		t.Errorf("SessionIdleTTL = %v, want 15m", cfg.SessionIdleTTL)
	}
	if cfg.Production() {
		t.Error("default env should not be production")
	}
}

func TestFromEnv_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"secret required in prod", map[string]string{"APP_ENV": "prod", "REMOTE_STORE": "memory", "JWT_SECRET": ""}, "JWT_SECRET"},
		{"postgres needs url", map[string]string{"REMOTE_STORE": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
		{"unknown store", map[string]string{"REMOTE_STORE": "mongo"}, "REMOTE_STORE"},
		{"unknown tts", map[string]string{"REMOTE_STORE": "redis", "TTS_BACKEND": "espeak"}, "TTS_BACKEND"},
		{"yandex needs key", map[string]string{"REMOTE_STORE": "redis", "TTS_BACKEND": "yandex", "YANDEX_API_KEY": ""}, "YANDEX_API_KEY"},
		{"bad timezone", map[string]string{"REMOTE_STORE": "redis", "STREAK_TIMEZONE": "Mars/Olympus"}, "STREAK_TIMEZONE"},
		{"zero attempts", map[string]string{"REMOTE_STORE": "redis", "STORE_RETRY_ATTEMPTS": "0"}, "STORE_RETRY_ATTEMPTS"},
		{"negative idle ttl", map[string]string{"REMOTE_STORE": "redis", "SESSION_IDLE_TTL": "-1m"}, "SESSION_IDLE_TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := fromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("fromEnv() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestFromEnv_Timezone(t *testing.T) {
	t.Setenv("REMOTE_STORE", "memory")
	t.Setenv("STREAK_TIMEZONE", "Asia/Almaty")

	cfg, err := fromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StreakTimezone.String() != "Asia/Almaty" {
		t.Errorf("StreakTimezone = %v", cfg.StreakTimezone)
	}
}
