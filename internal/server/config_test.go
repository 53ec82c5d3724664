package server

import (
	"testing"
	"time"
)

// TestDefaultConfig tests the built-in defaults.
// It verifies that NewConfig returns sensible non-zero values for every
// setting.
func TestDefaultConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != ":8080" {
		t.Errorf("Port = %q, want :8080", cfg.Port)
	}
	if cfg.DBPath == "" {
		t.Error("DBPath is empty")
	}
	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize = %d, want positive", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst <= 0 || cfg.RateLimit.RefillInterval <= 0 {
		t.Errorf("RateLimit = %+v, want positive burst and interval", cfg.RateLimit)
	}
	if cfg.SessionQueueSize <= 0 {
		t.Errorf("SessionQueueSize = %d, want positive", cfg.SessionQueueSize)
	}
	if cfg.HistoryPageLimit <= 0 || cfg.SearchLimit <= 0 {
		t.Errorf("Page limits = %d/%d, want positive", cfg.HistoryPageLimit, cfg.SearchLimit)
	}
}

// TestSetConfigSanitizes tests configuration sanitization.
// It verifies that zero and negative values are replaced with defaults and
// that passing nil resets the active configuration.
func TestSetConfigSanitizes(t *testing.T) {
	defer SetConfig(nil)

	SetConfig(&Config{
		Port:             "",
		MaxMessageSize:   -1,
		RateLimit:        RateLimitConfig{Burst: 0, RefillInterval: 0},
		SessionQueueSize: -5,
	})

	cfg := currentConfig()
	if cfg.Port != ":8080" {
		t.Errorf("Port = %q, want default", cfg.Port)
	}
	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize = %d, want sanitized default", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst <= 0 || cfg.RateLimit.RefillInterval <= 0 {
		t.Errorf("RateLimit = %+v, want sanitized defaults", cfg.RateLimit)
	}
	if cfg.SessionQueueSize <= 0 {
		t.Errorf("SessionQueueSize = %d, want sanitized default", cfg.SessionQueueSize)
	}
}

// TestNewConfigFromEnv tests environment-driven configuration.
// It verifies that set variables override defaults and malformed values
// fall back.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("DB_PATH", "/tmp/test-privchat.db")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("SESSION_QUEUE_SIZE", "64")
	t.Setenv("HISTORY_PAGE_LIMIT", "not-a-number")

	cfg := NewConfigFromEnv()

	if cfg.Port != ":9999" {
		t.Errorf("Port = %q, want :9999", cfg.Port)
	}
	if cfg.DBPath != "/tmp/test-privchat.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://a.test" || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 2048 {
		t.Errorf("MaxMessageSize = %d, want 2048", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 3 {
		t.Errorf("RateLimit.Burst = %d, want 3", cfg.RateLimit.Burst)
	}
	if cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RateLimit.RefillInterval = %v, want 2s", cfg.RateLimit.RefillInterval)
	}
	if cfg.SessionQueueSize != 64 {
		t.Errorf("SessionQueueSize = %d, want 64", cfg.SessionQueueSize)
	}
	if cfg.HistoryPageLimit != defaultConfig().HistoryPageLimit {
		t.Errorf("HistoryPageLimit = %d, want fallback to default", cfg.HistoryPageLimit)
	}
}

// TestRateLimiterRefill tests the token bucket behavior.
// It verifies that a drained bucket rejects requests and refills over time.
func TestRateLimiterRefill(t *testing.T) {
	limiter := newRateLimiter(2, 100*time.Millisecond)

	if !limiter.allow() || !limiter.allow() {
		t.Fatal("Bucket should start full")
	}
	if limiter.allow() {
		t.Error("Drained bucket should reject")
	}

	time.Sleep(120 * time.Millisecond)
	if !limiter.allow() {
		t.Error("Bucket should refill after the interval")
	}
}
