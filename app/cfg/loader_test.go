package cfg

import (
	"testing"
	"time"

	"github.com/lysyi3m/rss-archive/app/feed"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadArgsDefaults(t *testing.T) {
	cfg, err := LoadArgs([]string{"--timezone", ""})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.DBPath != "./data/archive.db" {
		t.Errorf("Expected default db path, got '%s'", cfg.DBPath)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port '8080', got '%s'", cfg.Port)
	}
	if cfg.Retention != (feed.Duration{Value: 3, Unit: feed.Months}) {
		t.Errorf("Expected retention of 3 months, got %s", cfg.Retention)
	}
	if cfg.RetentionSchedule != "0 3 * * *" {
		t.Errorf("Expected default retention schedule, got '%s'", cfg.RetentionSchedule)
	}
	if cfg.CollectTimeout != 5*time.Minute {
		t.Errorf("Expected collect timeout of 5m, got %s", cfg.CollectTimeout)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("Expected Redis to be disabled by default, got '%s'", cfg.RedisAddr)
	}
	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestLoadArgsOverrides(t *testing.T) {
	cfg, err := LoadArgs([]string{
		"--timezone", "",
		"--db-path", "/tmp/test.db",
		"--port", "9090",
		"--retention", "30 days",
		"--collect-timeout", "10",
		"--api-key", "secret",
		"--debug",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.DBPath != "/tmp/test.db" || cfg.Port != "9090" || cfg.APIAccessKey != "secret" || !cfg.Debug {
		t.Errorf("Unexpected configuration: %+v", cfg)
	}
	if cfg.Retention != (feed.Duration{Value: 30, Unit: feed.Days}) {
		t.Errorf("Expected retention of 30 days, got %s", cfg.Retention)
	}
	if cfg.CollectTimeout != 10*time.Second {
		t.Errorf("Expected collect timeout of 10s, got %s", cfg.CollectTimeout)
	}
}

func TestLoadArgsInvalidRetention(t *testing.T) {
	if _, err := LoadArgs([]string{"--timezone", "", "--retention", "forever"}); err == nil {
		t.Error("Expected error for invalid retention")
	}
}
