package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/lysyi3m/rss-archive/app/feed"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath   string `long:"db-path" env:"DB_PATH" default:"./data/archive.db" description:"SQLite database file"`
	FeedsDir string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed configuration files"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://feeds.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Collection
	UserAgent      string `long:"user-agent" env:"USER_AGENT" default:"RSS-Archive/1.0" description:"User agent string for HTTP requests"`
	CollectTimeout int    `long:"collect-timeout" env:"COLLECT_TIMEOUT" default:"300" description:"Upper bound for one collect cycle in seconds"`

	// Retention
	Retention         string `long:"retention" env:"RETENTION" default:"3 months" description:"Delete items archived longer ago than this (e.g., 30 days, 3 months)"`
	RetentionSchedule string `long:"retention-schedule" env:"RETENTION_SCHEDULE" default:"0 3 * * *" description:"Cron expression for retention cleanup"`

	// Notifications
	RedisAddr    string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for publishing updates (optional)"`
	RedisChannel string `long:"redis-channel" env:"REDIS_CHANNEL" default:"rss-archive:updates" description:"Redis pub/sub channel"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses the process arguments and environment. It returns nil, nil
// when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	retention, err := feed.ParseDuration(raw.Retention)
	if err != nil {
		return nil, fmt.Errorf("invalid retention: %w", err)
	}

	if raw.CollectTimeout <= 0 {
		return nil, fmt.Errorf("collect timeout must be positive, got %d", raw.CollectTimeout)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		FeedsDir:          raw.FeedsDir,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		CollectTimeout:    time.Duration(raw.CollectTimeout) * time.Second,
		Retention:         retention,
		RetentionSchedule: raw.RetentionSchedule,
		RedisAddr:         raw.RedisAddr,
		RedisChannel:      raw.RedisChannel,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
