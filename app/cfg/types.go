package cfg

import (
	"time"

	"github.com/lysyi3m/rss-archive/app/feed"
)

type Cfg struct {
	// Storage
	DBPath   string
	FeedsDir string

	// HTTP server
	Port         string
	BaseUrl      string
	APIAccessKey string

	// Collection
	UserAgent      string
	CollectTimeout time.Duration

	// Retention
	Retention         feed.Duration
	RetentionSchedule string

	// Notifications
	RedisAddr    string
	RedisChannel string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
