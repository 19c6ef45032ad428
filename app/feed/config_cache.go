package feed

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrConfigNotFound = errors.New("feed config not found")

var configExtensions = []string{".yml", ".yaml"}

type ConfigCache struct {
	feedsDir string
	cache    map[string]*Config
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.feedsDir); os.IsNotExist(err) {
		return nil
	}

	for _, ext := range configExtensions {
		files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*"+ext))
		if err != nil {
			return fmt.Errorf("failed to find %s files: %w", ext, err)
		}

		for _, file := range files {
			feedID := strings.TrimSuffix(filepath.Base(file), ext)

			feedConfig, err := cc.LoadConfig(feedID)
			if err != nil {
				return fmt.Errorf("error loading %s: %w", file, err)
			}

			slog.Debug("Configuration loaded", "feed", feedID, "enabled", feedConfig.Enabled, "poll_interval", feedConfig.PollInterval.String())
		}
	}

	return nil
}

// LoadConfig (re)reads the config file for feedID and caches it. It returns
// ErrConfigNotFound when no file exists for the id.
func (cc *ConfigCache) LoadConfig(feedID string) (*Config, error) {
	configFile, ok := cc.findConfigFile(feedID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, feedID)
	}

	feedConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	feedConfig.ID = feedID
	feedConfig.Name = cmp.Or(feedConfig.Name, feedID)

	if err := cc.validateConfig(feedConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[feedConfig.ID] = feedConfig

	return feedConfig, nil
}

func (cc *ConfigCache) RemoveConfig(feedID string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.cache, feedID)
}

func (cc *ConfigCache) GetConfig(feedID string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	feedConfig, ok := cc.cache[feedID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, feedID)
	}
	return feedConfig, nil
}

// GetConfigs returns the cached configs ordered by id.
func (cc *ConfigCache) GetConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configs := make([]*Config, 0, len(cc.cache))
	for _, v := range cc.cache {
		configs = append(configs, v)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	return configs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var feedConfig Config
	if err := yaml.Unmarshal(data, &feedConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if feedConfig.PollInterval.IsZero() {
		feedConfig.PollInterval = Duration{Value: 1, Unit: Hours}
	}
	if feedConfig.Timeout == 0 {
		feedConfig.Timeout = 30
	}

	return &feedConfig, nil
}

func (cc *ConfigCache) validateConfig(feedConfig *Config) error {
	if feedConfig == nil {
		return fmt.Errorf("feedConfig is nil")
	}

	if feedConfig.URL == "" {
		return fmt.Errorf("feed URL is required")
	}

	if feedConfig.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	if err := feedConfig.PollInterval.Validate(); err != nil {
		return fmt.Errorf("poll interval: %w", err)
	}

	return nil
}

func (cc *ConfigCache) findConfigFile(feedID string) (string, bool) {
	for _, ext := range configExtensions {
		path := filepath.Join(cc.feedsDir, feedID+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
