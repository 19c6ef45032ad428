package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-archive/app/feed"
	"github.com/lysyi3m/rss-archive/app/scheduler"
)

type Scheduler interface {
	AddFeedToSchedule(cfg *feed.Config) error
	DeleteScheduledTask(feedID string) error
	TaskState(feedID string) (scheduler.TaskState, bool)
}

type FeedStore interface {
	DeleteFeed(ctx context.Context, feedID string) (bool, error)
}

// ReloadAction reports what Reload did with a feed id.
type ReloadAction string

const (
	ReloadAdded   ReloadAction = "added"
	ReloadUpdated ReloadAction = "updated"
	ReloadRemoved ReloadAction = "removed"
	ReloadNone    ReloadAction = "none"
)

// Manager keeps the scheduler in step with the feed configuration files.
type Manager struct {
	configs   *feed.ConfigCache
	scheduler Scheduler
	feeds     FeedStore
}

func NewManager(configs *feed.ConfigCache, scheduler Scheduler, feeds FeedStore) *Manager {
	return &Manager{configs: configs, scheduler: scheduler, feeds: feeds}
}

// Bootstrap schedules every loaded configuration. A feed that cannot be
// scheduled is logged and skipped.
func (m *Manager) Bootstrap() int {
	scheduled := 0
	for _, cfg := range m.configs.GetConfigs() {
		if err := m.scheduler.AddFeedToSchedule(cfg); err != nil {
			slog.Error("Failed to schedule feed", "feed", cfg.ID, "error", err)
			continue
		}
		scheduled++
	}
	return scheduled
}

func (m *Manager) Add(cfg *feed.Config) error {
	return m.scheduler.AddFeedToSchedule(cfg)
}

// Update replaces the schedule of a feed with one built from cfg. The old
// schedule stays in place when cfg's poll interval cannot be scheduled.
func (m *Manager) Update(cfg *feed.Config) error {
	if _, err := scheduler.CronSpec(cfg.PollInterval); err != nil {
		return fmt.Errorf("invalid poll interval for %s: %w", cfg.ID, err)
	}
	if err := m.scheduler.DeleteScheduledTask(cfg.ID); err != nil {
		return err
	}
	return m.scheduler.AddFeedToSchedule(cfg)
}

// Remove unschedules a feed and drops its archive.
func (m *Manager) Remove(ctx context.Context, feedID string) error {
	if err := m.scheduler.DeleteScheduledTask(feedID); err != nil {
		return err
	}
	m.configs.RemoveConfig(feedID)

	if _, err := m.feeds.DeleteFeed(ctx, feedID); err != nil {
		return fmt.Errorf("failed to delete archived feed: %w", err)
	}
	return nil
}

// Reload re-reads the configuration file of feedID and adds, updates or
// removes the feed accordingly.
func (m *Manager) Reload(ctx context.Context, feedID string) (ReloadAction, error) {
	_, scheduled := m.scheduler.TaskState(feedID)

	cfg, err := m.configs.LoadConfig(feedID)
	if errors.Is(err, feed.ErrConfigNotFound) {
		if !scheduled {
			return ReloadNone, nil
		}
		if err := m.Remove(ctx, feedID); err != nil {
			return ReloadNone, err
		}
		slog.Info("Feed removed", "feed", feedID)
		return ReloadRemoved, nil
	}
	if err != nil {
		return ReloadNone, err
	}

	if scheduled {
		if err := m.Update(cfg); err != nil {
			return ReloadNone, err
		}
		slog.Info("Feed updated", "feed", feedID)
		return ReloadUpdated, nil
	}

	if err := m.Add(cfg); err != nil {
		return ReloadNone, err
	}
	slog.Info("Feed added", "feed", feedID)
	return ReloadAdded, nil
}
