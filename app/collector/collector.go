package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lysyi3m/rss-archive/app/feed"
	"github.com/lysyi3m/rss-archive/app/notify"
	"golang.org/x/sync/singleflight"
)

// Collector runs collect cycles: fetch, parse, reconcile against the
// archive, persist and notify.
type Collector struct {
	fetcher   *Fetcher
	parser    DocumentParser
	feeds     FeedStore
	items     ItemStore
	publisher notify.Publisher
	group     singleflight.Group
}

func NewCollector(fetcher *Fetcher, parser DocumentParser, feeds FeedStore, items ItemStore, publisher notify.Publisher) *Collector {
	return &Collector{
		fetcher:   fetcher,
		parser:    parser,
		feeds:     feeds,
		items:     items,
		publisher: publisher,
	}
}

// Collect runs one collect cycle for cfg. A call for a feed whose previous
// cycle is still running joins that cycle and shares its result.
//
// The shared cycle runs under the ctx of the call that started it, so
// cancelling that call fails every joined call too. A joined call whose own
// ctx ends first returns ctx.Err() without waiting.
func (c *Collector) Collect(ctx context.Context, cfg *feed.Config) (*feed.Feed, error) {
	ch := c.group.DoChan(cfg.ID, func() (any, error) {
		return c.collect(ctx, cfg)
	})

	select {
	case res := <-ch:
		if res.Shared {
			slog.Debug("Shared collect result", "feed", cfg.ID)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*feed.Feed), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Collector) collect(ctx context.Context, cfg *feed.Config) (*feed.Feed, error) {
	start := time.Now()

	res, err := c.fetcher.Fetch(ctx, cfg)
	if err != nil {
		return nil, c.fail(cfg, err)
	}

	if res.NotModified {
		archived, err := c.feeds.GetFeed(ctx, cfg.ID)
		if err != nil {
			return nil, c.fail(cfg, err)
		}
		if archived != nil {
			slog.Debug("Feed not modified", "feed", cfg.ID, "duration", time.Since(start))
			return archived, nil
		}

		// Validators outlived the archive, fetch unconditionally.
		c.fetcher.Forget(cfg.URL)
		if res, err = c.fetcher.Fetch(ctx, cfg); err != nil {
			return nil, c.fail(cfg, err)
		}
	}

	parsed, err := c.parser.Run(res.Body)
	if err != nil {
		return nil, c.fail(cfg, err)
	}
	parsed.ID = cfg.ID
	parsed.Items = uniqueItems(parsed.Items, cfg.ID)

	newItems, err := c.reconcile(ctx, cfg, parsed)
	if err != nil {
		return nil, c.fail(cfg, err)
	}

	c.fetcher.Remember(cfg.URL, res.Validators)

	if len(newItems) > 0 {
		c.publisher.Publish(ctx, notify.Update{
			FeedID:   cfg.ID,
			FeedName: cfg.Name,
			Items:    newItems,
		})
	}

	slog.Info("Feed collected",
		"feed", cfg.ID,
		"duration", time.Since(start),
		"total", len(parsed.Items),
		"new", len(newItems))

	return parsed, nil
}

// reconcile persists parsed and returns the items that were not archived
// before, newest first. Archived items are never rewritten.
func (c *Collector) reconcile(ctx context.Context, cfg *feed.Config, parsed *feed.Feed) ([]feed.Item, error) {
	existing, err := c.feeds.GetFeedMeta(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	var newItems []feed.Item
	if existing == nil {
		if err := c.feeds.AddFeed(ctx, parsed, cfg.ID); err != nil {
			return nil, fmt.Errorf("failed to add feed: %w", err)
		}
		newItems = append(newItems, parsed.Items...)
	} else {
		if _, err := c.feeds.UpdateFeed(ctx, cfg.ID, parsed); err != nil {
			return nil, fmt.Errorf("failed to update feed: %w", err)
		}

		ids, err := c.items.GetFeedItemIDs(ctx, cfg.ID)
		if err != nil {
			return nil, err
		}
		known := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			known[id] = struct{}{}
		}

		for _, item := range parsed.Items {
			if _, ok := known[item.ID]; !ok {
				newItems = append(newItems, item)
			}
		}
	}

	newItems, err = c.dropArchivedElsewhere(ctx, cfg.ID, newItems)
	if err != nil {
		return nil, err
	}

	if err := c.items.AddFeedItems(ctx, newItems, cfg.ID); err != nil {
		return nil, fmt.Errorf("failed to add feed items: %w", err)
	}

	sort.SliceStable(newItems, func(i, j int) bool {
		return newItems[i].PubDate.After(newItems[j].PubDate)
	})

	return newItems, nil
}

// dropArchivedElsewhere removes items whose id is already archived under
// another feed. Item ids are unique across the whole archive.
func (c *Collector) dropArchivedElsewhere(ctx context.Context, feedID string, items []feed.Item) ([]feed.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	existing, err := c.items.GetExistingItemIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return items, nil
	}

	taken := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		taken[id] = struct{}{}
	}

	out := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if _, ok := taken[item.ID]; ok {
			slog.Debug("Dropping item archived under another feed", "feed", feedID, "item", item.ID)
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Collector) fail(cfg *feed.Config, err error) error {
	slog.Error("Failed to collect feed", "feed", cfg.Name, "url", cfg.URL, "error", err)
	return fmt.Errorf("failed to collect %s: %w", cfg.ID, err)
}

// uniqueItems keeps the first occurrence of each item id in document order.
func uniqueItems(items []feed.Item, feedID string) []feed.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.AssignID()
		}
		if _, ok := seen[item.ID]; ok {
			slog.Debug("Dropping item with colliding id", "feed", feedID, "item", item.ID)
			continue
		}
		seen[item.ID] = struct{}{}
		item.FeedID = feedID
		out = append(out, item)
	}
	return out
}
