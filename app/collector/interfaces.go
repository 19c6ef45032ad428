package collector

import (
	"context"

	"github.com/lysyi3m/rss-archive/app/feed"
)

type FeedStore interface {
	AddFeed(ctx context.Context, f *feed.Feed, feedID string) error
	GetFeed(ctx context.Context, feedID string) (*feed.Feed, error)
	GetFeedMeta(ctx context.Context, feedID string) (*feed.Feed, error)
	UpdateFeed(ctx context.Context, feedID string, f *feed.Feed) (bool, error)
}

type ItemStore interface {
	GetFeedItemIDs(ctx context.Context, feedID string) ([]string, error)
	GetExistingItemIDs(ctx context.Context, itemIDs []string) ([]string, error)
	AddFeedItems(ctx context.Context, items []feed.Item, feedID string) error
}

// DocumentParser turns a raw body into the canonical model.
type DocumentParser interface {
	Run(data []byte) (*feed.Feed, error)
}
