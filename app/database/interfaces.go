package database

import (
	"context"

	"github.com/lysyi3m/rss-archive/app/feed"
)

type FeedStore interface {
	AddFeed(ctx context.Context, f *feed.Feed, feedID string) error
	GetFeed(ctx context.Context, feedID string) (*feed.Feed, error)
	GetFeedMeta(ctx context.Context, feedID string) (*feed.Feed, error)
	UpdateFeed(ctx context.Context, feedID string, f *feed.Feed) (bool, error)
	DeleteFeed(ctx context.Context, feedID string) (bool, error)
	ListFeeds(ctx context.Context) ([]feed.Feed, error)
	GetFeedCount(ctx context.Context) (int, error)
}

type ItemStore interface {
	GetFeedItemIDs(ctx context.Context, feedID string) ([]string, error)
	GetExistingItemIDs(ctx context.Context, itemIDs []string) ([]string, error)
	AddFeedItems(ctx context.Context, items []feed.Item, feedID string) error
	GetFeedItems(ctx context.Context, q ItemQuery) ([]feed.Item, error)
	GetFeedItem(ctx context.Context, itemID string) (*feed.Item, bool, error)
	SetFeedItemRead(ctx context.Context, read bool, itemID string) (bool, error)
	SetFeedItemsRead(ctx context.Context, read bool, itemIDs []string) (int64, error)
	CleanFeedItems(ctx context.Context, maxAge feed.Duration) (int64, error)
	GetUnreadFeedItemCount(ctx context.Context) (map[string]int, error)
	GetItemCount(ctx context.Context, feedID string) (int, error)
}

var (
	_ FeedStore = (*FeedRepository)(nil)
	_ ItemStore = (*ItemRepository)(nil)
)
