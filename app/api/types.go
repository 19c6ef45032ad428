package api

import (
	"context"

	"github.com/lysyi3m/rss-archive/app/database"
	"github.com/lysyi3m/rss-archive/app/feed"
	"github.com/lysyi3m/rss-archive/app/notify"
	"github.com/lysyi3m/rss-archive/app/scheduler"
	"github.com/lysyi3m/rss-archive/app/subscriptions"
)

type FeedStore interface {
	GetFeedMeta(ctx context.Context, feedID string) (*feed.Feed, error)
	ListFeeds(ctx context.Context) ([]feed.Feed, error)
	GetFeedCount(ctx context.Context) (int, error)
}

type ItemStore interface {
	GetFeedItems(ctx context.Context, q database.ItemQuery) ([]feed.Item, error)
	GetFeedItem(ctx context.Context, itemID string) (*feed.Item, bool, error)
	SetFeedItemRead(ctx context.Context, read bool, itemID string) (bool, error)
	SetFeedItemsRead(ctx context.Context, read bool, itemIDs []string) (int64, error)
	GetUnreadFeedItemCount(ctx context.Context) (map[string]int, error)
	GetItemCount(ctx context.Context, feedID string) (int, error)
}

type GeneratorInterface interface {
	Run(f *feed.Feed, items []feed.Item, selfLink string) string
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Reloader interface {
	Reload(ctx context.Context, feedID string) (subscriptions.ReloadAction, error)
}

type TaskLister interface {
	Tasks() []scheduler.TaskInfo
}

type Subscriber interface {
	Subscribe() (string, <-chan notify.Update)
	Unsubscribe(id string)
	SubscriberCount() int
}

type Handler struct {
	feedRepo    FeedStore
	itemRepo    ItemStore
	generator   GeneratorInterface
	configCache *feed.ConfigCache
	reloader    Reloader
	tasks       TaskLister
	hub         Subscriber
	baseURL     string
}

type readRequest struct {
	Read *bool `json:"read" binding:"required"`
}

type bulkReadRequest struct {
	IDs  []string `json:"ids" binding:"required"`
	Read *bool    `json:"read" binding:"required"`
}
