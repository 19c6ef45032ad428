package notify

import (
	"context"

	"github.com/lysyi3m/rss-archive/app/feed"
)

// Update announces the items a collect cycle archived for one feed,
// newest first.
type Update struct {
	FeedID   string      `json:"feedId"`
	FeedName string      `json:"feedName"`
	Items    []feed.Item `json:"items"`
}

// Publisher delivers updates to subscribers. Delivery is fire-and-forget:
// implementations log their own failures instead of returning them.
type Publisher interface {
	Publish(ctx context.Context, update Update)
}

// Publishers fans one update out to several publishers in order.
type Publishers []Publisher

func (p Publishers) Publish(ctx context.Context, update Update) {
	for _, publisher := range p {
		publisher.Publish(ctx, update)
	}
}
