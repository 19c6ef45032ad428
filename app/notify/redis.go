package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lysyi3m/rss-archive/app/feed"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisPublisher forwards updates to a Redis pub/sub channel as JSON.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr, "channel", channel)

	return &RedisPublisher{client: client, channel: channel}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, update Update) {
	payload, err := encodeUpdate(update)
	if err != nil {
		slog.Error("Failed to encode update", "feed", update.FeedID, "error", err)
		return
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		slog.Error("Failed to publish update", "feed", update.FeedID, "channel", p.channel, "error", err)
	}
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func encodeUpdate(update Update) ([]byte, error) {
	if update.Items == nil {
		update.Items = []feed.Item{}
	}
	return json.Marshal(update)
}
