package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lysyi3m/rss-archive/app/feed"
)

type FeedRepository struct {
	db    *DB
	items *ItemRepository
}

func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db, items: NewItemRepository(db)}
}

// AddFeed inserts the channel metadata of f under feedID. It returns
// ErrInvalidFeedID when a feed with that id is already archived.
func (r *FeedRepository) AddFeed(ctx context.Context, f *feed.Feed, feedID string) error {
	if feedID == "" {
		return ErrInvalidFeedID
	}

	insertedAt := f.InsertedAt
	if insertedAt.IsZero() {
		insertedAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO feeds (feed_id, version, title, link, description, image_url, language, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id) DO NOTHING
	`, feedID, string(f.Version), f.Title, f.Link, f.Description,
		nullString(imageURL(f)), nullString(f.Language), toMillis(insertedAt))
	if err != nil {
		return fmt.Errorf("failed to add feed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to add feed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: feed %s already exists", ErrInvalidFeedID, feedID)
	}

	return nil
}

// GetFeed returns the archived feed with all of its items, or nil when the
// feed has never been collected.
func (r *FeedRepository) GetFeed(ctx context.Context, feedID string) (*feed.Feed, error) {
	f, err := r.getFeedRow(ctx, feedID)
	if err != nil || f == nil {
		return f, err
	}

	items, err := r.items.GetFeedItems(ctx, ItemQuery{FeedID: feedID, IncludeRead: true, Limit: Unlimited})
	if err != nil {
		return nil, err
	}
	f.Items = items

	return f, nil
}

// GetFeedMeta returns the channel metadata without items.
func (r *FeedRepository) GetFeedMeta(ctx context.Context, feedID string) (*feed.Feed, error) {
	return r.getFeedRow(ctx, feedID)
}

// UpdateFeed overwrites the channel metadata of an archived feed and reports
// whether exactly one row changed.
func (r *FeedRepository) UpdateFeed(ctx context.Context, feedID string, f *feed.Feed) (bool, error) {
	if feedID == "" {
		return false, ErrInvalidFeedID
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET version = ?, title = ?, link = ?, description = ?, image_url = ?, language = ?
		WHERE feed_id = ?
	`, string(f.Version), f.Title, f.Link, f.Description,
		nullString(imageURL(f)), nullString(f.Language), feedID)
	if err != nil {
		return false, fmt.Errorf("failed to update feed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update feed: %w", err)
	}

	return n == 1, nil
}

func (r *FeedRepository) DeleteFeed(ctx context.Context, feedID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM feeds WHERE feed_id = ?", feedID)
	if err != nil {
		return false, fmt.Errorf("failed to delete feed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete feed: %w", err)
	}

	return n == 1, nil
}

// ListFeeds returns the metadata of every archived feed ordered by title.
func (r *FeedRepository) ListFeeds(ctx context.Context) ([]feed.Feed, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT feed_id, version, title, link, description, COALESCE(image_url, ''), COALESCE(language, ''), inserted_at
		FROM feeds
		ORDER BY title, feed_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	feeds := []feed.Feed{}
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *FeedRepository) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

func (r *FeedRepository) getFeedRow(ctx context.Context, feedID string) (*feed.Feed, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT feed_id, version, title, link, description, COALESCE(image_url, ''), COALESCE(language, ''), inserted_at
		FROM feeds
		WHERE feed_id = ?
	`, feedID)

	f, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return f, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(s scanner) (*feed.Feed, error) {
	var (
		f          feed.Feed
		version    string
		image      string
		insertedAt int64
	)

	if err := s.Scan(&f.ID, &version, &f.Title, &f.Link, &f.Description, &image, &f.Language, &insertedAt); err != nil {
		return nil, err
	}

	f.Version = feed.Version(version)
	f.InsertedAt = fromMillis(insertedAt)
	if image != "" {
		f.Image = &feed.Image{URL: image}
	}

	return &f, nil
}

func imageURL(f *feed.Feed) string {
	if f.Image == nil {
		return ""
	}
	return f.Image.URL
}
