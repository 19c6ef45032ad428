package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/rss-archive/app/feed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// Unlimited disables the row cap of an ItemQuery.
const Unlimited = 0

// ItemQuery selects archived items. Zero Start or End leaves that side of
// the [Start, End) insertion window open and an empty FeedID spans all feeds.
type ItemQuery struct {
	FeedID      string
	Start       time.Time
	End         time.Time
	IncludeRead bool
	Limit       int
}

type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `
	i.item_id, i.feed_id, i.title, i.description, COALESCE(i.link, ''), COALESCE(i.author, ''),
	i.category, COALESCE(i.comments, ''), i.pub_date, i.enclosure, i.guid, i.source, i.item_read, i.inserted_at,
	dc.item_id, dc.title, dc.creator, dc.subject, dc.description, dc.publisher, dc.contributor, dc.date,
	dc.type, dc.format, dc.identifier, dc.source, dc.language, dc.relation, dc.coverage, dc.rights,
	c.encoded`

const itemJoins = `
	FROM feed_items i
	LEFT JOIN ns_dc dc ON dc.item_id = i.item_id
	LEFT JOIN ns_content c ON c.item_id = i.item_id`

func (r *ItemRepository) GetFeedItemIDs(ctx context.Context, feedID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT item_id FROM feed_items WHERE feed_id = ?", feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed item ids: %w", err)
	}
	return scanItemIDs(rows)
}

// GetExistingItemIDs returns which of itemIDs are already archived under any feed.
func (r *ItemRepository) GetExistingItemIDs(ctx context.Context, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return []string{}, nil
	}

	args := make([]any, 0, len(itemIDs))
	for _, id := range itemIDs {
		args = append(args, id)
	}

	query := "SELECT item_id FROM feed_items WHERE item_id IN (" + placeholders(len(itemIDs)) + ")"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get existing item ids: %w", err)
	}
	return scanItemIDs(rows)
}

func scanItemIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item ids: %w", err)
	}

	return ids, nil
}

// AddFeedItems inserts items under feedID in a single transaction. If any id
// is already archived, or repeats within items, nothing is written and
// ErrInvalidFeedItemID is returned.
func (r *ItemRepository) AddFeedItems(ctx context.Context, items []feed.Item, feedID string) (err error) {
	if len(items) == 0 {
		return nil
	}
	if feedID == "" {
		return ErrInvalidFeedID
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now()
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidFeedItemID, i)
		}

		inserted, err := insertItem(ctx, tx, item, feedID, now)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("%w: item %s already exists", ErrInvalidFeedItemID, item.ID)
		}

		if err := insertDublinCore(ctx, tx, item.ID, item.DC); err != nil {
			return err
		}
		if err := insertContent(ctx, tx, item.ID, item.Content); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feed items: %w", err)
	}

	return nil
}

func insertItem(ctx context.Context, tx *sql.Tx, item *feed.Item, feedID string, now time.Time) (bool, error) {
	category, err := encodeJSON(item.Categories)
	if err != nil {
		return false, err
	}
	enclosure, err := encodeJSON(item.Enclosure)
	if err != nil {
		return false, err
	}
	guid, err := encodeJSON(item.GUID)
	if err != nil {
		return false, err
	}
	source, err := encodeJSON(item.Source)
	if err != nil {
		return false, err
	}

	insertedAt := item.InsertedAt
	if insertedAt.IsZero() {
		insertedAt = now
	}
	pubDate := item.PubDate
	if pubDate.IsZero() {
		pubDate = insertedAt
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO feed_items (item_id, feed_id, title, description, link, author, category, comments,
		                        pub_date, enclosure, guid, source, item_read, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO NOTHING
	`, item.ID, feedID, item.Title, item.Description, nullString(item.Link), nullString(item.Author),
		category, nullString(item.Comments), toMillis(pubDate), enclosure, guid, source,
		readFlag(item.Read), toMillis(insertedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert feed item %s: %w", item.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert feed item %s: %w", item.ID, err)
	}

	return n == 1, nil
}

func insertDublinCore(ctx context.Context, tx *sql.Tx, itemID string, dc *ext.DublinCoreExtension) error {
	if dc == nil {
		return nil
	}

	fields := [][]string{
		dc.Title, dc.Creator, dc.Subject, dc.Description, dc.Publisher, dc.Contributor, dc.Date,
		dc.Type, dc.Format, dc.Identifier, dc.Source, dc.Language, dc.Relation, dc.Coverage, dc.Rights,
	}

	args := make([]any, 0, len(fields)+1)
	args = append(args, itemID)
	for _, field := range fields {
		column, err := encodeJSON(field)
		if err != nil {
			return err
		}
		args = append(args, column)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO ns_dc (item_id, title, creator, subject, description, publisher, contributor, date,
		                   type, format, identifier, source, language, relation, coverage, rights)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert dc extension for %s: %w", itemID, err)
	}

	return nil
}

func insertContent(ctx context.Context, tx *sql.Tx, itemID string, content *feed.ContentExtension) error {
	if content == nil || content.Encoded == "" {
		return nil
	}

	_, err := tx.ExecContext(ctx, "INSERT INTO ns_content (item_id, encoded) VALUES (?, ?)", itemID, content.Encoded)
	if err != nil {
		return fmt.Errorf("failed to insert content extension for %s: %w", itemID, err)
	}

	return nil
}

// GetFeedItems returns the items matching q, newest publication first.
func (r *ItemRepository) GetFeedItems(ctx context.Context, q ItemQuery) ([]feed.Item, error) {
	var (
		where []string
		args  []any
	)

	if q.FeedID != "" {
		where = append(where, "i.feed_id = ?")
		args = append(args, q.FeedID)
	}
	if !q.Start.IsZero() {
		where = append(where, "i.inserted_at >= ?")
		args = append(args, toMillis(q.Start))
	}
	if !q.End.IsZero() {
		where = append(where, "i.inserted_at < ?")
		args = append(args, toMillis(q.End))
	}
	if !q.IncludeRead {
		where = append(where, "i.item_read = 'N'")
	}

	query := "SELECT " + itemColumns + itemJoins
	if len(where) > 0 {
		query += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\tORDER BY i.pub_date DESC, i.inserted_at DESC"
	if q.Limit > 0 {
		query += "\n\tLIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed items: %w", err)
	}
	defer rows.Close()

	items := []feed.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

// GetFeedItem looks up a single item. The bool is false when no item has itemID.
func (r *ItemRepository) GetFeedItem(ctx context.Context, itemID string) (*feed.Item, bool, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+itemColumns+itemJoins+"\n\tWHERE i.item_id = ?", itemID)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get feed item: %w", err)
	}

	return item, true, nil
}

func (r *ItemRepository) SetFeedItemRead(ctx context.Context, read bool, itemID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE feed_items SET item_read = ? WHERE item_id = ?", readFlag(read), itemID)
	if err != nil {
		return false, fmt.Errorf("failed to set item read state: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to set item read state: %w", err)
	}

	return n == 1, nil
}

// SetFeedItemsRead updates the read flag of every listed item and returns
// how many rows matched.
func (r *ItemRepository) SetFeedItemsRead(ctx context.Context, read bool, itemIDs []string) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(itemIDs)+1)
	args = append(args, readFlag(read))
	for _, id := range itemIDs {
		args = append(args, id)
	}

	query := "UPDATE feed_items SET item_read = ? WHERE item_id IN (" + placeholders(len(itemIDs)) + ")"
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to set items read state: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to set items read state: %w", err)
	}

	return n, nil
}

// CleanFeedItems deletes every item inserted before now minus maxAge and
// returns the number of deleted items.
func (r *ItemRepository) CleanFeedItems(ctx context.Context, maxAge feed.Duration) (int64, error) {
	if err := maxAge.Validate(); err != nil {
		return 0, fmt.Errorf("invalid retention: %w", err)
	}

	cutoff := maxAge.Before(time.Now())
	result, err := r.db.ExecContext(ctx, "DELETE FROM feed_items WHERE inserted_at < ?", toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to clean feed items: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clean feed items: %w", err)
	}

	return n, nil
}

// GetUnreadFeedItemCount returns the number of unread items per feed id.
// Feeds without unread items are absent from the map.
func (r *ItemRepository) GetUnreadFeedItemCount(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT feed_id, COUNT(*)
		FROM feed_items
		WHERE item_read = 'N'
		GROUP BY feed_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get unread counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			feedID string
			count  int
		)
		if err := rows.Scan(&feedID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan unread count: %w", err)
		}
		counts[feedID] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unread counts: %w", err)
	}

	return counts, nil
}

// GetItemCount counts the items of one feed, or of every feed when feedID is empty.
func (r *ItemRepository) GetItemCount(ctx context.Context, feedID string) (int, error) {
	query, args := "SELECT COUNT(*) FROM feed_items", []any{}
	if feedID != "" {
		query += " WHERE feed_id = ?"
		args = append(args, feedID)
	}

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

func scanItem(s scanner) (*feed.Item, error) {
	var (
		item                              feed.Item
		category, enclosure, guid, source sql.NullString
		pubDate, insertedAt               int64
		read                              string
		dcItemID, encoded                 sql.NullString
		dcColumns                         [15]sql.NullString
	)

	dest := []any{
		&item.ID, &item.FeedID, &item.Title, &item.Description, &item.Link, &item.Author,
		&category, &item.Comments, &pubDate, &enclosure, &guid, &source, &read, &insertedAt,
		&dcItemID,
	}
	for i := range dcColumns {
		dest = append(dest, &dcColumns[i])
	}
	dest = append(dest, &encoded)

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	item.PubDate = fromMillis(pubDate)
	item.InsertedAt = fromMillis(insertedAt)
	item.Read = read == "Y"

	if err := decodeJSON(category, &item.Categories); err != nil {
		return nil, err
	}
	if err := decodeJSON(enclosure, &item.Enclosure); err != nil {
		return nil, err
	}
	if err := decodeJSON(guid, &item.GUID); err != nil {
		return nil, err
	}
	if err := decodeJSON(source, &item.Source); err != nil {
		return nil, err
	}

	if dcItemID.Valid {
		dc := &ext.DublinCoreExtension{}
		fields := []*[]string{
			&dc.Title, &dc.Creator, &dc.Subject, &dc.Description, &dc.Publisher, &dc.Contributor, &dc.Date,
			&dc.Type, &dc.Format, &dc.Identifier, &dc.Source, &dc.Language, &dc.Relation, &dc.Coverage, &dc.Rights,
		}
		for i, field := range fields {
			if err := decodeJSON(dcColumns[i], field); err != nil {
				return nil, err
			}
		}
		item.DC = dc
	}

	if encoded.Valid {
		item.Content = &feed.ContentExtension{Encoded: encoded.String}
	}

	return &item, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
