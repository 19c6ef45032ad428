package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/rss-archive/app/feed"
	ext "github.com/mmcdole/gofeed/extensions"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func testFeed() *feed.Feed {
	return &feed.Feed{
		Version:     feed.VersionRSS20,
		Title:       "Test Feed",
		Link:        "https://example.com",
		Description: "Test Description",
		Language:    "en",
		Image:       &feed.Image{URL: "https://example.com/icon.png"},
	}
}

func testItem(guid, title string, pubDate time.Time) feed.Item {
	item := feed.Item{
		Title:       title,
		Description: title + " description",
		Link:        "https://example.com/" + guid,
		PubDate:     pubDate,
		GUID:        &feed.GUID{Value: guid, IsPermaLink: false},
		Categories:  []string{"news"},
	}
	item.AssignID()
	return item
}

func TestNewConnectionRequiresPath(t *testing.T) {
	if _, err := NewConnection(""); err == nil {
		t.Error("Expected error for empty database path")
	}
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected no error on second run, got: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected clean version 1, got %d (dirty=%v)", version, dirty)
	}
}

func TestFeedRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedRepository(setupTestDB(t))

	f, err := repo.GetFeed(ctx, "missing")
	if err != nil || f != nil {
		t.Fatalf("Expected nil feed and no error for missing feed, got %v, %v", f, err)
	}

	if err := repo.AddFeed(ctx, testFeed(), "test"); err != nil {
		t.Fatalf("Failed to add feed: %v", err)
	}

	err = repo.AddFeed(ctx, testFeed(), "test")
	if !errors.Is(err, ErrInvalidFeedID) {
		t.Errorf("Expected ErrInvalidFeedID on duplicate add, got: %v", err)
	}

	f, err = repo.GetFeed(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to get feed: %v", err)
	}
	if f == nil {
		t.Fatal("Expected feed, got nil")
	}
	if f.ID != "test" || f.Title != "Test Feed" || f.Version != feed.VersionRSS20 {
		t.Errorf("Unexpected feed: %+v", f)
	}
	if f.Image == nil || f.Image.URL != "https://example.com/icon.png" {
		t.Errorf("Expected image URL, got: %+v", f.Image)
	}
	if len(f.Items) != 0 {
		t.Errorf("Expected no items, got %d", len(f.Items))
	}

	updated := testFeed()
	updated.Title = "Renamed"
	updated.Image = nil
	ok, err := repo.UpdateFeed(ctx, "test", updated)
	if err != nil || !ok {
		t.Fatalf("Expected update of one row, got %v, %v", ok, err)
	}

	f, _ = repo.GetFeed(ctx, "test")
	if f.Title != "Renamed" || f.Image != nil {
		t.Errorf("Expected full-column update, got: %+v", f)
	}

	ok, err = repo.UpdateFeed(ctx, "missing", updated)
	if err != nil || ok {
		t.Errorf("Expected no change for missing feed, got %v, %v", ok, err)
	}

	if _, err := repo.UpdateFeed(ctx, "", updated); !errors.Is(err, ErrInvalidFeedID) {
		t.Errorf("Expected ErrInvalidFeedID for empty id, got: %v", err)
	}

	count, err := repo.GetFeedCount(ctx)
	if err != nil || count != 1 {
		t.Errorf("Expected 1 feed, got %d (%v)", count, err)
	}

	feeds, err := repo.ListFeeds(ctx)
	if err != nil || len(feeds) != 1 {
		t.Errorf("Expected 1 listed feed, got %d (%v)", len(feeds), err)
	}

	ok, err = repo.DeleteFeed(ctx, "test")
	if err != nil || !ok {
		t.Fatalf("Expected delete of one row, got %v, %v", ok, err)
	}
	f, _ = repo.GetFeed(ctx, "test")
	if f != nil {
		t.Error("Expected feed to be gone after delete")
	}
}

func TestAddFeedItems(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	feeds := NewFeedRepository(db)
	items := NewItemRepository(db)

	if err := feeds.AddFeed(ctx, testFeed(), "test"); err != nil {
		t.Fatalf("Failed to add feed: %v", err)
	}

	ids, err := items.GetFeedItemIDs(ctx, "test")
	if err != nil || ids == nil || len(ids) != 0 {
		t.Fatalf("Expected empty id list, got %v (%v)", ids, err)
	}

	if err := items.AddFeedItems(ctx, nil, "test"); err != nil {
		t.Errorf("Expected empty batch to be a no-op, got: %v", err)
	}

	now := time.Now()
	batch := []feed.Item{
		testItem("a", "Item A", now.Add(-2*time.Hour)),
		testItem("b", "Item B", now.Add(-1*time.Hour)),
	}
	batch[0].DC = &ext.DublinCoreExtension{Creator: []string{"Jane Doe"}}
	batch[0].Content = &feed.ContentExtension{Encoded: "<p>Full</p>"}

	if err := items.AddFeedItems(ctx, batch, "test"); err != nil {
		t.Fatalf("Failed to add items: %v", err)
	}

	ids, _ = items.GetFeedItemIDs(ctx, "test")
	if len(ids) != 2 {
		t.Fatalf("Expected 2 ids, got %d", len(ids))
	}

	item, found, err := items.GetFeedItem(ctx, batch[0].ID)
	if err != nil || !found {
		t.Fatalf("Expected item to be found, got %v (%v)", found, err)
	}
	if item.FeedID != "test" || item.Title != "Item A" || item.Read {
		t.Errorf("Unexpected item: %+v", item)
	}
	if item.GUID == nil || item.GUID.Value != "a" {
		t.Errorf("Expected guid to round-trip, got: %+v", item.GUID)
	}
	if len(item.Categories) != 1 || item.Categories[0] != "news" {
		t.Errorf("Expected categories to round-trip, got: %v", item.Categories)
	}
	if item.DC == nil || len(item.DC.Creator) != 1 || item.DC.Creator[0] != "Jane Doe" {
		t.Errorf("Expected dc creator, got: %+v", item.DC)
	}
	if item.Content == nil || item.Content.Encoded != "<p>Full</p>" {
		t.Errorf("Expected content extension, got: %+v", item.Content)
	}

	other, found, _ := items.GetFeedItem(ctx, batch[1].ID)
	if !found || other.DC != nil || other.Content != nil {
		t.Errorf("Expected item without extensions, got: %+v", other)
	}

	_, found, err = items.GetFeedItem(ctx, "ffffffff")
	if err != nil || found {
		t.Errorf("Expected not found without error, got %v (%v)", found, err)
	}
}

func TestAddFeedItemsRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	feeds := NewFeedRepository(db)
	items := NewItemRepository(db)

	if err := feeds.AddFeed(ctx, testFeed(), "test"); err != nil {
		t.Fatalf("Failed to add feed: %v", err)
	}

	now := time.Now()
	existing := testItem("a", "Item A", now)
	if err := items.AddFeedItems(ctx, []feed.Item{existing}, "test"); err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}

	batch := []feed.Item{testItem("c", "Item C", now), existing}
	err := items.AddFeedItems(ctx, batch, "test")
	if !errors.Is(err, ErrInvalidFeedItemID) {
		t.Fatalf("Expected ErrInvalidFeedItemID, got: %v", err)
	}

	count, _ := items.GetItemCount(ctx, "test")
	if count != 1 {
		t.Errorf("Expected row count unchanged at 1, got %d", count)
	}

	repeated := []feed.Item{testItem("d", "Item D", now), testItem("d", "Item D", now)}
	if err := items.AddFeedItems(ctx, repeated, "test"); !errors.Is(err, ErrInvalidFeedItemID) {
		t.Errorf("Expected ErrInvalidFeedItemID for repeated id, got: %v", err)
	}

	count, _ = items.GetItemCount(ctx, "test")
	if count != 1 {
		t.Errorf("Expected row count unchanged at 1, got %d", count)
	}
}

func TestGetFeedItemsOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	feeds := NewFeedRepository(db)
	items := NewItemRepository(db)

	for _, id := range []string{"one", "two"} {
		if err := feeds.AddFeed(ctx, testFeed(), id); err != nil {
			t.Fatalf("Failed to add feed: %v", err)
		}
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	older := testItem("old", "Old", base.Add(-48*time.Hour))
	older.InsertedAt = base.Add(-2 * time.Hour)
	newer := testItem("new", "New", base)
	newer.InsertedAt = base.Add(-1 * time.Hour)
	sameDate := testItem("same", "Same", base)
	sameDate.InsertedAt = base

	if err := items.AddFeedItems(ctx, []feed.Item{older, newer, sameDate}, "one"); err != nil {
		t.Fatalf("Failed to add items: %v", err)
	}
	if err := items.AddFeedItems(ctx, []feed.Item{testItem("x", "Other", base)}, "two"); err != nil {
		t.Fatalf("Failed to add items: %v", err)
	}

	got, err := items.GetFeedItems(ctx, ItemQuery{FeedID: "one", IncludeRead: true, Limit: Unlimited})
	if err != nil {
		t.Fatalf("Failed to get items: %v", err)
	}
	want := []string{sameDate.ID, newer.ID, older.ID}
	if len(got) != len(want) {
		t.Fatalf("Expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i].ID)
		}
	}

	got, _ = items.GetFeedItems(ctx, ItemQuery{FeedID: "one", IncludeRead: true, Limit: 1})
	if len(got) != 1 || got[0].ID != sameDate.ID {
		t.Errorf("Expected limit of 1 to return newest item, got %d items", len(got))
	}

	got, _ = items.GetFeedItems(ctx, ItemQuery{
		FeedID:      "one",
		Start:       base.Add(-90 * time.Minute),
		End:         base,
		IncludeRead: true,
	})
	if len(got) != 1 || got[0].ID != newer.ID {
		t.Errorf("Expected half-open window to select only %s, got %d items", newer.ID, len(got))
	}

	got, _ = items.GetFeedItems(ctx, ItemQuery{IncludeRead: true})
	if len(got) != 4 {
		t.Errorf("Expected 4 items across feeds, got %d", len(got))
	}

	ok, err := items.SetFeedItemRead(ctx, true, newer.ID)
	if err != nil || !ok {
		t.Fatalf("Expected read flag update, got %v (%v)", ok, err)
	}
	ok, _ = items.SetFeedItemRead(ctx, true, "ffffffff")
	if ok {
		t.Error("Expected no update for unknown item")
	}

	got, _ = items.GetFeedItems(ctx, ItemQuery{FeedID: "one"})
	if len(got) != 2 {
		t.Errorf("Expected read item to be excluded, got %d items", len(got))
	}

	counts, err := items.GetUnreadFeedItemCount(ctx)
	if err != nil {
		t.Fatalf("Failed to get unread counts: %v", err)
	}
	if counts["one"] != 2 || counts["two"] != 1 {
		t.Errorf("Unexpected unread counts: %v", counts)
	}

	n, err := items.SetFeedItemsRead(ctx, true, []string{older.ID, sameDate.ID, "ffffffff"})
	if err != nil || n != 2 {
		t.Errorf("Expected 2 rows updated, got %d (%v)", n, err)
	}

	counts, _ = items.GetUnreadFeedItemCount(ctx)
	if _, ok := counts["one"]; ok {
		t.Errorf("Expected no unread entry for feed one, got: %v", counts)
	}

	item, _, _ := items.GetFeedItem(ctx, older.ID)
	if item.Title != "Old" || !item.PubDate.Equal(older.PubDate) {
		t.Errorf("Expected only the read flag to change, got: %+v", item)
	}
}

func TestCleanFeedItems(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	feeds := NewFeedRepository(db)
	items := NewItemRepository(db)

	if err := feeds.AddFeed(ctx, testFeed(), "test"); err != nil {
		t.Fatalf("Failed to add feed: %v", err)
	}

	now := time.Now()
	stale := testItem("stale", "Stale", now.AddDate(0, -2, 0))
	stale.InsertedAt = now.AddDate(0, -2, 0)
	stale.DC = &ext.DublinCoreExtension{Creator: []string{"Old Author"}}
	fresh := testItem("fresh", "Fresh", now)

	if err := items.AddFeedItems(ctx, []feed.Item{stale, fresh}, "test"); err != nil {
		t.Fatalf("Failed to add items: %v", err)
	}

	n, err := items.CleanFeedItems(ctx, feed.Duration{Value: 1, Unit: feed.Months})
	if err != nil {
		t.Fatalf("Failed to clean items: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 deleted item, got %d", n)
	}

	ids, _ := items.GetFeedItemIDs(ctx, "test")
	if len(ids) != 1 || ids[0] != fresh.ID {
		t.Errorf("Expected only fresh item to remain, got %v", ids)
	}

	var dcRows int
	if err := db.QueryRow("SELECT COUNT(*) FROM ns_dc").Scan(&dcRows); err != nil {
		t.Fatalf("Failed to count ns_dc rows: %v", err)
	}
	if dcRows != 0 {
		t.Errorf("Expected dc rows to cascade with the item, got %d", dcRows)
	}

	if _, err := items.CleanFeedItems(ctx, feed.Duration{}); err == nil {
		t.Error("Expected error for zero retention")
	}
}

func TestDeleteFeedCascades(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	feeds := NewFeedRepository(db)
	items := NewItemRepository(db)

	if err := feeds.AddFeed(ctx, testFeed(), "test"); err != nil {
		t.Fatalf("Failed to add feed: %v", err)
	}

	item := testItem("a", "Item A", time.Now())
	item.Content = &feed.ContentExtension{Encoded: "body"}
	if err := items.AddFeedItems(ctx, []feed.Item{item}, "test"); err != nil {
		t.Fatalf("Failed to add items: %v", err)
	}

	if _, err := feeds.DeleteFeed(ctx, "test"); err != nil {
		t.Fatalf("Failed to delete feed: %v", err)
	}

	ids, err := items.GetFeedItemIDs(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to get item ids: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("Expected empty non-nil id list after feed delete, got %#v", ids)
	}

	for _, table := range []string{"feed_items", "ns_content"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("Failed to count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("Expected %s to be empty after feed delete, got %d rows", table, count)
		}
	}
}

func TestGetExistingItemIDs(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	feeds := NewFeedRepository(db)
	items := NewItemRepository(db)

	for _, id := range []string{"first", "second"} {
		if err := feeds.AddFeed(ctx, testFeed(), id); err != nil {
			t.Fatalf("Failed to add feed: %v", err)
		}
	}

	a := testItem("a", "Item A", time.Now())
	b := testItem("b", "Item B", time.Now())
	if err := items.AddFeedItems(ctx, []feed.Item{a}, "first"); err != nil {
		t.Fatalf("Failed to add items: %v", err)
	}
	if err := items.AddFeedItems(ctx, []feed.Item{b}, "second"); err != nil {
		t.Fatalf("Failed to add items: %v", err)
	}

	existing, err := items.GetExistingItemIDs(ctx, []string{a.ID, b.ID, "ffffffff"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(existing) != 2 {
		t.Errorf("Expected ids from both feeds, got %v", existing)
	}

	existing, err = items.GetExistingItemIDs(ctx, nil)
	if err != nil || existing == nil || len(existing) != 0 {
		t.Errorf("Expected empty non-nil result for no ids, got %#v (%v)", existing, err)
	}
}

func TestAddFeedItemsRequiresFeed(t *testing.T) {
	items := NewItemRepository(setupTestDB(t))

	err := items.AddFeedItems(context.Background(), []feed.Item{testItem("a", "A", time.Now())}, "missing")
	if err == nil {
		t.Error("Expected foreign key violation for unknown feed")
	}
}
