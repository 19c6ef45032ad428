package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/rss-archive/app/database"
	"github.com/lysyi3m/rss-archive/app/feed"
	"github.com/lysyi3m/rss-archive/app/notify"
	"github.com/lysyi3m/rss-archive/app/parser"
)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []notify.Update
}

func (r *recordingPublisher) Publish(ctx context.Context, update notify.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

type testItem struct {
	guid, title, pubDate string
}

func rssDocument(items ...testItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel>`)
	b.WriteString(`<title>Test Feed</title><link>https://example.com</link><description>Test Description</description>`)
	for _, item := range items {
		b.WriteString("<item>")
		if item.guid != "" {
			fmt.Fprintf(&b, "<guid>%s</guid>", item.guid)
		}
		fmt.Fprintf(&b, "<title>%s</title><description>%s body</description>", item.title, item.title)
		if item.pubDate != "" {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>", item.pubDate)
		}
		b.WriteString("</item>")
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

type feedServer struct {
	*httptest.Server
	mu   sync.Mutex
	body string
	etag string
	hits int
}

func newFeedServer(t *testing.T, body string) *feedServer {
	t.Helper()
	fs := &feedServer{body: body}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.hits++

		if r.Header.Get("User-Agent") != "RSS-Archive/test" {
			t.Errorf("Expected User-Agent header, got %q", r.Header.Get("User-Agent"))
		}
		if fs.etag != "" {
			if r.Header.Get("If-None-Match") == fs.etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", fs.etag)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, fs.body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) set(body, etag string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.body = body
	fs.etag = etag
}

type testEnv struct {
	collector *Collector
	feeds     *database.FeedRepository
	items     *database.ItemRepository
	publisher *recordingPublisher
}

func setupCollector(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	env := &testEnv{
		feeds:     database.NewFeedRepository(db),
		items:     database.NewItemRepository(db),
		publisher: &recordingPublisher{},
	}
	env.collector = NewCollector(NewFetcher("RSS-Archive/test"), parser.DefaultRegistry(), env.feeds, env.items, env.publisher)
	return env
}

func testConfig(url string) *feed.Config {
	return &feed.Config{
		ID:           "test",
		Name:         "Test",
		URL:          url,
		Enabled:      true,
		PollInterval: feed.Duration{Value: 5, Unit: feed.Minutes},
		Timeout:      5,
	}
}

func TestCollectFirstPoll(t *testing.T) {
	env := setupCollector(t)
	server := newFeedServer(t, rssDocument(
		testItem{"a", "Older", "Mon, 01 Jan 2024 10:00:00 GMT"},
		testItem{"b", "Newer", "Tue, 02 Jan 2024 10:00:00 GMT"},
	))
	ctx := context.Background()

	f, err := env.collector.Collect(ctx, testConfig(server.URL))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if f.ID != "test" || f.Title != "Test Feed" || len(f.Items) != 2 {
		t.Errorf("Unexpected collected feed: %+v", f)
	}

	archived, err := env.feeds.GetFeed(ctx, "test")
	if err != nil || archived == nil {
		t.Fatalf("Expected archived feed, got %v (%v)", archived, err)
	}
	if len(archived.Items) != 2 {
		t.Errorf("Expected 2 archived items, got %d", len(archived.Items))
	}

	if env.publisher.count() != 1 {
		t.Fatalf("Expected 1 update, got %d", env.publisher.count())
	}
	update := env.publisher.updates[0]
	if update.FeedID != "test" || update.FeedName != "Test" || len(update.Items) != 2 {
		t.Errorf("Unexpected update: %+v", update)
	}
	if update.Items[0].Title != "Newer" || update.Items[1].Title != "Older" {
		t.Errorf("Expected update items newest first, got %s, %s", update.Items[0].Title, update.Items[1].Title)
	}
}

func TestCollectIsIdempotent(t *testing.T) {
	env := setupCollector(t)
	server := newFeedServer(t, rssDocument(testItem{"a", "First", ""}))
	ctx := context.Background()
	cfg := testConfig(server.URL)

	if _, err := env.collector.Collect(ctx, cfg); err != nil {
		t.Fatalf("First collect failed: %v", err)
	}
	if _, err := env.collector.Collect(ctx, cfg); err != nil {
		t.Fatalf("Second collect failed: %v", err)
	}

	count, _ := env.items.GetItemCount(ctx, "test")
	if count != 1 {
		t.Errorf("Expected 1 archived item, got %d", count)
	}
	if env.publisher.count() != 1 {
		t.Errorf("Expected no update for unchanged feed, got %d updates", env.publisher.count())
	}
}

func TestCollectInsertsOnlyNewItems(t *testing.T) {
	env := setupCollector(t)
	server := newFeedServer(t, rssDocument(testItem{"a", "First", ""}))
	ctx := context.Background()
	cfg := testConfig(server.URL)

	if _, err := env.collector.Collect(ctx, cfg); err != nil {
		t.Fatalf("First collect failed: %v", err)
	}

	server.set(rssDocument(testItem{"b", "Second", ""}, testItem{"a", "First", ""}), "")
	if _, err := env.collector.Collect(ctx, cfg); err != nil {
		t.Fatalf("Second collect failed: %v", err)
	}

	count, _ := env.items.GetItemCount(ctx, "test")
	if count != 2 {
		t.Errorf("Expected 2 archived items, got %d", count)
	}
	if env.publisher.count() != 2 {
		t.Fatalf("Expected 2 updates, got %d", env.publisher.count())
	}
	second := env.publisher.updates[1]
	if len(second.Items) != 1 || second.Items[0].Title != "Second" {
		t.Errorf("Expected only the new item in the update, got %+v", second.Items)
	}
}

func TestCollectDoesNotRewriteArchivedItems(t *testing.T) {
	env := setupCollector(t)
	server := newFeedServer(t, rssDocument(testItem{"a", "Original", ""}))
	ctx := context.Background()
	cfg := testConfig(server.URL)

	if _, err := env.collector.Collect(ctx, cfg); err != nil {
		t.Fatalf("First collect failed: %v", err)
	}

	server.set(rssDocument(testItem{"a", "Edited", ""}), "")
	if _, err := env.collector.Collect(ctx, cfg); err != nil {
		t.Fatalf("Second collect failed: %v", err)
	}

	item, found, err := env.items.GetFeedItem(ctx, feed.ItemID("a", "", ""))
	if err != nil || !found {
		t.Fatalf("Expected archived item, got %v (%v)", found, err)
	}
	if item.Title != "Original" {
		t.Errorf("Expected archived item to keep its first content, got %q", item.Title)
	}
}

func TestCollectCollidingItemsWithoutGUID(t *testing.T) {
	env := setupCollector(t)
	server := newFeedServer(t, rssDocument(testItem{"", "Same", ""}, testItem{"", "Same", ""}))
	ctx := context.Background()

	f, err := env.collector.Collect(ctx, testConfig(server.URL))
	if err != nil {
		t.Fatalf("Expected colliding items to be collapsed, got: %v", err)
	}
	if len(f.Items) != 1 {
		t.Errorf("Expected 1 item after collapsing collision, got %d", len(f.Items))
	}

	count, _ := env.items.GetItemCount(ctx, "test")
	if count != 1 {
		t.Errorf("Expected 1 archived item, got %d", count)
	}
}

func TestCollectNotModified(t *testing.T) {
	env := setupCollector(t)
	server := newFeedServer(t, rssDocument(testItem{"a", "First", ""}))
	server.set(rssDocument(testItem{"a", "First", ""}), `"v1"`)
	ctx := context.Background()
	cfg := testConfig(server.URL)

	if _, err := env.collector.Collect(ctx, cfg); err != nil {
		t.Fatalf("First collect failed: %v", err)
	}

	f, err := env.collector.Collect(ctx, cfg)
	if err != nil {
		t.Fatalf("Second collect failed: %v", err)
	}
	if f == nil || len(f.Items) != 1 {
		t.Errorf("Expected archived feed on 304, got %+v", f)
	}
	if env.publisher.count() != 1 {
		t.Errorf("Expected no update on 304, got %d updates", env.publisher.count())
	}
}

func TestCollectParserNotFound(t *testing.T) {
	env := setupCollector(t)
	server := newFeedServer(t, `<feed xmlns="http://www.w3.org/2005/Atom"><title>Atom</title></feed>`)
	ctx := context.Background()

	_, err := env.collector.Collect(ctx, testConfig(server.URL))
	if !errors.Is(err, parser.ErrParserNotFound) {
		t.Errorf("Expected ErrParserNotFound, got: %v", err)
	}

	f, _ := env.feeds.GetFeed(ctx, "test")
	if f != nil {
		t.Error("Expected no feed row after failed collect")
	}
}

func TestCollectMalformedDocument(t *testing.T) {
	env := setupCollector(t)
	server := newFeedServer(t, `<rss version="2.0"><channel>`)

	_, err := env.collector.Collect(context.Background(), testConfig(server.URL))
	var parseErr *parser.ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("Expected ParseError, got: %v", err)
	}
}

func TestCollectHTTPErrorIsTransport(t *testing.T) {
	env := setupCollector(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := env.collector.Collect(context.Background(), testConfig(server.URL))
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got: %v", err)
	}
	if fetchErr.Kind != Transport {
		t.Errorf("Expected transport error, got %s", fetchErr.Kind)
	}
}

func TestCollectHostUnreachable(t *testing.T) {
	env := setupCollector(t)
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := env.collector.Collect(context.Background(), testConfig(url))
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got: %v", err)
	}
	if fetchErr.Kind != HostUnreachable {
		t.Errorf("Expected host unreachable, got %s: %v", fetchErr.Kind, fetchErr.Err)
	}
}

// gatedServer blocks every request until release is closed.
type gatedServer struct {
	*httptest.Server
	hits    atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newGatedServer(t *testing.T, body string) *gatedServer {
	t.Helper()
	gs := &gatedServer{started: make(chan struct{}, 8), release: make(chan struct{})}
	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gs.hits.Add(1)
		gs.started <- struct{}{}
		<-gs.release
		fmt.Fprint(w, body)
	}))
	t.Cleanup(gs.Close)
	return gs
}

func TestCollectSameFeedConcurrently(t *testing.T) {
	env := setupCollector(t)
	server := newGatedServer(t, rssDocument(testItem{"a", "First", ""}, testItem{"b", "Second", ""}))
	cfg := testConfig(server.URL)

	errs := make(chan error, 2)
	collect := func() {
		_, err := env.collector.Collect(context.Background(), cfg)
		errs <- err
	}

	go collect()
	<-server.started
	go collect()

	// let the second call join the in-flight cycle
	time.Sleep(100 * time.Millisecond)
	close(server.release)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Expected no error, got: %v", err)
			if errors.Is(err, database.ErrInvalidFeedItemID) {
				t.Error("Expected overlapping collects not to insert the same items twice")
			}
		}
	}

	if hits := server.hits.Load(); hits != 1 {
		t.Errorf("Expected 1 fetch, got %d", hits)
	}
	if env.publisher.count() != 1 {
		t.Errorf("Expected 1 update, got %d", env.publisher.count())
	}
	count, _ := env.items.GetItemCount(context.Background(), "test")
	if count != 2 {
		t.Errorf("Expected 2 archived items, got %d", count)
	}
}

func TestCollectJoinedCallHonoursOwnContext(t *testing.T) {
	env := setupCollector(t)
	server := newGatedServer(t, rssDocument(testItem{"a", "First", ""}))
	cfg := testConfig(server.URL)

	first := make(chan error, 1)
	go func() {
		_, err := env.collector.Collect(context.Background(), cfg)
		first <- err
	}()
	<-server.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := env.collector.Collect(ctx, cfg); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected joined call to stop at its own deadline, got: %v", err)
	}

	close(server.release)
	if err := <-first; err != nil {
		t.Errorf("Expected first call to complete, got: %v", err)
	}
	if hits := server.hits.Load(); hits != 1 {
		t.Errorf("Expected 1 fetch, got %d", hits)
	}
}

func TestCollectSharedGUIDAcrossFeeds(t *testing.T) {
	env := setupCollector(t)
	ctx := context.Background()

	site := newFeedServer(t, rssDocument(testItem{"shared", "Shared", ""}))
	if _, err := env.collector.Collect(ctx, testConfig(site.URL)); err != nil {
		t.Fatalf("First feed collect failed: %v", err)
	}

	category := newFeedServer(t, rssDocument(testItem{"shared", "Shared", ""}, testItem{"own", "Own", ""}))
	other := testConfig(category.URL)
	other.ID = "other"
	other.Name = "Other"

	for poll := 1; poll <= 2; poll++ {
		if _, err := env.collector.Collect(ctx, other); err != nil {
			t.Fatalf("Poll %d of second feed failed: %v", poll, err)
		}
	}

	ids, _ := env.items.GetFeedItemIDs(ctx, "other")
	if len(ids) != 1 || ids[0] != feed.ItemID("own", "", "") {
		t.Errorf("Expected only the feed's own item under other, got %v", ids)
	}

	item, found, _ := env.items.GetFeedItem(ctx, feed.ItemID("shared", "", ""))
	if !found || item.FeedID != "test" {
		t.Errorf("Expected shared item to stay under its first feed, got %+v", item)
	}
}
