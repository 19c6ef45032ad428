package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-archive/app/database"
	"github.com/lysyi3m/rss-archive/app/feed"
	"github.com/lysyi3m/rss-archive/app/scheduler"
)

const (
	defaultFeedItems = 50
	keepAlive        = 30 * time.Second
)

func NewHandler(configCache *feed.ConfigCache, feedRepo FeedStore, itemRepo ItemStore,
	generator GeneratorInterface, reloader Reloader, tasks TaskLister, hub Subscriber, baseURL string) *Handler {
	return &Handler{
		feedRepo:    feedRepo,
		itemRepo:    itemRepo,
		generator:   generator,
		configCache: configCache,
		reloader:    reloader,
		tasks:       tasks,
		hub:         hub,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// GetFeed renders the archived feed as RSS 2.0, newest items first.
func (h *Handler) GetFeed(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	limit := defaultFeedItems
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.Status(http.StatusBadRequest)
			return
		}
		limit = n
	}

	f, err := h.feedRepo.GetFeedMeta(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if f == nil {
		c.Status(http.StatusNotFound)
		return
	}

	items, err := h.itemRepo.GetFeedItems(c.Request.Context(), database.ItemQuery{
		FeedID:      id,
		IncludeRead: true,
		Limit:       limit,
	})
	if err != nil {
		slog.Error("Database error", "operation", "get_items", "feed", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	selfLink := ""
	if h.baseURL != "" {
		selfLink = h.baseURL + "/feeds/" + id
	}
	rss := h.generator.Run(f, items, selfLink)

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Feed-Name", id)
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(c.Request.Context()); err == nil {
		health["feeds"] = feedCount
	}
	if itemCount, err := h.itemRepo.GetItemCount(c.Request.Context(), ""); err == nil {
		health["items"] = itemCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()
	health["scheduled_tasks"] = len(h.tasks.Tasks())
	health["subscribers"] = h.hub.SubscriberCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	ctx := c.Request.Context()

	archived, err := h.feedRepo.ListFeeds(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	unread, err := h.itemRepo.GetUnreadFeedItemCount(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "unread_count", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	tasks := make(map[string]scheduler.TaskInfo)
	for _, info := range h.tasks.Tasks() {
		tasks[info.FeedID] = info
	}

	feeds := make([]map[string]interface{}, 0, len(archived))
	for _, f := range archived {
		feedInfo := map[string]interface{}{
			"feedId":     f.ID,
			"title":      f.Title,
			"link":       f.Link,
			"insertedAt": f.InsertedAt,
			"unread":     unread[f.ID],
		}
		if cfg, err := h.configCache.GetConfig(f.ID); err == nil {
			feedInfo["name"] = cfg.Name
			feedInfo["url"] = cfg.URL
			feedInfo["poll_interval"] = cfg.PollInterval.String()
		}
		if info, ok := tasks[f.ID]; ok {
			feedInfo["state"] = info.State
			if !info.Next.IsZero() {
				feedInfo["next_run"] = info.Next
			}
		}
		feeds = append(feeds, feedInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIGetFeed(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	f, err := h.feedRepo.GetFeedMeta(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	details := map[string]interface{}{"feed": f}
	if count, err := h.itemRepo.GetItemCount(ctx, id); err == nil {
		details["items"] = count
	}
	if cfg, err := h.configCache.GetConfig(id); err == nil {
		details["config"] = map[string]interface{}{
			"name":          cfg.Name,
			"url":           cfg.URL,
			"enabled":       cfg.Enabled,
			"poll_interval": cfg.PollInterval.String(),
			"timeout":       (time.Duration(cfg.Timeout) * time.Second).String(),
		}
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) APIReloadFeed(c *gin.Context) {
	id := c.Param("id")

	action, err := h.reloader.Reload(c.Request.Context(), id)
	if err != nil {
		slog.Error("Feed reload failed", "feed", id, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Reload failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"feedId": id, "action": action})
}

// APIListItems accepts feed, since, until, include_read and limit query
// parameters. since and until bound the archive time of an item.
func (h *Handler) APIListItems(c *gin.Context) {
	q := database.ItemQuery{
		FeedID: c.Query("feed"),
		Limit:  database.Unlimited,
	}

	var err error
	if q.Start, err = parseTimeParam(c, "since"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since parameter"})
		return
	}
	if q.End, err = parseTimeParam(c, "until"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid until parameter"})
		return
	}
	if raw := c.Query("include_read"); raw != "" {
		if q.IncludeRead, err = strconv.ParseBool(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid include_read parameter"})
			return
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if q.Limit, err = strconv.Atoi(raw); err != nil || q.Limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
	}

	items, err := h.itemRepo.GetFeedItems(c.Request.Context(), q)
	if err != nil {
		slog.Error("Database error", "operation", "get_items", "feed", q.FeedID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) APIGetItem(c *gin.Context) {
	id := c.Param("id")

	item, found, err := h.itemRepo.GetFeedItem(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "item", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *Handler) APISetItemRead(c *gin.Context) {
	id := c.Param("id")

	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updated, err := h.itemRepo.SetFeedItemRead(c.Request.Context(), *req.Read, id)
	if err != nil {
		slog.Error("Database error", "operation", "set_item_read", "item", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"itemId": id, "read": *req.Read})
}

func (h *Handler) APISetItemsRead(c *gin.Context) {
	var req bulkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updated, err := h.itemRepo.SetFeedItemsRead(c.Request.Context(), *req.Read, req.IDs)
	if err != nil {
		slog.Error("Database error", "operation", "set_items_read", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated, "read": *req.Read})
}

// APIEvents streams every notify.Update as a server-sent "update" event until
// the client goes away.
func (h *Handler) APIEvents(c *gin.Context) {
	id, updates := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	slog.Debug("Event stream opened", "subscriber", id)
	c.Stream(func(w io.Writer) bool {
		select {
		case update, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("update", update)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	slog.Debug("Event stream closed", "subscriber", id)
}

var errInvalidTime = errors.New("invalid time")

func parseTimeParam(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, errInvalidTime
	}
	return t, nil
}
