package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const defaultBuffer = 16

// Hub delivers updates to in-process subscribers such as SSE connections.
type Hub struct {
	subscribers map[string]chan Update
	buffer      int
	mu          sync.RWMutex
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subscribers: make(map[string]chan Update),
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
// The channel is closed by Unsubscribe.
func (h *Hub) Subscribe() (string, <-chan Update) {
	id := uuid.NewString()
	ch := make(chan Update, h.buffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	slog.Debug("Subscriber added", "subscriber", id)
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
		slog.Debug("Subscriber removed", "subscriber", id)
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish never blocks: a subscriber whose buffer is full misses the update.
func (h *Hub) Publish(ctx context.Context, update Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- update:
		default:
			slog.Warn("Subscriber buffer full, dropping update", "subscriber", id, "feed", update.FeedID)
		}
	}
}
