// Package notify fans completion events out to in-process subscribers.
package notify

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/formpoll/internal/model"
)

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 16

// Hub delivers each published event to every current subscriber. A
// subscriber whose buffer is full misses the event; Publish never blocks
// on a slow reader.
type Hub struct {
	mu      gosync.Mutex
	subs    map[uint64]chan model.Event
	nextID  uint64
	buffer  int
	dropped uint64
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[uint64]chan model.Event),
		buffer: defaultBuffer,
		logger: logger,
	}
}

// Publish stamps e with an ID and time when missing and hands it to every
// subscriber.
func (h *Hub) Publish(ctx context.Context, e model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped++
			h.logger.Warn("subscriber too slow, event dropped",
				"subscriber", id, "event", e.Name, "token", e.Token)
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan model.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan model.Event, h.buffer)
	h.subs[id] = ch

	var once gosync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
