// Package events fans engine change events out to any number of subscribers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/pkg/metrics"
)

// Type names an event.
type Type string

const (
	CountingListChanged Type = "countingListChanged"
	CatalogChanged      Type = "catalogChanged"
	Conflict            Type = "conflict"
	SyncStatusChanged   Type = "syncStatusChanged"
	Connectivity        Type = "connectivity"
)

// Event is one change notification. Data is JSON friendly.
type Event struct {
	Type Type        `json:"type"`
	Data interface{} `json:"data"`
	At   time.Time   `json:"at"`
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Hub delivers events without ever blocking the publisher: a subscriber whose buffer is
// full misses the event and is told so through its dropped counter.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	buffer  int
	closed  bool
	metrics *metrics.Collectors
	logger  *zap.Logger
}

// Subscription is one consumer of the hub.
type Subscription struct {
	ID      string
	C       <-chan Event
	ch      chan Event
	mu      sync.Mutex
	dropped int
}

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// NewHub builds a hub. m may be nil.
func NewHub(buffer int, m *metrics.Collectors, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[string]*Subscription), buffer: buffer, metrics: m, logger: logger}
}

// Subscribe registers a consumer. The returned func unsubscribes and closes its channel.
func (h *Hub) Subscribe() (*Subscription, func()) {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return sub, func() {}
	}
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	h.logger.Debug("event subscriber added", zap.String("subscriber", sub.ID))

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[sub.ID]; ok {
				delete(h.subs, sub.ID)
				close(sub.ch)
			}
		})
	}
}

// Publish sends an event to every subscriber.
func (h *Hub) Publish(t Type, data interface{}) {
	ev := Event{Type: t, Data: data, At: time.Now()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.mu.Lock()
			sub.dropped++
			sub.mu.Unlock()
			h.metrics.EventDropped(string(t))
			h.logger.Warn("event dropped for slow subscriber", zap.String("subscriber", sub.ID), zap.String("type", string(t)))
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
