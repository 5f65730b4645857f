package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventSessionOpened      EventType = "session.opened"
	EventSessionOpenFailed  EventType = "session.open_failed"
	EventSessionClosed      EventType = "session.closed"
	EventSessionCloseFailed EventType = "session.close_failed"

	EventNavigationCompleted EventType = "navigation.completed"
	EventNavigationFailed    EventType = "navigation.failed"
)

// Event describes bot lifecycle telemetry.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Subscribers int
	Published   uint64
	Dropped     uint64
}

// Hub fan-outs telemetry events to any number of subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
	bufferSize  int

	countMu   sync.Mutex
	published uint64
	dropped   uint64
}

// NewHub constructs a telemetry hub.
func NewHub() *Hub {
	return NewHubWithBuffer(64)
}

// NewHubWithBuffer constructs a hub whose subscriber channels hold size events.
func NewHubWithBuffer(size int) *Hub {
	if size <= 0 {
		size = 64
	}
	return &Hub{subscribers: make(map[string]chan Event), bufferSize: size}
}

// Publish notifies all subscribers of an event. Non-blocking; drops if buffer full.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	var dropped uint64
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	h.countMu.Lock()
	h.published++
	h.dropped += dropped
	h.countMu.Unlock()
}

// Subscribe returns a channel that will receive future events and a cleanup func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch, id := h.SubscribeWithID()
	return ch, func() { h.Unsubscribe(id) }
}

// SubscribeWithID registers a subscriber and returns its channel and id.
func (h *Hub) SubscribeWithID() (<-chan Event, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, ""
	}
	id := uuid.NewString()
	ch := make(chan Event, h.bufferSize)
	h.subscribers[id] = ch
	return ch, id
}

// Unsubscribe removes the subscriber with id and closes its channel. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Stats reports subscriber and delivery counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	subscribers := len(h.subscribers)
	h.mu.RUnlock()
	h.countMu.Lock()
	defer h.countMu.Unlock()
	return Stats{Subscribers: subscribers, Published: h.published, Dropped: h.dropped}
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
