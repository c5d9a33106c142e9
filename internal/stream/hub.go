// Package stream fans configuration change notifications out to connected
// dashboard clients.
package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/smart-mirror/internal/logging"
)

// Notification types.
const (
	TypeConnected          = "connected"
	TypeConfigChanged      = "config-changed"
	TypeComponentsReloaded = "components-reloaded"
)

const defaultSubscriberCapacity = 16

// Event is one notification frame.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps a notification of kind with a fresh id.
func NewEvent(kind string, now time.Time) Event {
	return Event{ID: uuid.NewString(), Type: kind, Timestamp: now.UTC()}
}

// Option customizes a Hub.
type Option func(*Hub)

// WithLogger injects a logger for drop messages.
func WithLogger(l logging.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithClock overrides the clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// Hub broadcasts events to every live subscription. Publishing never
// blocks: a full subscriber loses its oldest pending event.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool
	capacity    int
	logger      logging.Logger
	now         func() time.Time
}

// Subscription is an active listener.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close stops delivery and closes Events.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewHub constructs an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subscribers: map[*subscriber]struct{}{},
		capacity:    defaultSubscriberCapacity,
		logger:      logging.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Subscribe registers a listener. Subscribing to a closed hub returns an
// already closed subscription.
func (h *Hub) Subscribe() Subscription {
	sub := newSubscriber(h.capacity)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return Subscription{Events: sub.ch}
	}
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return Subscription{
		Events: sub.ch,
		cancel: func() { h.remove(sub) },
	}
}

// Publish sends a new event of kind to every subscriber and returns it.
func (h *Hub) Publish(kind string) Event {
	event := NewEvent(kind, h.now())
	h.Broadcast(event)
	return event
}

// Broadcast delivers event to every subscriber.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	for _, sub := range subs {
		if dropped, ok := sub.deliver(event); ok {
			h.logger.Debugf("stream: dropped %s %s (queue overflow)", dropped.Type, dropped.ID)
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close ends every subscription. Later subscriptions are closed on arrival.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = map[*subscriber]struct{}{}
	h.closed = true
	h.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
	sub.close()
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newSubscriber(capacity int) *subscriber {
	return &subscriber{ch: make(chan Event, capacity)}
}

// deliver enqueues event, evicting the oldest pending event when full. It
// returns the evicted event, if any.
func (s *subscriber) deliver(event Event) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Event{}, false
	}
	select {
	case s.ch <- event:
		return Event{}, false
	default:
	}
	var dropped Event
	var ok bool
	select {
	case dropped = <-s.ch:
		ok = true
	default:
	}
	select {
	case s.ch <- event:
	default:
	}
	return dropped, ok
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
