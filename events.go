package portalgate

import (
	"context"
	"encoding/json"
	"sync"
)

// Event is one typed notification. Payload is the raw JSON payload of the
// frame, left for the handler to decode.
type Event struct {
	Type    string
	Payload json.RawMessage
}

// EventAuthFailure is published when credential renewal fails; the hosting
// application should force re-authentication.
const EventAuthFailure = "auth.failure"

// EventHandler receives events for a subscribed type. Handlers run on the
// publishing goroutine and must not block.
type EventHandler func(Event)

// Subscription is a registered handler; Close unregisters it.
type Subscription interface {
	Close()
}

// NotificationConn is the environment-supplied duplex channel. Receive blocks
// until the next inbound frame, a JSON object of the form
// {"type": "...", "payload": ...}.
type NotificationConn interface {
	Receive(ctx context.Context) ([]byte, error)
}

// Bus is an in-process publish/subscribe dispatcher keyed by event type. Safe
// for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]EventHandler
	nextID   int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[int]EventHandler)}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType string, h EventHandler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]EventHandler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[eventType][id] = h
	return &subscription{bus: b, eventType: eventType, id: id}
}

// Publish dispatches ev to every handler subscribed to its type.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	hs := make([]EventHandler, 0, len(b.handlers[ev.Type]))
	for _, h := range b.handlers[ev.Type] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}

// Attach consumes frames from conn until ctx is done or Receive fails,
// dispatching each decoded frame as an event. Malformed frames are skipped.
func (b *Bus) Attach(ctx context.Context, conn NotificationConn) error {
	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var f notificationFrame
		if json.Unmarshal(frame, &f) != nil || f.Type == "" {
			continue
		}
		b.Publish(Event{Type: f.Type, Payload: f.Payload})
	}
}

type notificationFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type subscription struct {
	bus       *Bus
	eventType string
	id        int
	once      sync.Once
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.handlers[s.eventType], s.id)
	})
}
