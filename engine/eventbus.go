package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type EventType int

type SubscriberID int

type Event struct {
	Type      EventType
	DeviceID  string
	Timestamp time.Time
	Payload   any
}

type subscriber struct {
	id     SubscriberID
	fn     func(Event)
	filter map[EventType]struct{}
}

// EventBus delivers events synchronously to every matching subscriber, in
// subscription order, on the emitting goroutine.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	nextID      SubscriberID
	log         zerolog.Logger
}

func NewEventBus(log zerolog.Logger) *EventBus {
	return &EventBus{log: log.With().Str("component", "events").Logger()}
}

// Subscribe registers a handler for all event types.
func (eb *EventBus) Subscribe(fn func(Event)) SubscriberID {
	return eb.add(fn, nil)
}

// SubscribeTypes registers a handler for specific event types.
func (eb *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	filter := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}
	return eb.add(fn, filter)
}

func (eb *EventBus) add(fn func(Event), filter map[EventType]struct{}) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.subscribers = append(eb.subscribers, subscriber{id: eb.nextID, fn: fn, filter: filter})
	return eb.nextID
}

// Unsubscribe removes a subscriber by ID.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, s := range eb.subscribers {
		if s.id == id {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all matching subscribers. A panicking subscriber
// is logged and skipped so the emitter (often a network read loop) survives.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	subs := make([]subscriber, len(eb.subscribers))
	copy(subs, eb.subscribers)
	eb.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil {
			if _, ok := s.filter[evt.Type]; !ok {
				continue
			}
		}
		eb.deliver(s, evt)
	}
}

func (eb *EventBus) deliver(s subscriber, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			eb.log.Error().Interface("panic", rec).Str("event", evt.Type.String()).Int("subscriber", int(s.id)).Msg("subscriber panicked")
		}
	}()
	s.fn(evt)
}
