// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"packetforge/internal/model"
)

// AllSessions subscribes to the events of every session
const AllSessions = "*"

// EventBus fans session events out to subscribers. One goroutine distributes
// events so that each subscriber sees them in publish order.
type EventBus struct {
	subscribers map[string]map[chan model.SessionEvent]struct{}
	events      chan model.SessionEvent
	quit        chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subscribers: make(map[string]map[chan model.SessionEvent]struct{}),
		events:      make(chan model.SessionEvent, 1000),
		quit:        make(chan struct{}),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Start distributes events until Stop is called
func (eb *EventBus) Start() {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-eb.quit:
			return
		}
	}
}

// Stop ends Start. Pending events are discarded.
func (eb *EventBus) Stop() {
	eb.stopOnce.Do(func() { close(eb.quit) })
}

// Publish queues an event. It never blocks; a full bus drops the event.
func (eb *EventBus) Publish(event model.SessionEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("session_id", event.SessionID.String()),
		)
	}
}

// Subscribe returns a channel receiving the events of one session, or of all
// sessions when sessionID is AllSessions. The returned func unsubscribes and
// closes the channel.
func (eb *EventBus) Subscribe(sessionID string) (<-chan model.SessionEvent, func()) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.SessionEvent, 100)
	if eb.subscribers[sessionID] == nil {
		eb.subscribers[sessionID] = make(map[chan model.SessionEvent]struct{})
	}
	eb.subscribers[sessionID][subscriber] = struct{}{}

	var once sync.Once
	return subscriber, func() {
		once.Do(func() {
			eb.mutex.Lock()
			defer eb.mutex.Unlock()
			delete(eb.subscribers[sessionID], subscriber)
			if len(eb.subscribers[sessionID]) == 0 {
				delete(eb.subscribers, sessionID)
			}
			close(subscriber)
		})
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.SessionEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, key := range []string{event.SessionID.String(), AllSessions} {
		for subscriber := range eb.subscribers[key] {
			select {
			case subscriber <- event:
			default:
				// Subscriber is slow, skip
			}
		}
	}
}
