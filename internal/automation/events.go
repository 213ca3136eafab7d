package automation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind classifies control loop events.
type EventKind string

const (
	EventPromoted              EventKind = "promoted"
	EventDemoted               EventKind = "demoted"
	EventOptimizationActivated EventKind = "optimization_activated"
	EventSystemEnabled         EventKind = "system_enabled"
	EventSystemDisabled        EventKind = "system_disabled"
)

// Event is a human-readable notification about a state transition.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(kind EventKind, subject, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Subject:   subject,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// EventHandler receives events on the bus dispatcher goroutine.
type EventHandler func(Event)

// EventBus fans events out to subscribers in publish order. Publishing never
// blocks; when the buffer is full the event is dropped and counted.
type EventBus struct {
	logger *zap.Logger

	queue chan Event

	handlers   map[uint64]EventHandler
	handlersMu sync.RWMutex
	nextID     uint64

	published atomic.Uint64
	dropped   atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewEventBus creates a bus and starts its dispatcher.
func NewEventBus(logger *zap.Logger, buffer int) *EventBus {
	if buffer < 1 {
		buffer = 1
	}
	b := &EventBus{
		logger:   logger,
		queue:    make(chan Event, buffer),
		handlers: make(map[uint64]EventHandler),
		done:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers h and returns a function that removes it.
func (b *EventBus) Subscribe(h EventHandler) func() {
	b.handlersMu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.handlersMu.Lock()
			delete(b.handlers, id)
			b.handlersMu.Unlock()
		})
	}
}

// Publish enqueues events without blocking.
func (b *EventBus) Publish(events ...Event) {
	for _, ev := range events {
		select {
		case <-b.done:
			return
		default:
		}
		select {
		case b.queue <- ev:
			b.published.Add(1)
		default:
			b.dropped.Add(1)
			b.logger.Warn("Event dropped, bus buffer full",
				zap.String("kind", string(ev.Kind)),
				zap.String("message", ev.Message),
			)
		}
	}
}

// Close stops the dispatcher. Queued events are delivered first.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// Published returns the number of accepted events.
func (b *EventBus) Published() uint64 { return b.published.Load() }

// Dropped returns the number of events lost to a full buffer.
func (b *EventBus) Dropped() uint64 { return b.dropped.Load() }

func (b *EventBus) dispatch() {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-b.done:
			for {
				select {
				case ev := <-b.queue:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) deliver(ev Event) {
	b.handlersMu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.handlersMu.RUnlock()

	for _, h := range handlers {
		b.safeCall(h, ev)
	}
}

func (b *EventBus) safeCall(h EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("kind", string(ev.Kind)),
				zap.Any("panic", r),
			)
		}
	}()
	h(ev)
}
