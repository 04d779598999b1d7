package core

import (
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	EventServerStarted     EventType = "server:started"
	EventServerStopped     EventType = "server:stopped"
	EventStateChanged      EventType = "server:state_changed"
	EventServerError       EventType = "server:error"
	EventHandlerRegistered EventType = "handler:registered"
	EventHandlerInvoked    EventType = "handler:invoked"
	EventHandlerError      EventType = "handler:error"
)

// EventType names an event variant.
type EventType string

// Event is one of the variants defined in this package:
// ServerStarted, ServerStopped, StateChanged, ServerError,
// HandlerRegistered, HandlerInvoked or HandlerError.
type Event interface {
	Type() EventType
	Meta() EventMeta
	isEvent()
}

// Listener receives published events.
type Listener func(Event)

// EventMeta is common to every event.
type EventMeta struct {
	Timestamp time.Time
	ServerID  string
}

func (m EventMeta) Meta() EventMeta { return m }

func (EventMeta) isEvent() {}

type ServerStarted struct {
	EventMeta
}

type ServerStopped struct {
	EventMeta
}

type StateChanged struct {
	EventMeta
	From State
	To   State
}

type ServerError struct {
	EventMeta
	Err error
}

type HandlerRegistered struct {
	EventMeta
	Name string
}

type HandlerInvoked struct {
	EventMeta
	Name      string
	RequestID string
	Duration  time.Duration
	Success   bool
}

type HandlerError struct {
	EventMeta
	Name      string
	RequestID string
	Message   string
}

func (ServerStarted) Type() EventType     { return EventServerStarted }
func (ServerStopped) Type() EventType     { return EventServerStopped }
func (StateChanged) Type() EventType      { return EventStateChanged }
func (ServerError) Type() EventType       { return EventServerError }
func (HandlerRegistered) Type() EventType { return EventHandlerRegistered }
func (HandlerInvoked) Type() EventType    { return EventHandlerInvoked }
func (HandlerError) Type() EventType      { return EventHandlerError }

type subscription struct {
	id int
	fn Listener
}

// eventBus dispatches events synchronously to subscribers in subscription order.
type eventBus struct {
	logger hclog.Logger

	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

func newEventBus(logger hclog.Logger) *eventBus {
	return &eventBus{logger: logger}
}

func (b *eventBus) subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
		})
	}
}

// publish delivers e to a snapshot of the current subscribers.
// A panicking listener is logged and does not prevent delivery to the rest.
func (b *eventBus) publish(e Event) {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, e)
	}
}

func (b *eventBus) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event listener panicked", "event", e.Type(), "listener", s.id, "error", r)
		}
	}()
	s.fn(e)
}
