package observers

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Event is one delivered event as seen by a ChannelObserver.
type Event struct {
	Name       string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// ChannelObserver buffers events on a channel for a single consumer, such as
// an SSE stream. Delivery never blocks: when the buffer is full the event is
// dropped and counted.
type ChannelObserver struct {
	id      string
	events  chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewChannelObserver creates an observer with a random ID and the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer <= 0 {
		buffer = 100
	}
	return &ChannelObserver{
		id:     uuid.NewString(),
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

func (c *ChannelObserver) ID() string {
	return c.id
}

// Deliver queues the event unless the observer is closed or full.
func (c *ChannelObserver) Deliver(event string, payload json.RawMessage) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	select {
	case c.events <- Event{Name: event, Payload: payload, ReceivedAt: time.Now()}:
	default:
		c.dropped.Add(1)
	}
	return nil
}

// Events returns the receive side of the buffer.
func (c *ChannelObserver) Events() <-chan Event {
	return c.events
}

// Done is closed when the observer is closed.
func (c *ChannelObserver) Done() <-chan struct{} {
	return c.done
}

// Dropped returns how many events were discarded because the buffer was full.
func (c *ChannelObserver) Dropped() int64 {
	return c.dropped.Load()
}

// Close marks the observer closed. The events channel is left open so that a
// concurrent Deliver cannot panic.
func (c *ChannelObserver) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// FuncObserver adapts a function to Observer.
type FuncObserver struct {
	Name string
	Fn   func(event string, payload json.RawMessage) error
}

func (f FuncObserver) ID() string {
	return f.Name
}

func (f FuncObserver) Deliver(event string, payload json.RawMessage) error {
	return f.Fn(event, payload)
}

// Notifier is anything that accepts dispatched events.
type Notifier interface {
	Notify(event string, payload json.RawMessage) error
}

type chain []Notifier

// Chain returns a Notifier that calls each of ns in order and combines their errors.
func Chain(ns ...Notifier) Notifier {
	return chain(ns)
}

func (c chain) Notify(event string, payload json.RawMessage) error {
	var errs error
	for _, n := range c {
		errs = multierr.Append(errs, n.Notify(event, payload))
	}
	return errs
}
