package observers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Wildcard subscribes an observer to every event name.
const Wildcard = "*"

var (
	// ErrEmptyEvent is returned when subscribing without an event name
	ErrEmptyEvent = errors.New("event name cannot be empty")
	// ErrNilObserver is returned when subscribing a nil observer
	ErrNilObserver = errors.New("observer cannot be nil")
	// ErrNotSubscribed is returned when removing a subscription that does not exist
	ErrNotSubscribed = errors.New("observer is not subscribed")
)

// Observer receives events for the names it subscribed to.
type Observer interface {
	ID() string
	Deliver(event string, payload json.RawMessage) error
}

// Registry maps event names to observers. It satisfies the bridge's Notifier
// interface, so the event poller can dispatch into it directly.
type Registry struct {
	mu      sync.RWMutex
	byEvent map[string]map[string]Observer
	log     logrus.FieldLogger
}

// NewRegistry creates an empty registry
func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		byEvent: make(map[string]map[string]Observer),
		log:     log.WithField("component", "observers"),
	}
}

// Subscribe registers o for event, or for every event when event is Wildcard.
// Subscribing the same observer twice to one name is a no-op.
func (r *Registry) Subscribe(event string, o Observer) error {
	if event == "" {
		return ErrEmptyEvent
	}
	if o == nil {
		return ErrNilObserver
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.byEvent[event]
	if !ok {
		subs = make(map[string]Observer)
		r.byEvent[event] = subs
	}
	subs[o.ID()] = o
	return nil
}

// Unsubscribe removes the observer with id from event.
func (r *Registry) Unsubscribe(event, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.byEvent[event]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrNotSubscribed, id, event)
	}
	if _, ok := subs[id]; !ok {
		return fmt.Errorf("%w: %s on %s", ErrNotSubscribed, id, event)
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(r.byEvent, event)
	}
	return nil
}

// UnsubscribeAll removes every subscription held by id and returns how many
// were removed.
func (r *Registry) UnsubscribeAll(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for event, subs := range r.byEvent {
		if _, ok := subs[id]; ok {
			delete(subs, id)
			removed++
		}
		if len(subs) == 0 {
			delete(r.byEvent, event)
		}
	}
	return removed
}

// RemoveAll drops every subscription. Observers that implement io.Closer are
// closed once. It returns the number of distinct observers removed.
func (r *Registry) RemoveAll() int {
	r.mu.Lock()
	unique := make(map[string]Observer)
	for _, subs := range r.byEvent {
		for id, o := range subs {
			unique[id] = o
		}
	}
	r.byEvent = make(map[string]map[string]Observer)
	r.mu.Unlock()

	for id, o := range unique {
		if c, ok := o.(io.Closer); ok {
			if err := c.Close(); err != nil {
				r.log.WithError(err).WithField("observer", id).Warn("failed to close observer")
			}
		}
	}
	return len(unique)
}

// Observers returns the observers for event, including wildcard subscribers,
// ordered by ID. Each observer appears once.
func (r *Registry) Observers(event string) []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unique := make(map[string]Observer)
	for id, o := range r.byEvent[event] {
		unique[id] = o
	}
	if event != Wildcard {
		for id, o := range r.byEvent[Wildcard] {
			unique[id] = o
		}
	}

	out := make([]Observer, 0, len(unique))
	for _, o := range unique {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// EventCount returns the number of event names with at least one subscriber.
func (r *Registry) EventCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEvent)
}

// ObserverCount returns the number of distinct subscribed observers.
func (r *Registry) ObserverCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unique := make(map[string]struct{})
	for _, subs := range r.byEvent {
		for id := range subs {
			unique[id] = struct{}{}
		}
	}
	return len(unique)
}

// Notify delivers the event to every matching observer. A failing or
// panicking observer does not prevent delivery to the others; their errors
// are combined in the result.
func (r *Registry) Notify(event string, payload json.RawMessage) error {
	var errs error
	for _, o := range r.Observers(event) {
		errs = multierr.Append(errs, r.deliver(o, event, payload))
	}
	return errs
}

func (r *Registry) deliver(o Observer, event string, payload json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("observer %s panicked: %v", o.ID(), rec)
		}
	}()
	if err := o.Deliver(event, payload); err != nil {
		return fmt.Errorf("observer %s: %w", o.ID(), err)
	}
	return nil
}
