package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// Notifier receives every well-formed event drained from the native node.
type Notifier interface {
	Notify(event string, payload json.RawMessage) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(event string, payload json.RawMessage) error

// Notify calls f.
func (f NotifierFunc) Notify(event string, payload json.RawMessage) error {
	return f(event, payload)
}

// PollerStats counts what the poller has done since it was created.
type PollerStats struct {
	Dispatched int64 `json:"dispatched"`
	Dropped    int64 `json:"dropped"`
	Failed     int64 `json:"failed"`
}

// Poller drains the native event queue into a Notifier on a single
// background goroutine.
//
// At most one loop runs at a time. EnsureRunning and Stop are serialized by
// mu; the running flag is flipped with compare-and-swap, and a winner spawns a
// loop only if the flag is still set and no loop exists once it holds mu.
type Poller struct {
	node     nativenode.Node
	notifier Notifier
	timeout  time.Duration
	log      logrus.FieldLogger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	dispatched atomic.Int64
	dropped    atomic.Int64
	failed     atomic.Int64
}

// NewPoller creates a stopped poller.
func NewPoller(node nativenode.Node, notifier Notifier, timeout time.Duration, log logrus.FieldLogger) *Poller {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Poller{
		node:     node,
		notifier: notifier,
		timeout:  timeout,
		log:      log.WithField("component", "poller"),
	}
}

// EnsureRunning starts the loop unless one is already active.
func (p *Poller) EnsureRunning() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.spawn()
}

// spawn starts the loop for the caller that won the flip. A Stop that slipped
// in between the flip and the lock wins, and so does a loop that a later
// winner already started.
func (p *Poller) spawn() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() || p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go p.run(ctx, done)
}

// Stop clears the running flag, interrupts the in-flight wait and blocks
// until the loop has exited. It is a no-op when no loop is active.
//
// Stop must not be called from inside a Notifier.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running.Store(false)
	if p.cancel == nil {
		return
	}

	p.cancel()
	<-p.done

	p.cancel = nil
	p.done = nil
	p.log.Debug("event poller stopped")
}

// Running reports whether a loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// Stats returns a snapshot of the poller counters.
func (p *Poller) Stats() PollerStats {
	return PollerStats{
		Dispatched: p.dispatched.Load(),
		Dropped:    p.dropped.Load(),
		Failed:     p.failed.Load(),
	}
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	p.log.WithField("timeout", p.timeout).Debug("event poller started")

	for p.running.Load() && ctx.Err() == nil {
		raw := p.node.NextEventJSON(ctx, p.timeout)
		if raw == "" {
			continue
		}
		p.dispatch(raw)
	}
}

// dispatch decodes one envelope and hands it to the notifier. Nothing that
// happens here may end the loop.
func (p *Poller) dispatch(raw string) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.log.WithField("panic", fmt.Sprint(r)).Error("event observer panicked")
		}
	}()

	var envelope nativenode.EventEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		p.dropped.Add(1)
		p.log.WithError(err).Debug("dropping malformed native event")
		return
	}
	name := strings.TrimSpace(envelope.Event)
	if name == "" {
		p.dropped.Add(1)
		p.log.Debug("dropping native event without a name")
		return
	}

	if err := p.notifier.Notify(name, envelope.PayloadOrEmpty()); err != nil {
		p.failed.Add(1)
		p.log.WithError(err).WithField("event", name).Warn("event observer failed")
		return
	}
	p.dispatched.Add(1)
}
