package bridge

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// State is the lifecycle state of the bridged node.
type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "Running"
	}
	return "Stopped"
}

// Bridge owns the single native node handle and exposes its control surface
// to the host. Control calls are synchronous and hold no lock while the
// native node is working, so they may be issued concurrently.
type Bridge struct {
	node       nativenode.Node
	config     *Config
	log        logrus.FieldLogger
	translator *translator
	poller     *Poller

	state atomic.Int32

	listenersMu sync.RWMutex
	listeners   []func(State)

	closeOnce sync.Once
	closeErr  error
}

// New creates a bridge in the Stopped state. notifier receives every event
// the poller drains while the node is running.
func New(node nativenode.Node, notifier Notifier, config *Config) (*Bridge, error) {
	if node == nil {
		return nil, ErrNilNode
	}
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if notifier == nil {
		notifier = NotifierFunc(func(string, json.RawMessage) error { return nil })
	}

	log := config.Logger.WithField("component", "bridge")
	return &Bridge{
		node:       node,
		config:     config,
		log:        log,
		translator: newTranslator(node, log),
		poller:     NewPoller(node, notifier, config.PollTimeout, config.Logger),
	}, nil
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Poller exposes the event poller for health reporting.
func (b *Bridge) Poller() *Poller {
	return b.poller
}

// OnStateChange registers fn to be called after every lifecycle transition.
// fn runs on the goroutine that caused the transition.
func (b *Bridge) OnStateChange(fn func(State)) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, fn)
}

func (b *Bridge) setState(s State) {
	if State(b.state.Swap(int32(s))) == s {
		return
	}
	b.log.WithField("state", s).Info("lifecycle state changed")

	b.listenersMu.RLock()
	listeners := append([]func(State){}, b.listeners...)
	b.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// Start normalizes cfg, boots the node and makes sure the poller is running.
func (b *Bridge) Start(cfg nativenode.NodeConfig) error {
	raw, err := b.encodeConfig("start", cfg)
	if err != nil {
		return err
	}
	if err := b.invoke("start", MsgStartFailed, func() int { return b.node.Start(raw) }); err != nil {
		return err
	}
	b.setState(StateRunning)
	b.poller.EnsureRunning()
	return nil
}

// Restart behaves like Start but goes through the node's restart entry point.
func (b *Bridge) Restart(cfg nativenode.NodeConfig) error {
	raw, err := b.encodeConfig("restart", cfg)
	if err != nil {
		return err
	}
	if err := b.invoke("restart", MsgRestartFailed, func() int { return b.node.Restart(raw) }); err != nil {
		return err
	}
	b.setState(StateRunning)
	b.poller.EnsureRunning()
	return nil
}

// Stop shuts the node down. The poller is stopped before Stop returns.
func (b *Bridge) Stop() error {
	if err := b.invoke("stop", MsgStopFailed, b.node.Stop); err != nil {
		return err
	}
	b.poller.Stop()
	b.setState(StateStopped)
	return nil
}

// Close tears the bridge down: poller first, then the native node. Only the
// first call does any work; later calls return the first result. A native
// stop failure is only reported when the node was running.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		wasRunning := b.State() == StateRunning
		b.poller.Stop()

		err := b.invoke("teardown", MsgStopFailed, b.node.Stop)
		b.setState(StateStopped)
		if err != nil && wasRunning {
			b.closeErr = err
		}
	})
	return b.closeErr
}

func (b *Bridge) encodeConfig(op string, cfg nativenode.NodeConfig) (string, error) {
	normalized := NormalizeConfig(cfg, b.config.BaseDir)
	raw, err := json.Marshal(normalized)
	if err != nil {
		return "", &Error{
			Kind:    KindValidation,
			Op:      op,
			Code:    CodeInvalidArgument,
			Message: "config could not be encoded.",
			Cause:   err,
		}
	}
	return string(raw), nil
}

// invoke runs one native call and translates a non-zero result.
func (b *Bridge) invoke(op, fallback string, call func() int) error {
	callID := uuid.NewString()
	b.log.WithFields(logrus.Fields{"op": op, "call_id": callID}).Debug("calling native node")

	if rc := call(); rc != nativenode.ResultOK {
		return b.translator.translate(op, callID, fallback)
	}
	return nil
}
