// Package loopback provides an in-process implementation of the native node
// boundary. It keeps the native side's contract (result codes, the read-once
// last-error slot, the event wire format and config defaults) without a
// Reticulum transport: packets reach only the node itself and connected
// peers are bookkeeping.
package loopback

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// Options configures a Node.
type Options struct {
	// Logger receives a copy of the node's log records
	Logger logrus.FieldLogger

	// QueueSize bounds the pending event queue
	QueueSize int

	// HTTPClient is used for RchHttp hub directory requests
	HTTPClient *http.Client

	// HubRequestTimeout bounds a single hub directory request
	HubRequestTimeout time.Duration
}

// SetDefaults fills unset options.
func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if o.HubRequestTimeout <= 0 {
		o.HubRequestTimeout = 15 * time.Second
	}
}

type nodeError struct {
	code    string
	message string
}

func newNodeError(code, message string) *nodeError {
	return &nodeError{code: code, message: message}
}

func (e *nodeError) Error() string {
	return e.code + ": " + e.message
}

// Node is the loopback native node.
type Node struct {
	opts   Options
	logger *logrus.Logger
	queue  chan string

	errMu   sync.Mutex
	lastErr *nativenode.ErrorEnvelope

	mu           sync.Mutex
	initialized  bool
	running      bool
	cfg          nodeConfig
	status       nativenode.StatusReport
	store        *identityStore
	peers        map[string]struct{}
	capabilities atomic.Value
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

var _ nativenode.Node = (*Node)(nil)

// New creates a stopped node.
func New(opts Options) *Node {
	opts.SetDefaults()

	n := &Node{
		opts:  opts,
		queue: make(chan string, opts.QueueSize),
		peers: make(map[string]struct{}),
	}

	n.logger = logrus.New()
	n.logger.SetOutput(io.Discard)
	n.logger.SetLevel(logrus.InfoLevel)
	n.logger.AddHook(&eventHook{node: n})
	n.logger.AddHook(&forwardHook{target: opts.Logger.WithField("component", "loopback")})
	return n
}

func (n *Node) ok() int {
	n.errMu.Lock()
	n.lastErr = nil
	n.errMu.Unlock()
	return nativenode.ResultOK
}

func (n *Node) fail(err error) int {
	env := &nativenode.ErrorEnvelope{Code: nativenode.CodeInternalError, Message: err.Error()}
	if ne, ok := err.(*nodeError); ok {
		env = &nativenode.ErrorEnvelope{Code: ne.code, Message: ne.message}
	}
	n.errMu.Lock()
	n.lastErr = env
	n.errMu.Unlock()
	return nativenode.ResultErr
}

// Start boots the node from a JSON encoded NodeConfig.
func (n *Node) Start(configJSON string) int {
	cfg, err := decodeConfig(configJSON)
	if err != nil {
		return n.fail(err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.startLocked(cfg); err != nil {
		return n.fail(err)
	}
	return n.ok()
}

// Stop shuts the node down. Stopping a stopped node succeeds.
func (n *Node) Stop() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	return n.ok()
}

// Restart stops the node if needed and starts it with the new config.
func (n *Node) Restart(configJSON string) int {
	cfg, err := decodeConfig(configJSON)
	if err != nil {
		return n.fail(err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	if err := n.startLocked(cfg); err != nil {
		return n.fail(err)
	}
	return n.ok()
}

func decodeConfig(configJSON string) (nodeConfig, error) {
	var in nativenode.NodeConfig
	if err := json.Unmarshal([]byte(configJSON), &in); err != nil {
		return nodeConfig{}, newNodeError(nativenode.CodeInvalidConfig, fmt.Sprintf("invalid node config JSON: %v", err))
	}
	return parseNodeConfig(in), nil
}

func (n *Node) startLocked(cfg nodeConfig) error {
	if n.running {
		return newNodeError(nativenode.CodeAlreadyRunning, "node already running")
	}

	id := identityFromName(cfg.Name)
	var store *identityStore
	if cfg.StorageDir != "" {
		if err := os.MkdirAll(cfg.StorageDir, 0o700); err != nil {
			return newNodeError(nativenode.CodeIOError, fmt.Sprintf("failed to create storage directory: %v", err))
		}
		s, err := openIdentityStore(filepath.Join(cfg.StorageDir, identityFile))
		if err != nil {
			return newNodeError(nativenode.CodeIOError, err.Error())
		}
		loaded, err := s.LoadOrCreate()
		if err != nil {
			s.Close()
			return newNodeError(nativenode.CodeIOError, err.Error())
		}
		id, store = loaded, s
	}

	n.initialized = true
	n.running = true
	n.cfg = cfg
	n.store = store
	n.capabilities.Store(cfg.AnnounceCapabilities)
	n.peers = make(map[string]struct{})
	n.status = nativenode.StatusReport{
		Running:            true,
		Name:               cfg.Name,
		IdentityHex:        id.HashHex(),
		AppDestinationHex:  id.DestinationHex(AppDestinationName),
		LXMFDestinationHex: id.DestinationHex(LXMFDestinationName),
	}
	n.emit(nativenode.EventStatusChanged, nativenode.StatusChanged{Status: n.status})

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.wg.Add(1)
	go n.announceLoop(ctx, cfg, n.status.AppDestinationHex)
	if cfg.HubMode != nativenode.HubDisabled {
		n.wg.Add(1)
		go n.hubLoop(ctx, cfg)
	}

	n.logger.WithFields(logrus.Fields{
		"name":        cfg.Name,
		"identity":    n.status.IdentityHex,
		"tcp_clients": len(cfg.TCPClients),
		"hub_mode":    cfg.HubMode,
	}).Infof("node started as %s", n.status.AppDestinationHex)
	return nil
}

func (n *Node) stopLocked() {
	if !n.running {
		return
	}

	n.cancel()
	n.wg.Wait()
	n.cancel = nil

	if n.store != nil {
		if err := n.store.Close(); err != nil {
			n.logger.WithError(err).Warn("failed to close identity store")
		}
		n.store = nil
	}

	n.running = false
	n.peers = make(map[string]struct{})
	n.status.Running = false
	n.emit(nativenode.EventStatusChanged, nativenode.StatusChanged{Status: n.status})
	n.logger.Info("node stopped")
}

// GetStatusJSON reports the node status. A node that never started reports
// an empty, not running status.
func (n *Node) GetStatusJSON() string {
	n.mu.Lock()
	status := n.status
	n.mu.Unlock()

	raw, err := json.Marshal(status)
	if err != nil {
		n.fail(newNodeError(nativenode.CodeInternalError, err.Error()))
		return ""
	}
	return string(raw)
}

// ConnectPeer marks destinationHex as a connected peer.
func (n *Node) ConnectPeer(destinationHex string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return n.fail(newNodeError(nativenode.CodeNotRunning, "node not running"))
	}
	dest := strings.ToLower(strings.TrimSpace(destinationHex))
	if _, err := nativenode.ParseDestinationHex(dest); err != nil {
		msg := err.Error()
		n.emitPeer(destinationHex, nativenode.PeerDisconnected, &msg)
		return n.fail(newNodeError(nativenode.CodeInvalidConfig, msg))
	}

	n.emitPeer(dest, nativenode.PeerConnecting, nil)
	n.peers[dest] = struct{}{}
	n.emitPeer(dest, nativenode.PeerConnected, nil)
	n.logger.WithField("peer", dest).Info("peer connected")
	return n.ok()
}

// DisconnectPeer forgets destinationHex.
func (n *Node) DisconnectPeer(destinationHex string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return n.fail(newNodeError(nativenode.CodeNotRunning, "node not running"))
	}
	dest := strings.ToLower(strings.TrimSpace(destinationHex))
	if _, err := nativenode.ParseDestinationHex(dest); err != nil {
		return n.fail(newNodeError(nativenode.CodeInvalidConfig, err.Error()))
	}

	delete(n.peers, dest)
	n.emitPeer(dest, nativenode.PeerDisconnected, nil)
	n.logger.WithField("peer", dest).Info("peer disconnected")
	return n.ok()
}

func (n *Node) emitPeer(dest, state string, lastError *string) {
	n.emit(nativenode.EventPeerChanged, nativenode.PeerChanged{Change: nativenode.PeerChange{
		DestinationHex: dest,
		State:          state,
		LastError:      lastError,
	}})
}

// SendJSON delivers a JSON encoded SendRequest. Packets addressed to the
// node's own destinations are looped back as packetReceived.
func (n *Node) SendJSON(payloadJSON string) int {
	var req nativenode.SendRequest
	if err := json.Unmarshal([]byte(payloadJSON), &req); err != nil {
		return n.fail(newNodeError(nativenode.CodeInvalidConfig, fmt.Sprintf("invalid send payload: %v", err)))
	}
	payload, err := base64.StdEncoding.DecodeString(req.BytesBase64)
	if err != nil {
		return n.fail(newNodeError(nativenode.CodeInvalidConfig, fmt.Sprintf("invalid base64 payload: %v", err)))
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return n.fail(newNodeError(nativenode.CodeNotRunning, "node not running"))
	}
	dest := strings.ToLower(strings.TrimSpace(req.DestinationHex))
	if _, err := nativenode.ParseDestinationHex(dest); err != nil {
		return n.fail(newNodeError(nativenode.CodeInvalidConfig, err.Error()))
	}

	encoded := base64.StdEncoding.EncodeToString(payload)
	outcome := nativenode.OutcomeDroppedNoRoute
	local := dest == n.status.AppDestinationHex || dest == n.status.LXMFDestinationHex
	if _, ok := n.peers[dest]; ok || local {
		outcome = nativenode.OutcomeSentDirect
	}

	n.emit(nativenode.EventPacketSent, nativenode.PacketSent{
		DestinationHex: dest,
		BytesBase64:    encoded,
		Outcome:        outcome,
	})
	if outcome != nativenode.OutcomeSentDirect {
		n.logger.WithField("peer", dest).Warnf("send failed: %s", outcome)
		return n.fail(newNodeError(nativenode.CodeNetworkError, "send failed: "+outcome))
	}
	if local {
		n.emit(nativenode.EventPacketReceived, nativenode.PacketReceived{
			DestinationHex: dest,
			BytesBase64:    encoded,
		})
	}
	n.logger.WithField("peer", dest).Debugf("sent %d bytes", len(payload))
	return n.ok()
}

// BroadcastBase64 sends the payload to every connected peer.
func (n *Node) BroadcastBase64(bytesBase64 string) int {
	payload, err := base64.StdEncoding.DecodeString(bytesBase64)
	if err != nil {
		return n.fail(newNodeError(nativenode.CodeInvalidConfig, fmt.Sprintf("invalid base64 payload: %v", err)))
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return n.fail(newNodeError(nativenode.CodeNotRunning, "node not running"))
	}

	peers := make([]string, 0, len(n.peers))
	for p := range n.peers {
		peers = append(peers, p)
	}
	sort.Strings(peers)

	encoded := base64.StdEncoding.EncodeToString(payload)
	for _, p := range peers {
		n.emit(nativenode.EventPacketSent, nativenode.PacketSent{
			DestinationHex: p,
			BytesBase64:    encoded,
			Outcome:        nativenode.OutcomeSentDirect,
		})
	}
	if len(peers) == 0 {
		return n.fail(newNodeError(nativenode.CodeNetworkError, "broadcast reached no peers"))
	}
	n.logger.Debugf("broadcast %d bytes to %d peers", len(payload), len(peers))
	return n.ok()
}

// SetAnnounceCapabilities replaces the capability string and re-announces.
func (n *Node) SetAnnounceCapabilities(capabilities string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return n.fail(newNodeError(nativenode.CodeNotRunning, "node not running"))
	}
	caps := strings.TrimSpace(capabilities)
	n.capabilities.Store(caps)
	n.logger.WithField("capabilities", caps).Info("announce capabilities updated")
	n.announce(n.status.AppDestinationHex)
	return n.ok()
}

// SetLogLevel changes the level of the node's log events. Unknown names fall
// back to Info.
func (n *Node) SetLogLevel(level string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialized {
		return n.fail(newNodeError(nativenode.CodeNotRunning, "node not initialized"))
	}
	n.logger.SetLevel(toLogrusLevel(nativenode.ParseLogLevel(level)))
	return n.ok()
}

// RefreshHubDirectory fetches the hub directory and emits hubDirectoryUpdated.
func (n *Node) RefreshHubDirectory() int {
	n.mu.Lock()
	running, cfg := n.running, n.cfg
	n.mu.Unlock()

	if !running {
		return n.fail(newNodeError(nativenode.CodeNotRunning, "node not running"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.opts.HubRequestTimeout)
	defer cancel()
	destinations, err := n.fetchHubDirectory(ctx, cfg)
	if err != nil {
		return n.fail(err)
	}
	n.emitHubDirectory(destinations)
	return n.ok()
}

func (n *Node) emitHubDirectory(destinations []string) {
	n.emit(nativenode.EventHubDirectoryUpdated, nativenode.HubDirectoryUpdated{
		Destinations: destinations,
		ReceivedAtMs: time.Now().UnixMilli(),
	})
	n.logger.Debugf("hub directory lists %d destinations", len(destinations))
}

// NextEventJSON waits for the next queued event.
func (n *Node) NextEventJSON(ctx context.Context, timeout time.Duration) string {
	select {
	case ev := <-n.queue:
		return ev
	default:
	}
	if timeout <= 0 {
		return ""
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-n.queue:
		return ev
	case <-timer.C:
		return ""
	case <-ctx.Done():
		return ""
	}
}

// TakeLastErrorJSON returns and clears the last error.
func (n *Node) TakeLastErrorJSON() string {
	n.errMu.Lock()
	env := n.lastErr
	n.lastErr = nil
	n.errMu.Unlock()

	if env == nil {
		return ""
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return ""
	}
	return string(raw)
}

// announceLoop must not take n.mu: stopLocked waits for it while holding the lock.
func (n *Node) announceLoop(ctx context.Context, cfg nodeConfig, dest string) {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(cfg.AnnounceIntervalSeconds) * time.Second)
	defer ticker.Stop()

	n.announce(dest)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.announce(dest)
		}
	}
}

func (n *Node) announce(dest string) {
	caps, _ := n.capabilities.Load().(string)
	n.logger.WithField("capabilities", caps).Debugf("announcing %s", dest)
}

func (n *Node) hubLoop(ctx context.Context, cfg nodeConfig) {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Duration(cfg.HubRefreshIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reqCtx, cancel := context.WithTimeout(ctx, n.opts.HubRequestTimeout)
			destinations, err := n.fetchHubDirectory(reqCtx, cfg)
			cancel()
			if err != nil {
				code := nativenode.CodeNetworkError
				if ne, ok := err.(*nodeError); ok {
					code = ne.code
				}
				n.emit(nativenode.EventError, nativenode.ErrorEvent{Code: code, Message: err.Error()})
				continue
			}
			n.emitHubDirectory(destinations)
		}
	}
}
