package nativenode

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// NodeConfig is the configuration record passed to Start and Restart.
// Optional fields left nil take the node's defaults.
type NodeConfig struct {
	Name                      string   `json:"name,omitempty" yaml:"name,omitempty"`
	StorageDir                string   `json:"storageDir,omitempty" yaml:"storageDir,omitempty"`
	TCPClients                []string `json:"tcpClients,omitempty" yaml:"tcpClients,omitempty"`
	Broadcast                 *bool    `json:"broadcast,omitempty" yaml:"broadcast,omitempty"`
	AnnounceIntervalSeconds   *int     `json:"announceIntervalSeconds,omitempty" yaml:"announceIntervalSeconds,omitempty"`
	AnnounceCapabilities      *string  `json:"announceCapabilities,omitempty" yaml:"announceCapabilities,omitempty"`
	HubMode                   string   `json:"hubMode,omitempty" yaml:"hubMode,omitempty"`
	HubIdentityHash           string   `json:"hubIdentityHash,omitempty" yaml:"hubIdentityHash,omitempty"`
	HubAPIBaseURL             string   `json:"hubApiBaseUrl,omitempty" yaml:"hubApiBaseUrl,omitempty"`
	HubAPIKey                 string   `json:"hubApiKey,omitempty" yaml:"hubApiKey,omitempty"`
	HubRefreshIntervalSeconds *int     `json:"hubRefreshIntervalSeconds,omitempty" yaml:"hubRefreshIntervalSeconds,omitempty"`
}

// SendRequest is the payload envelope accepted by Node.SendJSON.
type SendRequest struct {
	DestinationHex string `json:"destinationHex"`
	BytesBase64    string `json:"bytesBase64"`
}

// StatusReport is the decoded form of Node.GetStatusJSON.
type StatusReport struct {
	Running            bool   `json:"running"`
	Name               string `json:"name"`
	IdentityHex        string `json:"identityHex"`
	AppDestinationHex  string `json:"appDestinationHex"`
	LXMFDestinationHex string `json:"lxmfDestinationHex"`
}

// ErrorEnvelope is the last-error record returned by Node.TakeLastErrorJSON.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventEnvelope is one event drained from the node's queue.
type EventEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PayloadOrEmpty returns the raw payload, substituting an empty object when
// the node sent none.
func (e EventEnvelope) PayloadOrEmpty() json.RawMessage {
	p := strings.TrimSpace(string(e.Payload))
	if p == "" || p == "null" {
		return json.RawMessage(`{}`)
	}
	return e.Payload
}

// Event names emitted by the node.
const (
	EventStatusChanged       = "statusChanged"
	EventAnnounceReceived    = "announceReceived"
	EventPeerChanged         = "peerChanged"
	EventPacketReceived      = "packetReceived"
	EventPacketSent          = "packetSent"
	EventHubDirectoryUpdated = "hubDirectoryUpdated"
	EventLog                 = "log"
	EventError               = "error"
)

// Node lifecycle states carried by statusChanged.
const (
	StatusRunning = "Running"
	StatusStopped = "Stopped"
)

// StatusChanged is the statusChanged payload.
type StatusChanged struct {
	Status StatusReport `json:"status"`
}

// AnnounceReceived is the announceReceived payload.
type AnnounceReceived struct {
	DestinationHex string `json:"destinationHex"`
	AppData        string `json:"appData"`
	Hops           int    `json:"hops"`
	InterfaceHex   string `json:"interfaceHex"`
	ReceivedAtMs   int64  `json:"receivedAtMs"`
}

// Peer link states.
const (
	PeerConnecting   = "Connecting"
	PeerConnected    = "Connected"
	PeerDisconnected = "Disconnected"
)

// PeerChange describes a transition of one peer link.
type PeerChange struct {
	DestinationHex string  `json:"destinationHex"`
	State          string  `json:"state"`
	LastError      *string `json:"lastError"`
}

// PeerChanged is the peerChanged payload.
type PeerChanged struct {
	Change PeerChange `json:"change"`
}

// PacketReceived is the packetReceived payload.
type PacketReceived struct {
	DestinationHex string `json:"destinationHex"`
	BytesBase64    string `json:"bytesBase64"`
}

// Outcomes reported by packetSent.
const (
	OutcomeSentDirect                        = "SentDirect"
	OutcomeSentBroadcast                     = "SentBroadcast"
	OutcomeDroppedMissingDestinationIdentity = "DroppedMissingDestinationIdentity"
	OutcomeDroppedCiphertextTooLarge         = "DroppedCiphertextTooLarge"
	OutcomeDroppedEncryptFailed              = "DroppedEncryptFailed"
	OutcomeDroppedNoRoute                    = "DroppedNoRoute"
)

// PacketSent is the packetSent payload.
type PacketSent struct {
	DestinationHex string `json:"destinationHex"`
	BytesBase64    string `json:"bytesBase64"`
	Outcome        string `json:"outcome"`
}

// HubDirectoryUpdated is the hubDirectoryUpdated payload.
type HubDirectoryUpdated struct {
	Destinations []string `json:"destinations"`
	ReceivedAtMs int64    `json:"receivedAtMs"`
}

// LogRecord is the log payload.
type LogRecord struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ErrorEvent is the error payload.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes reported in ErrorEnvelope.Code and error events.
const (
	CodeInvalidConfig  = "InvalidConfig"
	CodeIOError        = "IoError"
	CodeNetworkError   = "NetworkError"
	CodeReticulumError = "ReticulumError"
	CodeAlreadyRunning = "AlreadyRunning"
	CodeNotRunning     = "NotRunning"
	CodeTimeout        = "Timeout"
	CodeInternalError  = "InternalError"
)

// LogLevel is the node's log verbosity.
type LogLevel string

const (
	LogTrace LogLevel = "Trace"
	LogDebug LogLevel = "Debug"
	LogInfo  LogLevel = "Info"
	LogWarn  LogLevel = "Warn"
	LogError LogLevel = "Error"
)

// ParseLogLevel accepts a level name in any case. Unknown names map to LogInfo.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LogTrace
	case "debug":
		return LogDebug
	case "warn", "warning":
		return LogWarn
	case "error":
		return LogError
	default:
		return LogInfo
	}
}

// HubMode selects how the node discovers its hub directory.
type HubMode string

const (
	HubDisabled HubMode = "Disabled"
	HubRchLxmf  HubMode = "RchLxmf"
	HubRchHTTP  HubMode = "RchHttp"
)

// ParseHubMode accepts "RchLxmf"/"rch_lxmf" and "RchHttp"/"rch_http" in any
// case; anything else disables the hub.
func ParseHubMode(s string) HubMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rchlxmf", "rch_lxmf":
		return HubRchLxmf
	case "rchhttp", "rch_http":
		return HubRchHTTP
	default:
		return HubDisabled
	}
}

// DestinationHexLen is the length of a hex encoded destination hash.
const DestinationHexLen = 32

// ParseDestinationHex decodes a 16 byte destination hash.
func ParseDestinationHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) != DestinationHexLen {
		return nil, fmt.Errorf("destination hash must be %d hex characters, got %d", DestinationHexLen, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid destination hash: %w", err)
	}
	return b, nil
}
