package nativenode

import (
	"context"
	"time"
)

// Result codes returned by every control entry point.
const (
	ResultOK  = 0
	ResultErr = 1
)

// Node is the native node boundary. Implementations are expected to be safe
// for concurrent use: control calls may overlap with each other and with an
// in-flight NextEventJSON.
type Node interface {
	// Start boots the node from a JSON encoded NodeConfig.
	Start(configJSON string) int

	// Stop shuts the node down.
	Stop() int

	// Restart stops a running node and boots it again from configJSON.
	Restart(configJSON string) int

	// GetStatusJSON returns a JSON encoded StatusReport, or "" on failure.
	GetStatusJSON() string

	// ConnectPeer asks the node to establish a link to destinationHex.
	ConnectPeer(destinationHex string) int

	// DisconnectPeer tears down the link to destinationHex.
	DisconnectPeer(destinationHex string) int

	// SendJSON delivers a JSON encoded SendRequest.
	SendJSON(payloadJSON string) int

	// BroadcastBase64 sends a base64 payload to every known destination.
	BroadcastBase64(bytesBase64 string) int

	// SetAnnounceCapabilities replaces the capability string carried in announces.
	SetAnnounceCapabilities(capabilities string) int

	// SetLogLevel changes the node's log verbosity.
	SetLogLevel(level string) int

	// RefreshHubDirectory requests a fresh hub directory listing.
	RefreshHubDirectory() int

	// NextEventJSON blocks until an event is available, the timeout elapses
	// or ctx is done. It returns "" when no event was available.
	NextEventJSON(ctx context.Context, timeout time.Duration) string

	// TakeLastErrorJSON returns and clears the last error as a JSON encoded
	// ErrorEnvelope, or "" when there is none.
	TakeLastErrorJSON() string
}
