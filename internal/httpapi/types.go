package httpapi

import (
	"encoding/json"
	"time"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/bridge"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// Request/Response types for the HTTP API

// AuthRequest represents a login request
type AuthRequest struct {
	ClientID string `json:"clientId"`
}

// AuthResponse represents a login response
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StartRequest starts or restarts the node. A missing config falls back to
// the server's default node config.
type StartRequest struct {
	Config *nativenode.NodeConfig `json:"config,omitempty"`
}

// Request bodies for the control endpoints are the bridge request types.
type (
	PeerRequest         = bridge.PeerRequest
	SendRequest         = bridge.SendRequest
	BroadcastRequest    = bridge.BroadcastRequest
	CapabilitiesRequest = bridge.CapabilitiesRequest
	LogLevelRequest     = bridge.LogLevelRequest
)

// OperationResponse acknowledges a successful control call.
type OperationResponse struct {
	Operation string `json:"operation"`
	State     string `json:"state"`
}

// RemoveListenersResponse reports how many stream subscriptions were dropped.
type RemoveListenersResponse struct {
	Removed int `json:"removed"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy       bool               `json:"healthy"`
	State         string             `json:"state"`
	PollerRunning bool               `json:"pollerRunning"`
	Poller        bridge.PollerStats `json:"poller"`
	Observers     int                `json:"observers"`
	HistoryEvents []string           `json:"historyEvents"`
	Message       string             `json:"message"`
}

// ErrorResponse represents an error response. ErrorCode and Kind are set for
// failures reported by the bridge.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	ErrorCode string `json:"errorCode,omitempty"`
	Kind      string `json:"kind,omitempty"`
	CallID    string `json:"callId,omitempty"`
}

// EventStreamMessage is one server-sent event
type EventStreamMessage struct {
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// HistoryRecord is one stored event returned by the history endpoint
type HistoryRecord struct {
	Offset    int64           `json:"offset"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ReadEventsResponse represents a response for reading recent events of one name
type ReadEventsResponse struct {
	Event       string          `json:"event"`
	StartOffset int64           `json:"startOffset"`
	EndOffset   int64           `json:"endOffset"`
	Count       int             `json:"count"`
	Records     []HistoryRecord `json:"records"`
}
