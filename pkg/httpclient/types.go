package httpclient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the bridge HTTP API (e.g., "http://localhost:8080")
	ServerURL string

	// ClientID is the identifier this client logs in with
	ClientID string

	// Timeout for HTTP requests. Streams are not bound by it.
	Timeout time.Duration

	// MaxRetries for GET requests that fail before reaching the server
	MaxRetries int

	// RetryDelay between those attempts
	RetryDelay time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
}

// AuthResponse represents the response from authentication
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StartRequest carries an optional node config for start and restart
type StartRequest struct {
	Config *nativenode.NodeConfig `json:"config,omitempty"`
}

// OperationResponse acknowledges a control call
type OperationResponse struct {
	Operation string `json:"operation"`
	State     string `json:"state"`
}

// RemoveListenersResponse reports how many stream subscriptions were dropped
type RemoveListenersResponse struct {
	Removed int `json:"removed"`
}

// PollerStats mirrors the server's poller counters
type PollerStats struct {
	Dispatched int64 `json:"dispatched"`
	Dropped    int64 `json:"dropped"`
	Failed     int64 `json:"failed"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy       bool        `json:"healthy"`
	State         string      `json:"state"`
	PollerRunning bool        `json:"pollerRunning"`
	Poller        PollerStats `json:"poller"`
	Observers     int         `json:"observers"`
	HistoryEvents []string    `json:"historyEvents"`
	Message       string      `json:"message"`
}

// ErrorResponse represents an error response from the server
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	ErrorCode string `json:"errorCode,omitempty"`
	Kind      string `json:"kind,omitempty"`
	CallID    string `json:"callId,omitempty"`
}

// APIError is returned for every response with a 4xx or 5xx status
type APIError struct {
	StatusCode int
	Response   ErrorResponse
}

func (e *APIError) Error() string {
	if e.Response.ErrorCode != "" {
		return fmt.Sprintf("API error (%d): %s [%s]", e.StatusCode, e.Response.Message, e.Response.ErrorCode)
	}
	return fmt.Sprintf("API error (%d): %s - %s", e.StatusCode, e.Response.Error, e.Response.Message)
}

// EventStreamMessage represents an event received via SSE
type EventStreamMessage struct {
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// HistoryRecord is one stored event
type HistoryRecord struct {
	Offset    int64           `json:"offset"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ReadEventsResponse represents a page of event history
type ReadEventsResponse struct {
	Event       string          `json:"event"`
	StartOffset int64           `json:"startOffset"`
	EndOffset   int64           `json:"endOffset"`
	Count       int             `json:"count"`
	Records     []HistoryRecord `json:"records"`
}
