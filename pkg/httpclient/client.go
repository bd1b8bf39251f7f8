package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// ErrNotAuthenticated is returned by calls that need a token before Authenticate.
var ErrNotAuthenticated = errors.New("client not authenticated - call Authenticate() first")

// Client provides HTTP client for the bridge API
type Client struct {
	config     Config
	httpClient *http.Client
	// streamClient has no overall timeout
	streamClient *http.Client
	token        string
	baseURL      *url.URL
}

// NewClient creates a new bridge HTTP client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("ClientID is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
		baseURL:      baseURL,
	}, nil
}

// Authenticate logs in with the configured client ID and stores the token
func (c *Client) Authenticate(ctx context.Context) error {
	authReq := map[string]string{"clientId": c.config.ClientID}

	var authResp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", authReq, &authResp, false); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	c.token = authResp.Token
	return nil
}

// Start boots the node. A nil cfg uses the server's default node config.
func (c *Client) Start(ctx context.Context, cfg *nativenode.NodeConfig) (*OperationResponse, error) {
	return c.operation(ctx, http.MethodPost, "/api/v1/node/start", StartRequest{Config: cfg}, "start node")
}

// Restart restarts the node. A nil cfg uses the server's default node config.
func (c *Client) Restart(ctx context.Context, cfg *nativenode.NodeConfig) (*OperationResponse, error) {
	return c.operation(ctx, http.MethodPost, "/api/v1/node/restart", StartRequest{Config: cfg}, "restart node")
}

// Stop shuts the node down
func (c *Client) Stop(ctx context.Context) (*OperationResponse, error) {
	return c.operation(ctx, http.MethodPost, "/api/v1/node/stop", nil, "stop node")
}

// Status returns the node status report
func (c *Client) Status(ctx context.Context) (*nativenode.StatusReport, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	var resp nativenode.StatusReport
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/node/status", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &resp, nil
}

// ConnectPeer links the node to destinationHex
func (c *Client) ConnectPeer(ctx context.Context, destinationHex string) (*OperationResponse, error) {
	body := map[string]string{"destinationHex": destinationHex}
	return c.operation(ctx, http.MethodPost, "/api/v1/peers/connect", body, "connect peer")
}

// DisconnectPeer drops the link to destinationHex
func (c *Client) DisconnectPeer(ctx context.Context, destinationHex string) (*OperationResponse, error) {
	body := map[string]string{"destinationHex": destinationHex}
	return c.operation(ctx, http.MethodPost, "/api/v1/peers/disconnect", body, "disconnect peer")
}

// Send delivers base64 encoded bytes to one destination
func (c *Client) Send(ctx context.Context, destinationHex, bytesBase64 string) (*OperationResponse, error) {
	body := map[string]string{"destinationHex": destinationHex, "bytesBase64": bytesBase64}
	return c.operation(ctx, http.MethodPost, "/api/v1/messages/send", body, "send")
}

// Broadcast sends base64 encoded bytes to every reachable destination
func (c *Client) Broadcast(ctx context.Context, bytesBase64 string) (*OperationResponse, error) {
	body := map[string]string{"bytesBase64": bytesBase64}
	return c.operation(ctx, http.MethodPost, "/api/v1/messages/broadcast", body, "broadcast")
}

// SetAnnounceCapabilities replaces the capability string carried in announces
func (c *Client) SetAnnounceCapabilities(ctx context.Context, capabilities string) (*OperationResponse, error) {
	body := map[string]string{"capabilityString": capabilities}
	return c.operation(ctx, http.MethodPut, "/api/v1/node/announce-capabilities", body, "set announce capabilities")
}

// SetLogLevel changes the node log level. An empty level means Info.
func (c *Client) SetLogLevel(ctx context.Context, level string) (*OperationResponse, error) {
	body := map[string]string{"level": level}
	return c.operation(ctx, http.MethodPut, "/api/v1/node/log-level", body, "set log level")
}

// RefreshHubDirectory asks the node for a fresh hub directory
func (c *Client) RefreshHubDirectory(ctx context.Context) (*OperationResponse, error) {
	return c.operation(ctx, http.MethodPost, "/api/v1/hub-directory/refresh", nil, "refresh hub directory")
}

// RemoveListeners closes every open event stream on the server
func (c *Client) RemoveListeners(ctx context.Context) (*RemoveListenersResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	var resp RemoveListenersResponse
	if err := c.doRequest(ctx, http.MethodDelete, "/api/v1/listeners", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to remove listeners: %w", err)
	}
	return &resp, nil
}

// ReadEvents reads recent events of one name starting at offset
func (c *Client) ReadEvents(ctx context.Context, event string, offset int64, limit int) (*ReadEventsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	path := "/api/v1/events/" + url.PathEscape(event)
	queryParams := url.Values{}
	if offset > 0 {
		queryParams.Set("offset", strconv.FormatInt(offset, 10))
	}
	if limit > 0 {
		queryParams.Set("limit", strconv.Itoa(limit))
	}

	var resp ReadEventsResponse
	if err := c.doRequestWithQuery(ctx, http.MethodGet, path, queryParams, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return &resp, nil
}

// GetHealth returns the health status of the bridge
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp, false)
	if err != nil {
		// An unhealthy bridge still answers with a health body
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && resp.State != "" {
			return &resp, nil
		}
		return nil, fmt.Errorf("failed to get health status: %w", err)
	}
	return &resp, nil
}

func (c *Client) operation(ctx context.Context, method, path string, body any, what string) (*OperationResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	var resp OperationResponse
	if err := c.doRequest(ctx, method, path, body, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return &resp, nil
}

// doRequestWithQuery performs an HTTP request with query parameters and
// optional authentication. GET requests that fail in transport are retried.
func (c *Client) doRequestWithQuery(ctx context.Context, method, path string, queryParams url.Values, reqBody any, respBody any, requireAuth bool) error {
	u := &url.URL{Path: path}
	if len(queryParams) > 0 {
		u.RawQuery = queryParams.Encode()
	}
	fullURL := c.baseURL.ResolveReference(u)

	var jsonBody []byte
	if reqBody != nil {
		var err error
		if jsonBody, err = json.Marshal(reqBody); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.config.MaxRetries
	}

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if requireAuth && c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err = c.httpClient.Do(req)
		if err == nil {
			break
		}
		if attempt >= attempts || ctx.Err() != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		select {
		case <-time.After(c.config.RetryDelay):
		case <-ctx.Done():
			return fmt.Errorf("request failed: %w", ctx.Err())
		}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, &apiErr.Response); err != nil {
			apiErr.Response = ErrorResponse{
				Error:   http.StatusText(resp.StatusCode),
				Message: string(bodyBytes),
				Code:    resp.StatusCode,
			}
		}
		// Health reports its body on 503 too
		if respBody != nil && resp.StatusCode == http.StatusServiceUnavailable {
			_ = json.Unmarshal(bodyBytes, respBody)
		}
		return apiErr
	}

	if respBody != nil {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// doRequest performs an HTTP request with optional authentication
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any, respBody any, requireAuth bool) error {
	return c.doRequestWithQuery(ctx, method, path, nil, reqBody, respBody, requireAuth)
}

// IsAuthenticated returns whether the client has a valid token
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// GetToken returns the current authentication token
func (c *Client) GetToken() string {
	return c.token
}

// SetToken sets the authentication token (useful for testing or token reuse)
func (c *Client) SetToken(token string) {
	c.token = token
}
