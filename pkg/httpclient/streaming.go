package httpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// StreamClient handles Server-Sent Events streaming
type StreamClient struct {
	client  *Client
	events  chan EventStreamMessage
	errors  chan error
	done    chan struct{}
	cancel  context.CancelFunc
	dropped atomic.Int64
}

// StreamConfig configures the streaming client
type StreamConfig struct {
	// Event filters the stream to one event name (optional)
	Event string

	// BufferSize for the event channel
	BufferSize int

	// ReconnectDelay for automatic reconnection
	ReconnectDelay time.Duration

	// MaxReconnectAttempts (0 = infinite)
	MaxReconnectAttempts int
}

// SetDefaults sets reasonable default values for StreamConfig
func (sc *StreamConfig) SetDefaults() {
	if sc.BufferSize == 0 {
		sc.BufferSize = 100
	}
	if sc.ReconnectDelay == 0 {
		sc.ReconnectDelay = 2 * time.Second
	}
}

// Stream opens an SSE stream of node events. The connection is re-established
// after failures until ctx ends, Close is called, or the attempt limit is hit.
func (c *Client) Stream(ctx context.Context, config StreamConfig) (*StreamClient, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	config.SetDefaults()

	streamCtx, cancel := context.WithCancel(ctx)
	sc := &StreamClient{
		client: c,
		events: make(chan EventStreamMessage, config.BufferSize),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go sc.startStreaming(streamCtx, config)
	return sc, nil
}

// Events returns the channel for receiving events
func (sc *StreamClient) Events() <-chan EventStreamMessage {
	return sc.events
}

// Errors returns the channel for receiving errors
func (sc *StreamClient) Errors() <-chan error {
	return sc.errors
}

// Done returns a channel that's closed when streaming ends
func (sc *StreamClient) Done() <-chan struct{} {
	return sc.done
}

// Dropped returns how many events were discarded because Events was not drained
func (sc *StreamClient) Dropped() int64 {
	return sc.dropped.Load()
}

// Close stops the streaming client and waits for it to finish
func (sc *StreamClient) Close() error {
	sc.cancel()
	<-sc.done
	return nil
}

// startStreaming handles the SSE streaming loop with reconnection
func (sc *StreamClient) startStreaming(ctx context.Context, config StreamConfig) {
	defer close(sc.done)
	defer close(sc.events)
	defer close(sc.errors)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := sc.connectAndStream(ctx, config)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			sc.reportError(fmt.Errorf("streaming error: %w", err))
		}

		if config.MaxReconnectAttempts > 0 && attempts >= config.MaxReconnectAttempts {
			sc.reportError(fmt.Errorf("max reconnect attempts (%d) exceeded", config.MaxReconnectAttempts))
			return
		}
		attempts++

		select {
		case <-time.After(config.ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (sc *StreamClient) reportError(err error) {
	select {
	case sc.errors <- err:
	default:
	}
}

// connectAndStream establishes SSE connection and processes events
func (sc *StreamClient) connectAndStream(ctx context.Context, config StreamConfig) error {
	streamURL := sc.client.baseURL.ResolveReference(&url.URL{Path: "/api/v1/events/stream"})
	if config.Event != "" {
		values := streamURL.Query()
		values.Set("event", config.Event)
		streamURL.RawQuery = values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create streaming request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+sc.client.token)

	resp, err := sc.client.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("streaming failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return sc.processSSEStream(ctx, resp.Body)
}

// processSSEStream reads and parses Server-Sent Events. It returns nil when
// the server ends the stream.
func (sc *StreamClient) processSSEStream(ctx context.Context, reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			// comments, keepalives and blank separators
			continue
		}

		var event EventStreamMessage
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			sc.reportError(fmt.Errorf("failed to parse event: %w", err))
			continue
		}

		select {
		case sc.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			sc.dropped.Add(1)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
