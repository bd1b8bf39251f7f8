package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// openStream connects to the SSE endpoint and returns a channel of data
// payloads and a channel of comment lines.
func openStream(t *testing.T, ctx context.Context, srv *httptest.Server, token, query string) (<-chan EventStreamMessage, <-chan string, *http.Response) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events/stream"+query, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	messages := make(chan EventStreamMessage, 64)
	comments := make(chan string, 64)
	go func() {
		defer close(messages)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data: "):
				var msg EventStreamMessage
				if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg) == nil {
					messages <- msg
				}
			case strings.HasPrefix(line, ":"):
				select {
				case comments <- line:
				default:
				}
			}
		}
	}()
	return messages, comments, resp
}

func nextMessage(t *testing.T, messages <-chan EventStreamMessage) EventStreamMessage {
	t.Helper()
	select {
	case msg, ok := <-messages:
		require.True(t, ok, "stream ended")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return EventStreamMessage{}
	}
}

func TestStreamEvents_FilteredByName(t *testing.T) {
	setup := NewTestServerSetup(t)
	srv := httptest.NewServer(setup.Handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, comments, resp := openStream(t, ctx, srv, setup.GenerateTestToken(t, "field-unit"), "?event=peerChanged")
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	select {
	case c := <-comments:
		assert.Contains(t, c, "peerChanged")
	case <-time.After(2 * time.Second):
		t.Fatal("no connection comment")
	}

	startNode(t, setup)
	require.Equal(t, http.StatusOK, setup.Do(t, http.MethodPost, "/api/v1/peers/connect", PeerRequest{DestinationHex: peerHex}).Code)

	var states []string
	for len(states) < 2 {
		msg := nextMessage(t, messages)
		require.Equal(t, nativenode.EventPeerChanged, msg.Event)
		var payload nativenode.PeerChanged
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		states = append(states, payload.Change.State)
	}
	assert.Equal(t, []string{nativenode.PeerConnecting, nativenode.PeerConnected}, states)
}

func TestStreamEvents_AllEventsAndKeepAlive(t *testing.T) {
	setup := NewTestServerSetup(t)
	srv := httptest.NewServer(setup.Handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, comments, resp := openStream(t, ctx, srv, setup.GenerateTestToken(t, "field-unit"), "")
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		for {
			select {
			case c := <-comments:
				if c == ": ping" {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	startNode(t, setup)
	msg := nextMessage(t, messages)
	assert.NotEmpty(t, msg.Event)
	assert.False(t, msg.ReceivedAt.IsZero())
}

func TestStreamEvents_ClosedByRemoveListeners(t *testing.T) {
	setup := NewTestServerSetup(t)
	srv := httptest.NewServer(setup.Handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, _, resp := openStream(t, ctx, srv, setup.GenerateTestToken(t, "field-unit"), "?event=log")
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return setup.Registry.ObserverCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := setup.Do(t, http.MethodDelete, "/api/v1/listeners", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case _, ok := <-messages:
		for ok {
			_, ok = <-messages
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream was not closed")
	}
}

func TestStreamEvents_ClientDisconnectUnsubscribes(t *testing.T) {
	setup := NewTestServerSetup(t)
	srv := httptest.NewServer(setup.Handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, _, resp := openStream(t, ctx, srv, setup.GenerateTestToken(t, "field-unit"), "")
	require.Eventually(t, func() bool { return setup.Registry.ObserverCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	resp.Body.Close()
	require.Eventually(t, func() bool { return setup.Registry.ObserverCount() == 0 }, 3*time.Second, 10*time.Millisecond)
}
