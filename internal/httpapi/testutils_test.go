package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/bridge"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/eventlog"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/loopback"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/observers"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

const testSecret = "test-secret-key"

// TestServerSetup holds common test dependencies
type TestServerSetup struct {
	Node     *loopback.Node
	Bridge   *bridge.Bridge
	Registry *observers.Registry
	History  *eventlog.History
	Server   *Server
	Handler  http.Handler
	Auth     *JWTAuth
}

// NewTestServerSetup wires a loopback node, bridge and HTTP server the way the
// daemon does. Node storage goes to a temp dir.
func NewTestServerSetup(t *testing.T, mutate ...func(*Config)) *TestServerSetup {
	t.Helper()
	logger, _ := test.NewNullLogger()

	node := loopback.New(loopback.Options{Logger: logger})
	registry := observers.NewRegistry(logger)
	history := eventlog.NewHistory(32)

	b, err := bridge.New(node, observers.Chain(history, registry), &bridge.Config{
		BaseDir:     t.TempDir(),
		PollTimeout: 10 * time.Millisecond,
		Logger:      logger,
	})
	require.NoError(t, err)

	cfg := Config{
		SecretKey:    testSecret,
		KeepAlive:    50 * time.Millisecond,
		NodeDefaults: nativenode.NodeConfig{Name: "test-node"},
		Logger:       logger,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	server, err := NewServer(b, registry, history, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		b.Close()
		history.Close()
	})
	return &TestServerSetup{
		Node:     node,
		Bridge:   b,
		Registry: registry,
		History:  history,
		Server:   server,
		Handler:  server.Handler(),
		Auth:     server.jwtAuth,
	}
}

// GenerateTestToken creates a JWT token for testing
func (setup *TestServerSetup) GenerateTestToken(t *testing.T, clientID string) string {
	t.Helper()
	token, _, err := setup.Auth.GenerateToken(clientID)
	require.NoError(t, err)
	return token
}

// Do sends an authenticated request with an optional JSON body.
func (setup *TestServerSetup) Do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+setup.GenerateTestToken(t, "test-client"))

	rec := httptest.NewRecorder()
	setup.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
