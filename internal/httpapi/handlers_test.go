package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/bridge"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/observers"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

const peerHex = "00112233445566778899aabbccddeeff"

func startNode(t *testing.T, setup *TestServerSetup) nativenode.StatusReport {
	t.Helper()
	rec := setup.Do(t, http.MethodPost, "/api/v1/node/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = setup.Do(t, http.MethodGet, "/api/v1/node/status", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[nativenode.StatusReport](t, rec)
}

func TestStartStopLifecycle(t *testing.T) {
	setup := NewTestServerSetup(t)

	rec := setup.Do(t, http.MethodPost, "/api/v1/node/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[OperationResponse](t, rec)
	assert.Equal(t, "start", resp.Operation)
	assert.Equal(t, "Running", resp.State)
	assert.True(t, setup.Bridge.Poller().Running())

	status := decodeBody[nativenode.StatusReport](t, setup.Do(t, http.MethodGet, "/api/v1/node/status", nil))
	assert.True(t, status.Running)
	assert.Equal(t, "test-node", status.Name)

	rec = setup.Do(t, http.MethodPost, "/api/v1/node/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Stopped", decodeBody[OperationResponse](t, rec).State)
	assert.False(t, setup.Bridge.Poller().Running())
}

func TestStartWithExplicitConfig(t *testing.T) {
	setup := NewTestServerSetup(t)

	rec := setup.Do(t, http.MethodPost, "/api/v1/node/start", StartRequest{
		Config: &nativenode.NodeConfig{Name: "explicit"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	status := decodeBody[nativenode.StatusReport](t, setup.Do(t, http.MethodGet, "/api/v1/node/status", nil))
	assert.Equal(t, "explicit", status.Name)

	rec = setup.Do(t, http.MethodPost, "/api/v1/node/restart", StartRequest{
		Config: &nativenode.NodeConfig{Name: "restarted"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status = decodeBody[nativenode.StatusReport](t, setup.Do(t, http.MethodGet, "/api/v1/node/status", nil))
	assert.Equal(t, "restarted", status.Name)
}

func TestNativeFailureMapsTo502(t *testing.T) {
	setup := NewTestServerSetup(t)
	startNode(t, setup)

	rec := setup.Do(t, http.MethodPost, "/api/v1/node/start", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Equal(t, nativenode.CodeAlreadyRunning, resp.ErrorCode)
	assert.Equal(t, "native", resp.Kind)
	assert.NotEmpty(t, resp.CallID)
	assert.Equal(t, bridge.StateRunning, setup.Bridge.State())
}

func TestValidationFailureMapsTo400(t *testing.T) {
	setup := NewTestServerSetup(t)
	startNode(t, setup)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"connect without destination", http.MethodPost, "/api/v1/peers/connect", map[string]string{}},
		{"disconnect without destination", http.MethodPost, "/api/v1/peers/disconnect", map[string]string{}},
		{"send without bytes", http.MethodPost, "/api/v1/messages/send", map[string]string{"destinationHex": peerHex}},
		{"broadcast without bytes", http.MethodPost, "/api/v1/messages/broadcast", map[string]string{}},
		{"capabilities without value", http.MethodPut, "/api/v1/node/announce-capabilities", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := setup.Do(t, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, "validation", resp.Kind)
			assert.Equal(t, bridge.CodeInvalidArgument, resp.ErrorCode)
		})
	}
}

func TestControlOperations(t *testing.T) {
	setup := NewTestServerSetup(t)
	status := startNode(t, setup)

	rec := setup.Do(t, http.MethodPost, "/api/v1/peers/connect", PeerRequest{DestinationHex: peerHex})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	payload := "aGVsbG8="
	rec = setup.Do(t, http.MethodPost, "/api/v1/messages/send", SendRequest{DestinationHex: status.AppDestinationHex, BytesBase64: &payload})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = setup.Do(t, http.MethodPost, "/api/v1/messages/broadcast", BroadcastRequest{BytesBase64: &payload})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	caps := "R3AKT,Telemetry"
	rec = setup.Do(t, http.MethodPut, "/api/v1/node/announce-capabilities", CapabilitiesRequest{CapabilityString: &caps})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = setup.Do(t, http.MethodPut, "/api/v1/node/log-level", LogLevelRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = setup.Do(t, http.MethodPost, "/api/v1/peers/disconnect", PeerRequest{DestinationHex: peerHex})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = setup.Do(t, http.MethodPost, "/api/v1/messages/broadcast", BroadcastRequest{BytesBase64: &payload})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, nativenode.CodeNetworkError, decodeBody[ErrorResponse](t, rec).ErrorCode)

	rec = setup.Do(t, http.MethodPost, "/api/v1/hub-directory/refresh", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, nativenode.CodeInvalidConfig, decodeBody[ErrorResponse](t, rec).ErrorCode)
}

func TestOperationsBeforeStart(t *testing.T) {
	setup := NewTestServerSetup(t)

	rec := setup.Do(t, http.MethodPost, "/api/v1/peers/connect", PeerRequest{DestinationHex: peerHex})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, nativenode.CodeNotRunning, decodeBody[ErrorResponse](t, rec).ErrorCode)

	rec = setup.Do(t, http.MethodPost, "/api/v1/node/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodAndBodyChecks(t *testing.T) {
	setup := NewTestServerSetup(t)

	rec := setup.Do(t, http.MethodGet, "/api/v1/node/start", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/peers/connect", bytes.NewBufferString(`{"destinationHex":"`+peerHex+`"}`))
	req.Header.Set("Authorization", "Bearer "+setup.GenerateTestToken(t, "test-client"))
	rec = httptest.NewRecorder()
	setup.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing content type")

	rec = setup.Do(t, http.MethodPost, "/api/v1/peers/connect", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing body")

	rec = setup.Do(t, http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadEventsHistory(t *testing.T) {
	setup := NewTestServerSetup(t)
	startNode(t, setup)
	require.Equal(t, http.StatusOK, setup.Do(t, http.MethodPost, "/api/v1/peers/connect", PeerRequest{DestinationHex: peerHex}).Code)

	require.Eventually(t, func() bool {
		end, _ := setup.History.EndOffset(context.Background(), nativenode.EventPeerChanged)
		return end >= 2
	}, 2*time.Second, 10*time.Millisecond)

	rec := setup.Do(t, http.MethodGet, "/api/v1/events/peerChanged?offset=1&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[ReadEventsResponse](t, rec)
	assert.Equal(t, nativenode.EventPeerChanged, resp.Event)
	assert.Equal(t, int64(1), resp.StartOffset)
	assert.Equal(t, int64(2), resp.EndOffset)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, int64(1), resp.Records[0].Offset)
	assert.Contains(t, string(resp.Records[0].Payload), nativenode.PeerConnected)

	rec = setup.Do(t, http.MethodGet, "/api/v1/events/unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[ReadEventsResponse](t, rec).Count)

	rec = setup.Do(t, http.MethodGet, "/api/v1/events/peerChanged?offset=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = setup.Do(t, http.MethodGet, "/api/v1/events/peerChanged?limit=lots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveListeners(t *testing.T) {
	setup := NewTestServerSetup(t)
	obs := observers.NewChannelObserver(4)
	require.NoError(t, setup.Registry.Subscribe(nativenode.EventLog, obs))

	rec := setup.Do(t, http.MethodDelete, "/api/v1/listeners", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decodeBody[RemoveListenersResponse](t, rec).Removed)
	assert.Equal(t, 0, setup.Registry.ObserverCount())

	select {
	case <-obs.Done():
	default:
		t.Fatal("observer should be closed")
	}
}

func TestHealth(t *testing.T) {
	setup := NewTestServerSetup(t)

	rec := setup.Do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[HealthResponse](t, rec)
	assert.True(t, resp.Healthy)
	assert.Equal(t, "Stopped", resp.State)
	assert.False(t, resp.PollerRunning)

	startNode(t, setup)
	resp = decodeBody[HealthResponse](t, setup.Do(t, http.MethodGet, "/api/v1/health", nil))
	assert.True(t, resp.Healthy)
	assert.Equal(t, "Running", resp.State)
	assert.True(t, resp.PollerRunning)

	setup.Bridge.Poller().Stop()
	rec = setup.Do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decodeBody[HealthResponse](t, rec).Healthy)
}

func TestRoot(t *testing.T) {
	setup := NewTestServerSetup(t)

	rec := setup.Do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[map[string]any](t, rec)
	assert.Contains(t, info, "endpoints")
}
