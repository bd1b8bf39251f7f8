package healthsvc

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/bridge"
)

type fakeLifecycle struct {
	mu        sync.Mutex
	state     bridge.State
	listeners []func(bridge.State)
}

func (f *fakeLifecycle) State() bridge.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeLifecycle) OnStateChange(fn func(bridge.State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *fakeLifecycle) set(s bridge.State) {
	f.mu.Lock()
	f.state = s
	listeners := append([]func(bridge.State){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func check(t *testing.T, r *Reporter) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestReporter_FollowsLifecycle(t *testing.T) {
	logger, _ := test.NewNullLogger()
	lc := &fakeLifecycle{}
	r := NewReporter(lc, logger)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r))

	lc.set(bridge.StateRunning)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, r))

	lc.set(bridge.StateStopped)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r))
}

func TestReporter_StartsFromCurrentState(t *testing.T) {
	logger, _ := test.NewNullLogger()
	lc := &fakeLifecycle{state: bridge.StateRunning}
	r := NewReporter(lc, logger)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, r))
}

func TestReporter_Shutdown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	lc := &fakeLifecycle{state: bridge.StateRunning}
	r := NewReporter(lc, logger)

	r.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r))

	lc.set(bridge.StateRunning)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, r))
}
