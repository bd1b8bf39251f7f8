package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// mockNode is a scriptable nativenode.Node. Func fields override the default
// behaviour; every call is counted.
type mockNode struct {
	mu    sync.Mutex
	calls map[string]int
	args  map[string][]string

	// Result is returned by control calls without an override.
	Result int
	// LastError is handed out once by TakeLastErrorJSON.
	LastError string
	// StatusJSON is returned by GetStatusJSON.
	StatusJSON string

	Events chan string

	StartFunc     func(configJSON string) int
	StopFunc      func() int
	NextEventFunc func(ctx context.Context, timeout time.Duration) string

	pollers     int
	peakPollers int
}

func newMockNode() *mockNode {
	return &mockNode{
		calls:  make(map[string]int),
		args:   make(map[string][]string),
		Events: make(chan string, 16),
	}
}

var _ nativenode.Node = (*mockNode)(nil)

func (m *mockNode) record(name string, arg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	m.args[name] = append(m.args[name], arg)
}

func (m *mockNode) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockNode) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for name, n := range m.calls {
		if name != "NextEventJSON" {
			total += n
		}
	}
	return total
}

func (m *mockNode) LastArg(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.args[name]
	if len(args) == 0 {
		return ""
	}
	return args[len(args)-1]
}

func (m *mockNode) SetLastError(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = raw
}

func (m *mockNode) PeakPollers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakPollers
}

func (m *mockNode) ActivePollers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollers
}

func (m *mockNode) result() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Result
}

func (m *mockNode) Start(configJSON string) int {
	m.record("Start", configJSON)
	if m.StartFunc != nil {
		return m.StartFunc(configJSON)
	}
	return m.result()
}

func (m *mockNode) Stop() int {
	m.record("Stop", "")
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return m.result()
}

func (m *mockNode) Restart(configJSON string) int {
	m.record("Restart", configJSON)
	return m.result()
}

func (m *mockNode) GetStatusJSON() string {
	m.record("GetStatusJSON", "")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StatusJSON
}

func (m *mockNode) ConnectPeer(destinationHex string) int {
	m.record("ConnectPeer", destinationHex)
	return m.result()
}

func (m *mockNode) DisconnectPeer(destinationHex string) int {
	m.record("DisconnectPeer", destinationHex)
	return m.result()
}

func (m *mockNode) SendJSON(payloadJSON string) int {
	m.record("SendJSON", payloadJSON)
	return m.result()
}

func (m *mockNode) BroadcastBase64(bytesBase64 string) int {
	m.record("BroadcastBase64", bytesBase64)
	return m.result()
}

func (m *mockNode) SetAnnounceCapabilities(capabilities string) int {
	m.record("SetAnnounceCapabilities", capabilities)
	return m.result()
}

func (m *mockNode) SetLogLevel(level string) int {
	m.record("SetLogLevel", level)
	return m.result()
}

func (m *mockNode) RefreshHubDirectory() int {
	m.record("RefreshHubDirectory", "")
	return m.result()
}

func (m *mockNode) NextEventJSON(ctx context.Context, timeout time.Duration) string {
	m.mu.Lock()
	m.calls["NextEventJSON"]++
	m.pollers++
	if m.pollers > m.peakPollers {
		m.peakPollers = m.pollers
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.pollers--
		m.mu.Unlock()
	}()

	if m.NextEventFunc != nil {
		return m.NextEventFunc(ctx, timeout)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-m.Events:
		return ev
	case <-timer.C:
		return ""
	case <-ctx.Done():
		return ""
	}
}

func (m *mockNode) TakeLastErrorJSON() string {
	m.record("TakeLastErrorJSON", "")
	m.mu.Lock()
	defer m.mu.Unlock()
	raw := m.LastError
	m.LastError = ""
	return raw
}
