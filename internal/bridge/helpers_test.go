package bridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// recordingNotifier collects dispatched events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	got    chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{got: make(chan string, 64)}
}

func (r *recordingNotifier) Notify(event string, payload json.RawMessage) error {
	r.mu.Lock()
	r.events = append(r.events, event+" "+string(payload))
	r.mu.Unlock()
	select {
	case r.got <- event:
	default:
	}
	return nil
}

func (r *recordingNotifier) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingNotifier) waitFor(t *testing.T, event string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.got:
			if got == event {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", event)
		}
	}
}

func newTestBridge(t *testing.T, node *mockNode, notifier Notifier) (*Bridge, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	cfg := NewConfig("/base").WithLogger(logger).WithPollTimeout(20 * time.Millisecond)

	b, err := New(node, notifier, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { b.poller.Stop() })
	return b, hook
}

func strPtr(s string) *string {
	return &s
}
