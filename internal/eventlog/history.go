package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the number of records kept per event name.
const DefaultCapacity = 256

var (
	// ErrNegativeOffset is returned when a negative offset is provided
	ErrNegativeOffset = errors.New("offset cannot be negative")
	// ErrNegativeMaxCount is returned when a negative max count is provided
	ErrNegativeMaxCount = errors.New("max count cannot be negative")
	// ErrEmptyEvent is returned when appending without an event name
	ErrEmptyEvent = errors.New("event name cannot be empty")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("history is closed")
)

// Record is one event kept in the history.
type Record struct {
	Event     string          `json:"event"`
	Offset    int64           `json:"offset"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// History keeps the most recent events drained from the node, partitioned by
// event name. Each name has its own offset sequence starting at 0; offsets
// keep increasing after old records are evicted.
// It is safe for concurrent use.
type History struct {
	mu         sync.RWMutex
	capacity   int
	byEvent    map[string][]Record
	nextOffset map[string]int64
	closed     bool
}

// NewHistory creates a history holding up to capacity records per event name.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		capacity:   capacity,
		byEvent:    make(map[string][]Record),
		nextOffset: make(map[string]int64),
	}
}

// Append stores an event and returns it with its assigned offset.
func (h *History) Append(ctx context.Context, event string, payload json.RawMessage) (Record, error) {
	if event == "" {
		return Record{}, ErrEmptyEvent
	}

	select {
	case <-ctx.Done():
		return Record{}, ctx.Err()
	default:
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return Record{}, ErrClosed
	}

	rec := Record{
		Event:     event,
		Offset:    h.nextOffset[event],
		Payload:   append(json.RawMessage(nil), payload...),
		Timestamp: time.Now(),
	}

	records := append(h.byEvent[event], rec)
	if len(records) > h.capacity {
		records = append([]Record(nil), records[len(records)-h.capacity:]...)
	}
	h.byEvent[event] = records
	h.nextOffset[event]++

	return rec, nil
}

// Notify appends the event. It lets the history sit directly behind the
// event poller.
func (h *History) Notify(event string, payload json.RawMessage) error {
	_, err := h.Append(context.Background(), event, payload)
	return err
}

// Read returns up to maxCount records for event starting at startOffset.
// Records that were already evicted are skipped.
func (h *History) Read(ctx context.Context, event string, startOffset int64, maxCount int) ([]Record, error) {
	if startOffset < 0 {
		return nil, ErrNegativeOffset
	}
	if maxCount < 0 {
		return nil, ErrNegativeMaxCount
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]Record, 0)
	if maxCount == 0 {
		return results, nil
	}

	for _, rec := range h.byEvent[event] {
		if rec.Offset < startOffset {
			continue
		}
		results = append(results, rec)
		if len(results) >= maxCount {
			break
		}
	}
	return results, nil
}

// EndOffset returns the offset the next record for event will get.
func (h *History) EndOffset(ctx context.Context, event string) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nextOffset[event], nil
}

// Events lists the event names seen so far, sorted.
func (h *History) Events() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.byEvent))
	for name := range h.byEvent {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close drops all records. Further appends fail with ErrClosed.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.byEvent = make(map[string][]Record)
	h.nextOffset = make(map[string]int64)
	h.closed = true
	return nil
}
