package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	KeysIssued      uint64
	KeysDeleted     uint64
	KeyCollisions   uint64
	KeysUsed        uint64
	AccessDenied    uint64
	EventsPublished uint64
	EventsDropped   uint64
	EventsProcessed uint64
	EventQueueDepth int64
	HTTPRequests    uint64
	Commands        map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	keysIssued      uint64
	keysDeleted     uint64
	keyCollisions   uint64
	keysUsed        uint64
	accessDenied    uint64
	eventsPublished uint64
	eventsDropped   uint64
	eventsProcessed uint64
	eventQueueDepth int64
	httpRequests    uint64

	mu       sync.Mutex
	commands map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{commands: make(map[string]uint64)}
}

// Snapshot returns a copy of the counters.
// Commands is keyed by "action/outcome".
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	commands := make(map[string]uint64, len(m.commands))
	for k, v := range m.commands {
		commands[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		KeysIssued:      atomic.LoadUint64(&m.keysIssued),
		KeysDeleted:     atomic.LoadUint64(&m.keysDeleted),
		KeyCollisions:   atomic.LoadUint64(&m.keyCollisions),
		KeysUsed:        atomic.LoadUint64(&m.keysUsed),
		AccessDenied:    atomic.LoadUint64(&m.accessDenied),
		EventsPublished: atomic.LoadUint64(&m.eventsPublished),
		EventsDropped:   atomic.LoadUint64(&m.eventsDropped),
		EventsProcessed: atomic.LoadUint64(&m.eventsProcessed),
		EventQueueDepth: atomic.LoadInt64(&m.eventQueueDepth),
		HTTPRequests:    atomic.LoadUint64(&m.httpRequests),
		Commands:        commands,
	}
}

// IncKeysIssued adds count to the issued counter.
func (m *InMemoryRecorder) IncKeysIssued(count int) {
	atomic.AddUint64(&m.keysIssued, uint64(count))
}

// IncKeysDeleted adds count to the deleted counter.
func (m *InMemoryRecorder) IncKeysDeleted(count int64) {
	atomic.AddUint64(&m.keysDeleted, uint64(count))
}

// IncKeyCollision increments the token collision counter.
func (m *InMemoryRecorder) IncKeyCollision() {
	atomic.AddUint64(&m.keyCollisions, 1)
}

// IncKeyUsed increments the redeemed key counter.
func (m *InMemoryRecorder) IncKeyUsed() {
	atomic.AddUint64(&m.keysUsed, 1)
}

// IncCommand counts a dispatched command by action and outcome.
func (m *InMemoryRecorder) IncCommand(action, outcome string) {
	m.mu.Lock()
	m.commands[action+"/"+outcome]++
	m.mu.Unlock()
}

// IncAccessDenied increments the denied request counter.
func (m *InMemoryRecorder) IncAccessDenied() {
	atomic.AddUint64(&m.accessDenied, 1)
}

// IncEventPublished counts publish attempts.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	if status == "success" {
		atomic.AddUint64(&m.eventsPublished, 1)
		return
	}
	atomic.AddUint64(&m.eventsDropped, 1)
}

// IncEventProcessed counts successfully processed events.
func (m *InMemoryRecorder) IncEventProcessed(status string) {
	if status == "success" {
		atomic.AddUint64(&m.eventsProcessed, 1)
	}
}

// ObserveEventBatchSize is a no-op for in-memory metrics.
func (m *InMemoryRecorder) ObserveEventBatchSize(int) {}

// ObserveEventBatchDuration is a no-op for in-memory metrics.
func (m *InMemoryRecorder) ObserveEventBatchDuration(time.Duration) {}

// SetEventQueueDepth records the last observed queue depth.
func (m *InMemoryRecorder) SetEventQueueDepth(depth int64) {
	atomic.StoreInt64(&m.eventQueueDepth, depth)
}

// ObserveEventIngestLag is a no-op for in-memory metrics.
func (m *InMemoryRecorder) ObserveEventIngestLag(time.Duration) {}

// ObserveHTTPRequest counts served requests.
func (m *InMemoryRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
}
