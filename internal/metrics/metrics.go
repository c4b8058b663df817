// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Key lifecycle metrics
	IncKeysIssued(count int)
	IncKeysDeleted(count int64)
	IncKeyCollision()
	IncKeyUsed()

	// Dispatcher metrics
	IncCommand(action, outcome string)
	IncAccessDenied()

	// Event pipeline metrics
	IncEventPublished(status string) // status: "success" or "dropped"
	IncEventProcessed(status string) // status: "success", "failed", "skipped"
	ObserveEventBatchSize(size int)
	ObserveEventBatchDuration(duration time.Duration)
	SetEventQueueDepth(depth int64)
	ObserveEventIngestLag(lag time.Duration)

	// Transport metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
