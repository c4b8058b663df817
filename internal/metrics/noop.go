package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncKeysIssued(int) {}
func (n *NoopRecorder) IncKeysDeleted(int64) {}
func (n *NoopRecorder) IncKeyCollision() {}
func (n *NoopRecorder) IncKeyUsed() {}
func (n *NoopRecorder) IncCommand(string, string) {}
func (n *NoopRecorder) IncAccessDenied() {}
func (n *NoopRecorder) IncEventPublished(string) {}
func (n *NoopRecorder) IncEventProcessed(string) {}
func (n *NoopRecorder) ObserveEventBatchSize(int) {}
func (n *NoopRecorder) ObserveEventBatchDuration(time.Duration) {}
func (n *NoopRecorder) SetEventQueueDepth(int64) {}
func (n *NoopRecorder) ObserveEventIngestLag(time.Duration) {}
func (n *NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}
