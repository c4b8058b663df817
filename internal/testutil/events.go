package testutil

import (
	"sync"

	"github.com/keygate/keygate/internal/model"
)

// EventRecorder captures published key events in memory.
type EventRecorder struct {
	mu     sync.Mutex
	events []*model.KeyEvent
}

// PublishAsync records the event synchronously.
func (r *EventRecorder) PublishAsync(event *model.KeyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns everything recorded so far.
func (r *EventRecorder) Events() []*model.KeyEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.KeyEvent, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type.
func (r *EventRecorder) OfType(t model.KeyEventType) []*model.KeyEvent {
	var out []*model.KeyEvent
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
