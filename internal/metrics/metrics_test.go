package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncKeysIssued(3)
	m.IncKeysDeleted(2)
	m.IncKeyCollision()
	m.IncKeyUsed()
	m.IncAccessDenied()
	m.IncCommand("issue", "success")
	m.IncCommand("issue", "success")
	m.IncCommand("check", "not_found")
	m.IncEventPublished("success")
	m.IncEventPublished("dropped")
	m.IncEventProcessed("success")
	m.IncEventProcessed("failed")
	m.SetEventQueueDepth(7)
	m.ObserveHTTPRequest("POST", "/api", 200, time.Millisecond)

	snap := m.Snapshot()
	if snap.KeysIssued != 3 {
		t.Errorf("KeysIssued = %d, want 3", snap.KeysIssued)
	}
	if snap.KeysDeleted != 2 {
		t.Errorf("KeysDeleted = %d, want 2", snap.KeysDeleted)
	}
	if snap.KeyCollisions != 1 || snap.KeysUsed != 1 || snap.AccessDenied != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if snap.Commands["issue/success"] != 2 {
		t.Errorf("issue/success = %d, want 2", snap.Commands["issue/success"])
	}
	if snap.Commands["check/not_found"] != 1 {
		t.Errorf("check/not_found = %d, want 1", snap.Commands["check/not_found"])
	}
	if snap.EventsPublished != 1 || snap.EventsDropped != 1 {
		t.Errorf("published=%d dropped=%d, want 1/1", snap.EventsPublished, snap.EventsDropped)
	}
	if snap.EventsProcessed != 1 {
		t.Errorf("EventsProcessed = %d, want 1", snap.EventsProcessed)
	}
	if snap.EventQueueDepth != 7 {
		t.Errorf("EventQueueDepth = %d, want 7", snap.EventQueueDepth)
	}
	if snap.HTTPRequests != 1 {
		t.Errorf("HTTPRequests = %d, want 1", snap.HTTPRequests)
	}
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	t.Parallel()

	p := NewPrometheus()
	p.IncKeysIssued(5)
	p.IncCommand("stats", "success")
	p.ObserveHTTPRequest("GET", "/api", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"keygate_keys_issued_total 5",
		`keygate_commands_total{action="stats",outcome="success"} 1`,
		`http_requests_total{method="GET",path="/api",status="200"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNoopRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder = NewNoop()
	r.IncKeysIssued(1)
	r.IncCommand("issue", "success")
	r.ObserveHTTPRequest("GET", "/", 200, time.Second)
}
