package service

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/testutil"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sequence returns a generator cycling through tokens.
func sequence(tokens ...string) TokenGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		t := tokens[i%len(tokens)]
		i++
		return t, nil
	}
}

type keyEnv struct {
	store    *testutil.MemoryStore
	events   *testutil.EventRecorder
	recorder *metrics.InMemoryRecorder
	manager  *KeyManager
}

func newKeyEnv(t *testing.T, opts ...KeyManagerOption) *keyEnv {
	t.Helper()

	store := testutil.NewMemoryStore()
	store.AddApp(testutil.NewTestApp(t, "A1"))
	events := &testutil.EventRecorder{}
	recorder := metrics.NewInMemory()

	opts = append([]KeyManagerOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &keyEnv{
		store:    store,
		events:   events,
		recorder: recorder,
		manager:  NewKeyManager(store, store, events, recorder, discardLogger(), opts...),
	}
}

func intPtr(v int) *int { return &v }
