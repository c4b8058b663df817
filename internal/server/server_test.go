package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"
)

func testServer(port int) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(http.NotFoundHandler(), Config{
		Port:            port,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}, logger)
}

func TestServer_ShutdownOrder(t *testing.T) {
	srv := testServer(0)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	srv.OnShutdown("store", record("store"))
	srv.OnShutdown("broker", record("broker"))
	srv.OnShutdown("worker", record("worker"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	want := []string{"worker", "broker", "store"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestServer_ShutdownErrorsJoined(t *testing.T) {
	srv := testServer(0)
	errWorker := errors.New("worker stuck")
	ran := false

	srv.OnShutdown("store", func(ctx context.Context) error {
		ran = true
		return nil
	})
	srv.OnShutdown("worker", func(ctx context.Context) error { return errWorker })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := srv.Run(ctx)
	if !errors.Is(err, errWorker) {
		t.Fatalf("Run() error = %v, want %v", err, errWorker)
	}
	if !ran {
		t.Error("later components should still stop after an earlier failure")
	}
}

func TestServer_Addr(t *testing.T) {
	if got := testServer(8080).Addr(); got != ":8080" {
		t.Errorf("Addr() = %q, want :8080", got)
	}
}
