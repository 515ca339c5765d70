package main

import (
	"context"
	"testing"
	"time"

	"pilotage/internal/backend"
	"pilotage/internal/config"
	"pilotage/internal/core"
	"pilotage/internal/log"
	"pilotage/internal/sheets/memory"
)

type stubFactory struct {
	closed int
}

func (f *stubFactory) CreateBackend(context.Context, backend.Config) (*backend.Result, error) {
	return &backend.Result{
		Store:   memory.New(nil),
		Cleanup: func() error { f.closed++; return nil },
	}, nil
}

func TestRunClosesBackendWhenListenFails(t *testing.T) {
	cfg := &config.Config{
		Port:               "-1",
		DataBackend:        string(backend.MemoryBackend),
		AccessPassword:     "secret",
		SessionTTL:         time.Hour,
		RateLimitPerMinute: 60,
	}
	factory := &stubFactory{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := run(ctx, cfg, core.RuleSet{}, factory, log.Discard()); err == nil {
		t.Fatal("expected listen error for an invalid port")
	}
	if factory.closed != 1 {
		t.Fatalf("backend closed %d times, want 1", factory.closed)
	}
}

func TestRunClosesBackendOnShutdown(t *testing.T) {
	cfg := &config.Config{
		Port:               "0",
		DataBackend:        string(backend.MemoryBackend),
		AccessPassword:     "secret",
		SessionTTL:         time.Hour,
		RateLimitPerMinute: 60,
	}
	factory := &stubFactory{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, core.RuleSet{}, factory, log.Discard()) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	if factory.closed != 1 {
		t.Fatalf("backend closed %d times, want 1", factory.closed)
	}
}
