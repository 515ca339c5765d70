package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pilotage/internal/amqp"
	"pilotage/internal/core"
	"pilotage/internal/sheets/memory"
)

type recordingTarget struct {
	mu     sync.Mutex
	writes []core.Dataset
	err    error
}

func (r *recordingTarget) WriteAll(_ context.Context, ds core.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.writes = append(r.writes, ds.Clone())
	return nil
}

func (r *recordingTarget) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

func seed() core.Dataset {
	return core.Dataset{{Outlet: "Halles", ProductLine: "Pascalain", Week: 1, Year: 2025, Revenue: 10}}
}

func TestMirrorSkipsUnchangedVersion(t *testing.T) {
	ctx := context.Background()
	source := memory.New(seed())
	target := &recordingTarget{}
	w := NewSyncWorker(source, target, time.Minute, nil)

	if wrote, err := w.Mirror(ctx); err != nil || !wrote {
		t.Fatalf("first mirror: wrote=%v err=%v", wrote, err)
	}
	if wrote, _ := w.Mirror(ctx); wrote {
		t.Fatalf("unchanged dataset must not be mirrored again")
	}

	if err := source.WriteAll(ctx, append(seed(), seed()...)); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if wrote, _ := w.Mirror(ctx); !wrote {
		t.Fatalf("changed dataset must be mirrored")
	}
	if target.count() != 2 || len(target.writes[1]) != 2 {
		t.Fatalf("unexpected writes %v", target.writes)
	}
	if w.LastMirrored().IsZero() {
		t.Fatalf("LastMirrored not recorded")
	}
}

func TestHandleDatasetChangedAlwaysMirrors(t *testing.T) {
	ctx := context.Background()
	target := &recordingTarget{}
	w := NewSyncWorker(memory.New(seed()), target, time.Minute, nil)
	msg := amqp.NewDatasetChangedMessage("append", 1, 2)

	for i := 0; i < 2; i++ {
		if err := w.HandleDatasetChanged(ctx, msg); err != nil {
			t.Fatalf("HandleDatasetChanged: %v", err)
		}
	}
	if target.count() != 2 {
		t.Fatalf("writes = %d, want 2", target.count())
	}
}

func TestHandleDatasetChangedReportsWriteFailure(t *testing.T) {
	target := &recordingTarget{err: errors.New("sheet quota")}
	w := NewSyncWorker(memory.New(seed()), target, time.Minute, nil)
	if err := w.HandleDatasetChanged(context.Background(), amqp.NewDatasetChangedMessage("append", 1, 0)); err == nil {
		t.Fatalf("expected error so the message is requeued")
	}
}

type scriptedConsumer struct {
	msgs []*amqp.DatasetChangedMessage
	err  error
}

func (c *scriptedConsumer) ConsumeDatasetChanged(ctx context.Context, handler func(context.Context, *amqp.DatasetChangedMessage) error) error {
	for _, m := range c.msgs {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	if c.err != nil {
		return c.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunStopsOnCancel(t *testing.T) {
	target := &recordingTarget{}
	w := NewSyncWorker(memory.New(seed()), target, 10*time.Millisecond, nil)
	consumer := &scriptedConsumer{msgs: []*amqp.DatasetChangedMessage{amqp.NewDatasetChangedMessage("append", 1, 0)}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	deadline := time.After(2 * time.Second)
	for target.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("startup mirror and message mirror not observed, writes=%d", target.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestRunReturnsConsumerError(t *testing.T) {
	w := NewSyncWorker(memory.New(seed()), &recordingTarget{}, time.Hour, nil)
	boom := errors.New("channel closed")
	err := w.Run(context.Background(), &scriptedConsumer{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}
