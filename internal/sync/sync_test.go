package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/threads/internal/logger"
)

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	fail   bool
	writes atomic.Int64
	last   atomic.Value // []byte
}

func (d *mockDestination) Name() string { return d.name }

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	if d.fail {
		return errors.New("unreachable")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return nil
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	dest := &mockDestination{name: "mem"}
	sched := NewScheduler(s, []Destination{dest}, 50*time.Millisecond, logger.Nop())
	sched.Start()

	// Wait for at least the initial sync + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}
	// 1 header + 2 forests
	if lines := nonEmptyLines(string(data)); len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(newTestStore(t), nil, time.Minute, logger.Nop())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSyncOnce_FailingDestinationDoesNotBlockOthers(t *testing.T) {
	s := newTestStore(t)
	bad := &mockDestination{name: "bad", fail: true}
	good := &mockDestination{name: "good"}

	sched := NewScheduler(s, []Destination{bad, good}, time.Hour, logger.Nop())
	sched.SyncOnce(context.Background())

	if bad.writes.Load() != 1 || good.writes.Load() != 1 {
		t.Fatalf("writes bad=%d good=%d, want 1 each", bad.writes.Load(), good.writes.Load())
	}
	if _, ok := good.last.Load().([]byte); !ok {
		t.Fatal("good destination received no payload")
	}
}
