package pool

import (
	"context"
	"testing"
	"time"

	appErr "gradex/pkg/errors"
)

func TestAcquireRelease(t *testing.T) {
	t.Parallel()
	p := New(2)
	ctx := context.Background()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if got := p.InUse(); got != 2 {
		t.Fatalf("expected 2 in use, got %d", got)
	}

	p.Release()
	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAcquireFailsWhenFull(t *testing.T) {
	t.Parallel()
	p := NewWithWait(1, 20*time.Millisecond)
	ctx := context.Background()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	err := p.Acquire(ctx)
	if !appErr.Is(err, appErr.SandboxCapacityExceeded) {
		t.Fatalf("expected SandboxCapacityExceeded, got %v", err)
	}
}

func TestAcquireWaitsForFreedSlot(t *testing.T) {
	t.Parallel()
	p := NewWithWait(1, time.Second)
	ctx := context.Background()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Release()
	}()

	if err := p.Acquire(ctx); err != nil {
		t.Fatalf("bounded wait should pick up the freed slot: %v", err)
	}
}

func TestAcquireHonorsContextCancel(t *testing.T) {
	t.Parallel()
	p := NewWithWait(1, time.Minute)

	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Acquire(ctx); err == nil {
		t.Fatalf("expected error after cancel")
	}
}

func TestSizeCapsSlots(t *testing.T) {
	t.Parallel()
	p := New(0)
	if p.Size() != 1 {
		t.Fatalf("non-positive sizes fall back to 1, got %d", p.Size())
	}
}
