// Package pool bounds concurrent sandbox runs with a fixed slot pool.
package pool

import (
	"context"
	"time"

	appErr "gradex/pkg/errors"
)

const defaultAcquireWait = 2 * time.Second

// Pool limits concurrency. Acquire blocks for a bounded time when all slots
// are busy, so short bursts queue instead of failing instantly.
type Pool struct {
	slots       chan struct{}
	acquireWait time.Duration
}

// New creates a pool with the given number of slots.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		slots:       make(chan struct{}, size),
		acquireWait: defaultAcquireWait,
	}
}

// NewWithWait creates a pool with an explicit acquire wait. Used by tests to
// avoid real delays.
func NewWithWait(size int, wait time.Duration) *Pool {
	p := New(size)
	p.acquireWait = wait
	return p
}

// Acquire claims a slot. It fails with SandboxCapacityExceeded once the
// bounded wait elapses with every slot still busy.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(p.acquireWait)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return appErr.New(appErr.SandboxCapacityExceeded)
	case <-ctx.Done():
		return appErr.Wrap(ctx.Err(), appErr.SandboxCapacityExceeded)
	}
}

// Release returns a slot to the pool.
func (p *Pool) Release() {
	select {
	case <-p.slots:
	default:
	}
}

// Size reports the slot capacity.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// InUse reports how many slots are currently held.
func (p *Pool) InUse() int {
	return len(p.slots)
}
