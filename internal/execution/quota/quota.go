// Package quota enforces the per-user execution rate limit over a sliding
// window. Each admitted execution is recorded; a request is denied when the
// window already holds the maximum.
package quota

import (
	"context"
	"time"

	appErr "gradex/pkg/errors"
)

// Defaults for the sliding window.
const (
	DefaultLimit  = 50
	DefaultWindow = 60 * time.Minute
)

// Clock abstracts time so the sliding window is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Store persists execution timestamps per user. Admit must be atomic:
// concurrent calls for the same user may never over-admit past the limit.
type Store interface {
	// Admit checks the count of executions at or after cutoff and, when it
	// is below limit, records one execution at `at` in the same atomic step.
	Admit(ctx context.Context, userID string, cutoff, at time.Time, limit int) (bool, error)

	// CountSince returns how many executions userID has recorded at or
	// after the cutoff.
	CountSince(ctx context.Context, userID string, cutoff time.Time) (int, error)
}

// Config controls the quota guard.
type Config struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// DefaultConfig returns the stock 50-per-hour quota.
func DefaultConfig() Config {
	return Config{Limit: DefaultLimit, Window: DefaultWindow}
}

// Guard admits or denies executions against the sliding window.
type Guard struct {
	store  Store
	clock  Clock
	limit  int
	window time.Duration
}

// NewGuard creates a Guard. Zero config fields fall back to defaults.
func NewGuard(store Store, clock Clock, cfg Config) *Guard {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Guard{store: store, clock: clock, limit: cfg.Limit, window: cfg.Window}
}

// Admit checks the user's window and records the execution when allowed.
// A denial does not consume a slot.
func (g *Guard) Admit(ctx context.Context, userID string) error {
	now := g.clock.Now()
	allowed, err := g.store.Admit(ctx, userID, now.Add(-g.window), now, g.limit)
	if err != nil {
		return appErr.Wrap(err, appErr.QuotaStoreError)
	}
	if !allowed {
		return appErr.New(appErr.QuotaExceeded).
			WithDetail("limit", g.limit).
			WithDetail("windowMinutes", int(g.window.Minutes()))
	}
	return nil
}

// Remaining reports how many executions the user has left in the window.
func (g *Guard) Remaining(ctx context.Context, userID string) (int, error) {
	now := g.clock.Now()
	count, err := g.store.CountSince(ctx, userID, now.Add(-g.window))
	if err != nil {
		return 0, appErr.Wrap(err, appErr.QuotaStoreError)
	}
	left := g.limit - count
	if left < 0 {
		left = 0
	}
	return left, nil
}
