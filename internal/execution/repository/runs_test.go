package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gradex/internal/common/cache"
	"gradex/internal/execution/model"
	appErr "gradex/pkg/errors"
)

func newStore(t *testing.T) (*RedisRunStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRunStore(cache.NewRedisCacheFromClient(client), time.Hour), mr
}

func TestRunRecordRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, _ := newStore(t)

	rec := RunRecord{
		RunID:    "run-1",
		UserID:   "user-1",
		Language: model.LanguagePython,
		Result: model.ExecutionResult{
			Success:     true,
			TotalPassed: 2,
			TotalTests:  3,
			Score:       66.5,
		},
		FinishedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RunID != rec.RunID || got.Result.Score != rec.Result.Score || got.Language != rec.Language {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRunRecordMissing(t *testing.T) {
	t.Parallel()
	store, _ := newStore(t)
	_, err := store.Get(context.Background(), "nope")
	if !appErr.Is(err, appErr.ExecutionNotFound) {
		t.Fatalf("expected ExecutionNotFound, got %v", err)
	}
}

func TestRunRecordExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, mr := newStore(t)

	if err := store.Save(ctx, RunRecord{RunID: "run-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	if _, err := store.Get(ctx, "run-1"); !appErr.Is(err, appErr.ExecutionNotFound) {
		t.Fatalf("expected record to expire, got %v", err)
	}
}
