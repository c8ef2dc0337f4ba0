// Package repository persists short-lived execution records so a finished
// run can be fetched again by id.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"gradex/internal/common/cache"
	"gradex/internal/execution/model"
	appErr "gradex/pkg/errors"
)

const (
	runKeyPrefix  = "exec:run:"
	defaultRunTTL = 24 * time.Hour
)

// RunRecord is the stored view of one finished execution.
type RunRecord struct {
	RunID      string                `json:"runId"`
	UserID     string                `json:"userId"`
	Language   model.Language        `json:"language"`
	Result     model.ExecutionResult `json:"result"`
	FinishedAt time.Time             `json:"finishedAt"`
}

// RunStore reads and writes execution records.
type RunStore interface {
	Save(ctx context.Context, rec RunRecord) error
	Get(ctx context.Context, runID string) (RunRecord, error)
}

// RedisRunStore keeps records as JSON documents with a TTL; grading
// results are transient and the attempt document is the durable copy.
type RedisRunStore struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRedisRunStore creates a run store. ttl <= 0 means 24h.
func NewRedisRunStore(c cache.Cache, ttl time.Duration) *RedisRunStore {
	if ttl <= 0 {
		ttl = defaultRunTTL
	}
	return &RedisRunStore{cache: c, ttl: ttl}
}

func (s *RedisRunStore) Save(ctx context.Context, rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return appErr.Wrap(err, appErr.PersistenceFailure)
	}
	if err := s.cache.Set(ctx, runKeyPrefix+rec.RunID, string(data), s.ttl); err != nil {
		return appErr.Wrap(err, appErr.CacheError)
	}
	return nil
}

func (s *RedisRunStore) Get(ctx context.Context, runID string) (RunRecord, error) {
	raw, err := s.cache.Get(ctx, runKeyPrefix+runID)
	if err != nil {
		return RunRecord{}, appErr.Wrap(err, appErr.CacheError)
	}
	if raw == "" {
		return RunRecord{}, appErr.New(appErr.ExecutionNotFound).WithDetail("runId", runID)
	}
	var rec RunRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return RunRecord{}, appErr.Wrap(err, appErr.PersistenceFailure)
	}
	return rec, nil
}
