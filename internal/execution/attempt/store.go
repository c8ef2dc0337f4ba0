// Package attempt manages the assessment attempt lifecycle: autosaved
// drafts, a single submit, and the deferred hidden-test grading pass.
package attempt

import (
	"context"
	"encoding/json"
	"time"

	"gradex/internal/common/cache"
	"gradex/internal/execution/model"
	appErr "gradex/pkg/errors"
)

const (
	attemptKeyPrefix = "attempt:"
	submitKeySuffix  = ":submitted"
)

// Store persists attempt documents and arbitrates the one-shot submit.
type Store interface {
	Get(ctx context.Context, id string) (model.Attempt, error)
	Put(ctx context.Context, att model.Attempt) error

	// ClaimSubmit atomically claims the right to submit the attempt.
	// Returns false when the attempt was already submitted.
	ClaimSubmit(ctx context.Context, id string) (bool, error)

	// ReleaseSubmit gives a claim back after a failed submit so the
	// candidate can retry. Never called once the attempt is stored as
	// submitted.
	ReleaseSubmit(ctx context.Context, id string) error
}

// RedisStore keeps attempts as JSON documents. The submit claim is a
// separate SetNX key so two concurrent submits race on Redis, not on the
// document read-modify-write.
type RedisStore struct {
	cache cache.Cache
}

// NewRedisStore creates a Redis-backed attempt store.
func NewRedisStore(c cache.Cache) *RedisStore {
	return &RedisStore{cache: c}
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.Attempt, error) {
	raw, err := s.cache.Get(ctx, attemptKeyPrefix+id)
	if err != nil {
		return model.Attempt{}, appErr.Wrap(err, appErr.CacheError)
	}
	if raw == "" {
		return model.Attempt{}, appErr.New(appErr.AttemptNotFound).WithDetail("attemptId", id)
	}
	var att model.Attempt
	if err := json.Unmarshal([]byte(raw), &att); err != nil {
		return model.Attempt{}, appErr.Wrap(err, appErr.PersistenceFailure)
	}
	return att, nil
}

func (s *RedisStore) Put(ctx context.Context, att model.Attempt) error {
	att.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(att)
	if err != nil {
		return appErr.Wrap(err, appErr.PersistenceFailure)
	}
	if err := s.cache.Set(ctx, attemptKeyPrefix+att.ID, string(data), 0); err != nil {
		return appErr.Wrap(err, appErr.CacheError)
	}
	return nil
}

func (s *RedisStore) ClaimSubmit(ctx context.Context, id string) (bool, error) {
	// No expiry: a submit is permanent.
	ok, err := s.cache.SetNX(ctx, attemptKeyPrefix+id+submitKeySuffix, "1", 0)
	if err != nil {
		return false, appErr.Wrap(err, appErr.CacheError)
	}
	return ok, nil
}

func (s *RedisStore) ReleaseSubmit(ctx context.Context, id string) error {
	if err := s.cache.Del(ctx, attemptKeyPrefix+id+submitKeySuffix); err != nil {
		return appErr.Wrap(err, appErr.CacheError)
	}
	return nil
}
