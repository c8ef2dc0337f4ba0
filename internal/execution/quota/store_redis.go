package quota

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"gradex/internal/common/cache"
)

const quotaKeyPrefix = "quota:exec:"

// admitScript trims expired members, checks the window and records the new
// execution in one server-side step so concurrent requests for the same
// user can never over-admit.
const admitScript = `
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[2]) then
    return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`

// RedisStore keeps the sliding window in a sorted set per user, scored by
// unix milliseconds. Expired members are trimmed on every operation so the
// set never grows past one window of activity.
type RedisStore struct {
	cache  cache.Cache
	keyTTL time.Duration
}

// NewRedisStore creates a Redis-backed quota store. keyTTL should exceed
// the quota window so an idle user's set expires on its own.
func NewRedisStore(c cache.Cache, keyTTL time.Duration) *RedisStore {
	if keyTTL <= 0 {
		keyTTL = 2 * DefaultWindow
	}
	return &RedisStore{cache: c, keyTTL: keyTTL}
}

func (s *RedisStore) Admit(ctx context.Context, userID string, cutoff, at time.Time, limit int) (bool, error) {
	key := quotaKeyPrefix + userID
	member := strconv.FormatInt(at.UnixNano(), 10) + ":" + uuid.NewString()

	res, err := s.cache.Eval(ctx, admitScript, []string{key},
		strconv.FormatInt(cutoff.UnixMilli()-1, 10),
		strconv.Itoa(limit),
		strconv.FormatInt(at.UnixMilli(), 10),
		member,
		strconv.FormatInt(s.keyTTL.Milliseconds(), 10),
	)
	if err != nil {
		return false, err
	}
	admitted, _ := res.(int64)
	return admitted == 1, nil
}

func (s *RedisStore) CountSince(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	key := quotaKeyPrefix + userID
	cutoffMs := float64(cutoff.UnixMilli())

	if err := s.cache.ZRemRangeByScore(ctx, key, math.Inf(-1), cutoffMs-1); err != nil {
		return 0, err
	}
	count, err := s.cache.ZCard(ctx, key)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
