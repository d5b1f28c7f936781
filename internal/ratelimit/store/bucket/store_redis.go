package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"healthtrack/internal/ratelimit/models"
)

// RedisBucketStore implements the sliding window with one sorted set per key,
// scored by request time in microseconds, so every replica shares the limit.
type RedisBucketStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisBucketStore(client redis.Cmdable) *RedisBucketStore {
	return &RedisBucketStore{client: client, now: time.Now}
}

// Allow trims the window, counts it and records the request in one
// MULTI/EXEC. A request over the limit is removed again so denied attempts do
// not extend the lockout.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	nowScore := now.UnixMicro()
	cutoff := now.Add(-window).UnixMicro()
	member := strconv.FormatInt(nowScore, 10) + "-" + uuid.NewString()

	var count *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowScore), Member: member})
		count = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis sliding window %s: %w", key, err)
	}

	resetAt := now.Add(window)
	if zs := oldest.Val(); len(zs) > 0 {
		resetAt = time.UnixMicro(int64(zs[0].Score)).Add(window)
	}

	n := int(count.Val())
	if n > limit {
		if err := s.client.ZRem(ctx, key, member).Err(); err != nil {
			return nil, fmt.Errorf("redis sliding window %s: %w", key, err)
		}
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(now, resetAt),
		}, nil
	}
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - n,
		ResetAt:   resetAt,
	}, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
