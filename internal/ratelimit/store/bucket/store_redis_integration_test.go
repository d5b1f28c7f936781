//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"healthtrack/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisBucketStore
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.store = NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketStoreSuite) TestLimitIsShared() {
	ctx := context.Background()
	other := NewRedisBucketStore(s.redis.Client)

	for i := range 4 {
		store := s.store
		if i%2 == 1 {
			store = other
		}
		result, err := store.Allow(ctx, "k:shared", 4, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
	}

	result, err := s.store.Allow(ctx, "k:shared", 4, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.GreaterOrEqual(result.RetryAfter, 1)

	count, err := s.redis.Client.ZCard(ctx, "k:shared").Result()
	s.Require().NoError(err)
	s.Equal(int64(4), count, "denied requests are not recorded")
}

func (s *RedisBucketStoreSuite) TestWindowSlides() {
	ctx := context.Background()
	clock := time.Now()
	s.store.now = func() time.Time { return clock }

	for range 2 {
		_, err := s.store.Allow(ctx, "k:slide", 2, time.Minute)
		s.Require().NoError(err)
	}
	clock = clock.Add(61 * time.Second)

	result, err := s.store.Allow(ctx, "k:slide", 2, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *RedisBucketStoreSuite) TestReset() {
	ctx := context.Background()
	_, err := s.store.Allow(ctx, "k:reset", 1, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(ctx, "k:reset"))

	result, err := s.store.Allow(ctx, "k:reset", 1, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}
