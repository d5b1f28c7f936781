package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 3
	testWindow = time.Minute
)

type InMemoryBucketStoreSuite struct {
	suite.Suite
	store *InMemoryBucketStore
	clock time.Time
	ctx   context.Context
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.store = NewInMemoryBucketStore()
	s.clock = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	s.store.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func (s *InMemoryBucketStoreSuite) TestAllow() {
	s.Run("requests up to the limit are allowed", func() {
		for i := range testLimit {
			result, err := s.store.Allow(s.ctx, "k:limit", testLimit, testWindow)
			s.Require().NoError(err)
			s.True(result.Allowed)
			s.Equal(testLimit-i-1, result.Remaining)
		}
	})

	s.Run("request over the limit is denied with retry after", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "k:over", testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.clock = s.clock.Add(10 * time.Second)

		result, err := s.store.Allow(s.ctx, "k:over", testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Equal(50, result.RetryAfter)
	})

	s.Run("window slides", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "k:slide", testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.clock = s.clock.Add(testWindow + time.Second)

		result, err := s.store.Allow(s.ctx, "k:slide", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("keys are independent", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "k:a", testLimit, testWindow)
			s.Require().NoError(err)
		}
		result, err := s.store.Allow(s.ctx, "k:b", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}

func (s *InMemoryBucketStoreSuite) TestReset() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, "k:reset", testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Reset(s.ctx, "k:reset"))

	result, err := s.store.Allow(s.ctx, "k:reset", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestConcurrentCallersNeverExceedLimit() {
	const limit = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(s.ctx, "k:race", limit, testWindow)
			s.NoError(err)
			if result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(limit, allowed)
}
