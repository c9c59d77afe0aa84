package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const testWindow = time.Minute

type MemoryLimiterSuite struct {
	suite.Suite
	limiter *MemoryLimiter
	ctx     context.Context
	now     time.Time
}

func TestMemoryLimiterSuite(t *testing.T) {
	suite.Run(t, new(MemoryLimiterSuite))
}

func (s *MemoryLimiterSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.limiter = NewMemoryLimiter().WithClock(func() time.Time { return s.now })
	s.ctx = context.Background()
}

func (s *MemoryLimiterSuite) TestCheckAndConsume() {
	s.Run("first attempt allowed", func() {
		result, err := s.limiter.CheckAndConsume(s.ctx, "otp:email:a@example.com", testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("second attempt within window denied with retry hint", func() {
		_, err := s.limiter.CheckAndConsume(s.ctx, "otp:email:b@example.com", testWindow)
		s.Require().NoError(err)

		s.now = s.now.Add(20 * time.Second)
		result, err := s.limiter.CheckAndConsume(s.ctx, "otp:email:b@example.com", testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(40, result.RetryAfter)
	})

	s.Run("denied attempt does not extend the window", func() {
		_, err := s.limiter.CheckAndConsume(s.ctx, "otp:email:c@example.com", testWindow)
		s.Require().NoError(err)

		s.now = s.now.Add(30 * time.Second)
		_, err = s.limiter.CheckAndConsume(s.ctx, "otp:email:c@example.com", testWindow)
		s.Require().NoError(err)

		s.now = s.now.Add(31 * time.Second)
		result, err := s.limiter.CheckAndConsume(s.ctx, "otp:email:c@example.com", testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("allowed again after window expires", func() {
		_, err := s.limiter.CheckAndConsume(s.ctx, "otp:ip:10.0.0.1", testWindow)
		s.Require().NoError(err)

		s.now = s.now.Add(testWindow + time.Second)
		result, err := s.limiter.CheckAndConsume(s.ctx, "otp:ip:10.0.0.1", testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("keys are independent", func() {
		_, err := s.limiter.CheckAndConsume(s.ctx, "otp:email:d@example.com", testWindow)
		s.Require().NoError(err)

		result, err := s.limiter.CheckAndConsume(s.ctx, "otp:ip:10.0.0.9", testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
	})
}
