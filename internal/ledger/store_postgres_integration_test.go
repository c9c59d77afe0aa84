//go:build integration

package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"atelier/internal/ledger"
	"atelier/pkg/platform/sentinel"
	"atelier/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *ledger.PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = ledger.NewPostgres(s.postgres.Pool)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "spend_log", "balances"))
	s.Require().NoError(s.store.CreateAccount(s.ctx, "acct-1", 10))
}

func (s *PostgresStoreSuite) TestCreateAccount() {
	err := s.store.CreateAccount(s.ctx, "acct-1", 10)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestSpend() {
	s.Run("debits and logs", func() {
		remaining, duplicate, err := s.store.Spend(s.ctx, "acct-1", 3, "ai:caption", "ai-job-1")
		s.Require().NoError(err)
		s.False(duplicate)
		s.Equal(int64(7), remaining)

		entries, err := s.store.Spends(s.ctx, "acct-1")
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("ai-job-1", entries[0].IdempotencyKey)
	})

	s.Run("repeated key reports duplicate, balance unchanged", func() {
		remaining, duplicate, err := s.store.Spend(s.ctx, "acct-1", 3, "ai:caption", "ai-job-1")
		s.Require().NoError(err)
		s.True(duplicate)
		s.Equal(int64(7), remaining)
	})

	s.Run("insufficient credits rejected", func() {
		_, _, err := s.store.Spend(s.ctx, "acct-1", 100, "ai:style-transfer", "ai-job-2")
		s.ErrorIs(err, sentinel.ErrInsufficient)

		bal, err := s.store.Balance(s.ctx, "acct-1")
		s.Require().NoError(err)
		s.Equal(int64(7), bal.Credits)
	})

	s.Run("unknown account not found", func() {
		_, _, err := s.store.Spend(s.ctx, "nobody", 1, "ai:caption", "ai-job-3")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestAddCredits() {
	credits, err := s.store.AddCredits(s.ctx, "acct-1", 50)
	s.Require().NoError(err)
	s.Equal(int64(60), credits)

	_, err = s.store.AddCredits(s.ctx, "nobody", 5)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCredit() {
	s.Run("credits and logs the key", func() {
		credits, duplicate, err := s.store.Credit(s.ctx, "acct-1", 50, "topup:credits-50", "settlement-atl-1")
		s.Require().NoError(err)
		s.False(duplicate)
		s.Equal(int64(60), credits)
	})

	s.Run("repeated key reports duplicate, balance unchanged", func() {
		credits, duplicate, err := s.store.Credit(s.ctx, "acct-1", 50, "topup:credits-50", "settlement-atl-1")
		s.Require().NoError(err)
		s.True(duplicate)
		s.Equal(int64(60), credits)
	})

	s.Run("unknown account not found", func() {
		_, _, err := s.store.Credit(s.ctx, "nobody", 5, "topup:credits-5", "settlement-atl-2")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// Fifty concurrent unit spends against ten credits: exactly ten must commit
// and the balance must land on zero, never below.
func (s *PostgresStoreSuite) TestConcurrentSpends() {
	const goroutines = 50

	var wg sync.WaitGroup
	var succeeded, rejected atomic.Int32

	for i := range goroutines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.store.Spend(s.ctx, "acct-1", 1, "ai:caption", fmt.Sprintf("ai-job-conc-%d", i))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, sentinel.ErrInsufficient):
				rejected.Add(1)
			default:
				s.T().Errorf("unexpected spend error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(10), succeeded.Load())
	s.Equal(int32(goroutines-10), rejected.Load())

	bal, err := s.store.Balance(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal(int64(0), bal.Credits)
}

// Concurrent deliveries of the same idempotency key commit at most one debit.
func (s *PostgresStoreSuite) TestConcurrentSameKey() {
	const goroutines = 20

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.store.Spend(s.ctx, "acct-1", 3, "ai:caption", "ai-job-same")
		}()
	}
	wg.Wait()

	bal, err := s.store.Balance(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal(int64(7), bal.Credits)

	entries, err := s.store.Spends(s.ctx, "acct-1")
	s.Require().NoError(err)
	s.Len(entries, 1)
}
