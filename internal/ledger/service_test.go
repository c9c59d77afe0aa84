package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "atelier/pkg/domain-errors"
)

type LedgerServiceSuite struct {
	suite.Suite
	store   *MemoryStore
	service *Service
	ctx     context.Context
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	s.store = NewMemoryStore()
	svc, err := New(s.store)
	s.Require().NoError(err)
	s.service = svc
	s.ctx = context.Background()

	s.Require().NoError(s.service.CreateAccount(s.ctx, "acct-1", 10))
}

func (s *LedgerServiceSuite) TestCreateAccount() {
	s.Run("duplicate account conflicts", func() {
		err := s.service.CreateAccount(s.ctx, "acct-1", 10)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("negative grant rejected", func() {
		err := s.service.CreateAccount(s.ctx, "acct-2", -1)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *LedgerServiceSuite) TestSpend() {
	s.Run("debits and returns remaining", func() {
		remaining, err := s.service.Spend(s.ctx, "acct-1", 3, "ai:caption", "ai-job-1")
		s.Require().NoError(err)
		s.Equal(int64(7), remaining)
	})

	s.Run("repeated key leaves balance unchanged", func() {
		first, err := s.service.Spend(s.ctx, "acct-1", 2, "ai:upscale", "ai-job-2")
		s.Require().NoError(err)

		again, err := s.service.Spend(s.ctx, "acct-1", 2, "ai:upscale", "ai-job-2")
		s.Require().NoError(err)
		s.Equal(first, again)

		balance, err := s.service.Balance(s.ctx, "acct-1")
		s.Require().NoError(err)
		s.Equal(first, balance)
	})

	s.Run("insufficient credits rejected without partial debit", func() {
		before, err := s.service.Balance(s.ctx, "acct-1")
		s.Require().NoError(err)

		_, err = s.service.Spend(s.ctx, "acct-1", before+1, "ai:style-transfer", "ai-job-3")
		s.True(dErrors.Is(err, dErrors.CodeInsufficientCredits))

		after, err := s.service.Balance(s.ctx, "acct-1")
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("exact balance spend allowed", func() {
		balance, err := s.service.Balance(s.ctx, "acct-1")
		s.Require().NoError(err)

		remaining, err := s.service.Spend(s.ctx, "acct-1", balance, "ai:caption", "ai-job-4")
		s.Require().NoError(err)
		s.Equal(int64(0), remaining)
	})

	s.Run("unknown account not found", func() {
		_, err := s.service.Spend(s.ctx, "nobody", 1, "ai:caption", "ai-job-5")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("non-positive amount rejected", func() {
		_, err := s.service.Spend(s.ctx, "acct-1", 0, "ai:caption", "ai-job-6")
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("missing idempotency key rejected", func() {
		_, err := s.service.Spend(s.ctx, "acct-1", 1, "ai:caption", "")
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *LedgerServiceSuite) TestAddCredits() {
	s.Run("increments balance", func() {
		credits, err := s.service.AddCredits(s.ctx, "acct-1", 50)
		s.Require().NoError(err)
		s.Equal(int64(60), credits)
	})

	s.Run("unknown account not found", func() {
		_, err := s.service.AddCredits(s.ctx, "nobody", 5)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *LedgerServiceSuite) TestCredit() {
	s.Run("increments balance and records the key", func() {
		credits, duplicate, err := s.service.Credit(s.ctx, "acct-1", 50, "topup:credits-50", "settlement-atl-1")
		s.Require().NoError(err)
		s.False(duplicate)
		s.Equal(int64(60), credits)
	})

	s.Run("repeated key leaves balance unchanged", func() {
		first, duplicate, err := s.service.Credit(s.ctx, "acct-1", 25, "topup:credits-25", "settlement-atl-2")
		s.Require().NoError(err)
		s.False(duplicate)

		again, duplicate, err := s.service.Credit(s.ctx, "acct-1", 25, "topup:credits-25", "settlement-atl-2")
		s.Require().NoError(err)
		s.True(duplicate)
		s.Equal(first, again)
	})

	s.Run("unknown account not found", func() {
		_, _, err := s.service.Credit(s.ctx, "nobody", 5, "topup:credits-5", "settlement-atl-3")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("missing idempotency key rejected", func() {
		_, _, err := s.service.Credit(s.ctx, "acct-1", 5, "topup:credits-5", "")
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

// Concurrent spends against one account must never drive the balance
// negative: total successful debits stay within the starting balance.
func (s *LedgerServiceSuite) TestConcurrentSpends() {
	s.Require().NoError(s.service.CreateAccount(s.ctx, "acct-conc", 10))

	const workers = 50
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.service.Spend(s.ctx, "acct-conc", 1, "ai:caption", fmt.Sprintf("ai-job-conc-%d", i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case dErrors.Is(err, dErrors.CodeInsufficientCredits):
			rejected++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(10, succeeded)
	s.Equal(workers-10, rejected)

	balance, err := s.service.Balance(s.ctx, "acct-conc")
	s.Require().NoError(err)
	s.Equal(int64(0), balance)

	entries, err := s.store.Spends(s.ctx, "acct-conc")
	s.Require().NoError(err)
	s.Len(entries, 10)
}
