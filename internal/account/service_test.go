package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"atelier/internal/ledger"
	dErrors "atelier/pkg/domain-errors"
)

type AccountServiceSuite struct {
	suite.Suite
	store   *MemoryStore
	ledger  *ledger.Service
	service *Service
	ctx     context.Context
}

func TestAccountServiceSuite(t *testing.T) {
	suite.Run(t, new(AccountServiceSuite))
}

func (s *AccountServiceSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.ctx = context.Background()

	ledgerSvc, err := ledger.New(ledger.NewMemoryStore())
	s.Require().NoError(err)
	s.ledger = ledgerSvc

	svc, err := NewService(s.store, s.ledger, 10)
	s.Require().NoError(err)
	s.service = svc
}

func (s *AccountServiceSuite) TestEnsureAccount() {
	s.Run("creates account with the signup grant", func() {
		acct, err := s.service.EnsureAccount(s.ctx, "user@example.com")
		s.Require().NoError(err)
		s.NotEmpty(acct.ID)

		balance, err := s.ledger.Balance(s.ctx, acct.ID)
		s.Require().NoError(err)
		s.Equal(int64(10), balance)
	})

	s.Run("second sign-in returns the same account without regranting", func() {
		first, err := s.service.EnsureAccount(s.ctx, "repeat@example.com")
		s.Require().NoError(err)

		_, err = s.ledger.Spend(s.ctx, first.ID, 4, "ai:upscale", "ai-job-1")
		s.Require().NoError(err)

		again, err := s.service.EnsureAccount(s.ctx, "repeat@example.com")
		s.Require().NoError(err)
		s.Equal(first.ID, again.ID)

		balance, err := s.ledger.Balance(s.ctx, first.ID)
		s.Require().NoError(err)
		s.Equal(int64(6), balance)
	})
}

func (s *AccountServiceSuite) TestFindByID() {
	acct, err := s.service.EnsureAccount(s.ctx, "user@example.com")
	s.Require().NoError(err)

	got, err := s.service.FindByID(s.ctx, acct.ID)
	s.Require().NoError(err)
	s.Equal(acct.Email, got.Email)

	_, err = s.service.FindByID(s.ctx, "missing")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}
