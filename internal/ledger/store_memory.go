package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"atelier/pkg/platform/sentinel"
)

// MemoryStore keeps balances and the spend log behind a single mutex, which
// is the whole atomicity story for the in-process mode: the check and both
// writes happen inside one critical section.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]Balance
	spends   map[string]map[string]SpendEntry // accountID -> idempotencyKey -> entry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]Balance),
		spends:   make(map[string]map[string]SpendEntry),
		now:      time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) CreateAccount(_ context.Context, accountID string, initial int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.balances[accountID]; exists {
		return sentinel.ErrConflict
	}
	s.balances[accountID] = Balance{
		AccountID: accountID,
		Credits:   initial,
		UpdatedAt: s.now(),
	}
	s.spends[accountID] = make(map[string]SpendEntry)
	return nil
}

func (s *MemoryStore) Balance(_ context.Context, accountID string) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[accountID]
	if !ok {
		return Balance{}, sentinel.ErrNotFound
	}
	return bal, nil
}

func (s *MemoryStore) Spend(_ context.Context, accountID string, amount int64, reason, idempotencyKey string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[accountID]
	if !ok {
		return 0, false, sentinel.ErrNotFound
	}

	if _, seen := s.spends[accountID][idempotencyKey]; seen {
		return bal.Credits, true, nil
	}

	if bal.Credits < amount {
		return bal.Credits, false, sentinel.ErrInsufficient
	}

	bal.Credits -= amount
	bal.UpdatedAt = s.now()
	s.balances[accountID] = bal
	s.spends[accountID][idempotencyKey] = SpendEntry{
		AccountID:      accountID,
		IdempotencyKey: idempotencyKey,
		Amount:         amount,
		Reason:         reason,
		CreatedAt:      s.now(),
	}
	return bal.Credits, false, nil
}

func (s *MemoryStore) AddCredits(_ context.Context, accountID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[accountID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	bal.Credits += amount
	bal.UpdatedAt = s.now()
	s.balances[accountID] = bal
	return bal.Credits, nil
}

func (s *MemoryStore) Credit(_ context.Context, accountID string, amount int64, reason, idempotencyKey string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[accountID]
	if !ok {
		return 0, false, sentinel.ErrNotFound
	}

	if _, seen := s.spends[accountID][idempotencyKey]; seen {
		return bal.Credits, true, nil
	}

	bal.Credits += amount
	bal.UpdatedAt = s.now()
	s.balances[accountID] = bal
	s.spends[accountID][idempotencyKey] = SpendEntry{
		AccountID:      accountID,
		IdempotencyKey: idempotencyKey,
		Amount:         -amount,
		Reason:         reason,
		CreatedAt:      s.now(),
	}
	return bal.Credits, false, nil
}

func (s *MemoryStore) Spends(_ context.Context, accountID string) ([]SpendEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.spends[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]SpendEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
