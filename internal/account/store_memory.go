package account

import (
	"context"
	"sync"

	"atelier/pkg/platform/sentinel"
)

// MemoryStore favors clarity over performance; it backs unit tests and the
// storeless dev mode.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[acct.Email]; taken {
		return sentinel.ErrConflict
	}
	s.byID[acct.ID] = acct
	s.byEmail[acct.Email] = acct.ID
	return nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return Account{}, sentinel.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.byID[id]
	if !ok {
		return Account{}, sentinel.ErrNotFound
	}
	return acct, nil
}
