package payment

import (
	"context"
	"sync"
	"time"

	"atelier/pkg/platform/sentinel"
)

type MemoryStore struct {
	mu      sync.Mutex
	byOrder map[string]Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOrder: make(map[string]Transaction)}
}

func (s *MemoryStore) Create(_ context.Context, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byOrder[tx.OrderID]; ok {
		// A stub from an early webhook may already exist; adopt it instead of
		// conflicting, keeping the mirrored status.
		if existing.OwnerID == "" {
			existing.OwnerID = tx.OwnerID
			existing.Amount = tx.Amount
			existing.Kind = tx.Kind
			existing.Provider = tx.Provider
			s.byOrder[tx.OrderID] = existing
			return nil
		}
		return sentinel.ErrConflict
	}
	s.byOrder[tx.OrderID] = tx
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byOrder[orderID]
	if !ok {
		return Transaction{}, sentinel.ErrNotFound
	}
	return tx, nil
}

func (s *MemoryStore) ApplyNotice(_ context.Context, orderID, status string, payload []byte, now time.Time) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byOrder[orderID]
	if !ok {
		tx = Transaction{
			OrderID:   orderID,
			CreatedAt: now,
		}
	}

	tx.Status = status
	tx.Payload = payload
	tx.UpdatedAt = now
	s.byOrder[orderID] = tx

	return tx, nil
}
