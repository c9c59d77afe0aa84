package otp

import (
	"context"
	"sync"
	"time"

	"atelier/pkg/platform/sentinel"
)

// MemoryStore keeps records per email in insertion order.
type MemoryStore struct {
	mu      sync.Mutex
	byEmail map[string][]*Record
	byID    map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail: make(map[string][]*Record),
		byID:    make(map[string]*Record),
	}
}

func (s *MemoryStore) Create(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := record
	s.byEmail[r.Email] = append(s.byEmail[r.Email], &r)
	s.byID[r.ID] = &r
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byID, id)

	records := s.byEmail[r.Email]
	for i, candidate := range records {
		if candidate.ID == id {
			s.byEmail[r.Email] = append(records[:i], records[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) LatestUnconsumed(_ context.Context, email string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.byEmail[email]
	for i := len(records) - 1; i >= 0; i-- {
		if !records[i].Consumed {
			return *records[i], nil
		}
	}
	return Record{}, sentinel.ErrNotFound
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	r.AttemptCount++
	return r.AttemptCount, nil
}

func (s *MemoryStore) Consume(_ context.Context, id string, verifiedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if r.Consumed {
		return sentinel.ErrAlreadyUsed
	}
	r.Consumed = true
	r.VerifiedAt = verifiedAt
	return nil
}
