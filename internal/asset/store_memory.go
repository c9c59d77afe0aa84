package asset

import (
	"context"
	"sort"
	"sync"

	"atelier/pkg/platform/sentinel"
)

type MemoryStore struct {
	mu      sync.RWMutex
	byJobID map[string]Asset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byJobID: make(map[string]Asset)}
}

func (s *MemoryStore) Upsert(_ context.Context, a Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byJobID[a.JobID]; ok {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	}
	s.byJobID[a.JobID] = a
	return nil
}

func (s *MemoryStore) FindByJobID(_ context.Context, jobID string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byJobID[jobID]
	if !ok {
		return Asset{}, sentinel.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Asset
	for _, a := range s.byJobID {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
