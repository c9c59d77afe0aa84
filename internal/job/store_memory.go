package job

import (
	"context"
	"sync"
	"time"

	"atelier/pkg/platform/sentinel"
)

// MemoryStore guards the job table with one mutex; the transition check and
// the write share the critical section.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Create(_ context.Context, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return sentinel.ErrConflict
	}
	s.jobs[j.ID] = j
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, sentinel.ErrNotFound
	}
	return j, nil
}

func (s *MemoryStore) ApplyStatus(_ context.Context, id string, status Status, result *Result, errMsg string, now time.Time) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false, sentinel.ErrNotFound
	}

	if j.Status.IsTerminal() {
		return j, false, nil
	}

	j.Status = status
	j.UpdatedAt = now
	if status == StatusSucceeded {
		j.Result = result
		j.Error = ""
	}
	if status == StatusFailed {
		j.Error = errMsg
		j.Result = nil
	}
	s.jobs[id] = j
	return j, true, nil
}
