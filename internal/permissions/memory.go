package permissions

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It backs single-profile deployments
// and every test double in the repo.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]PermissionRequest
}

// NewMemoryStore creates an empty in-memory permission store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]PermissionRequest)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (PermissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return PermissionRequest{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Put(_ context.Context, req PermissionRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[req.Key] = req
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) ListByOrigin(_ context.Context, origin string) ([]PermissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []PermissionRequest
	for _, rec := range s.records {
		if rec.Origin == origin {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
