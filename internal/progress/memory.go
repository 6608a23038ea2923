package progress

import (
	"context"
	"sync"

	"soyle/internal/models"
)

// MemoryStore - хранилище в памяти процесса (REMOTE_STORE=memory, тесты).
// Ключ - Identity.Key().
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.Progress
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.Progress)}
}

func (s *MemoryStore) GetProgress(_ context.Context, id models.Identity) (models.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.records[id.Key()]
	if !ok {
		return models.Progress{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ApplyCompletion(_ context.Context, id models.Identity, delta Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id.Key()] = Apply(s.records[id.Key()], delta)
	return nil
}
