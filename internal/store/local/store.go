// Package local хранит анонимный прогресс устройства одним JSON-блобом
// под фиксированным ключом, как это делает клиент в localStorage.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"soyle/internal/logger"
	"soyle/internal/models"
	"soyle/internal/progress"
)

// StorageKey - ключ блоба прогресса в хранилище устройства.
const StorageKey = "soyleProgress"

var errMalformed = errors.New("malformed local progress")

// Store реализует progress.Store поверх KV устройства (Identity.DeviceID).
type Store struct {
	kvs Namespaces
	log *logger.Logger

	// read-modify-write одного устройства не должен пересекаться сам с собой
	mu sync.Mutex
}

func NewStore(kvs Namespaces, log *logger.Logger) *Store {
	return &Store{kvs: kvs, log: log.With("component", "LocalProgressStore")}
}

func (s *Store) GetProgress(ctx context.Context, id models.Identity) (models.Progress, error) {
	if id.DeviceID == "" {
		return models.Progress{}, progress.ErrNotFound
	}
	p, err := s.read(ctx, id.DeviceID)
	if errors.Is(err, errMalformed) {
		// испорченные локальные данные считаются отсутствующими
		s.log.Warn("discarding malformed local progress", "device_id", id.DeviceID, "error", err)
		return models.Progress{}, progress.ErrNotFound
	}
	return p, err
}

func (s *Store) ApplyCompletion(ctx context.Context, id models.Identity, delta progress.Delta) error {
	if id.DeviceID == "" {
		return fmt.Errorf("local progress: empty device id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(ctx, id.DeviceID)
	switch {
	case err == nil:
	case errors.Is(err, progress.ErrNotFound):
		current = models.Progress{}
	case errors.Is(err, errMalformed):
		s.log.Warn("overwriting malformed local progress", "device_id", id.DeviceID, "error", err)
		current = models.Progress{}
	default:
		return err
	}

	next := progress.Apply(current, delta)
	blob, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode local progress: %w", err)
	}
	if err := s.kvs.Namespace(id.DeviceID).Set(ctx, StorageKey, string(blob)); err != nil {
		return fmt.Errorf("save local progress: %w", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, deviceID string) (models.Progress, error) {
	raw, ok, err := s.kvs.Namespace(deviceID).Get(ctx, StorageKey)
	if err != nil {
		return models.Progress{}, fmt.Errorf("load local progress: %w", err)
	}
	if !ok {
		return models.Progress{}, progress.ErrNotFound
	}

	var p models.Progress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return models.Progress{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if p.XP < 0 || p.CurrentStreak < 0 {
		return models.Progress{}, fmt.Errorf("%w: negative counters", errMalformed)
	}
	if p.CompletedLessons == nil {
		p.CompletedLessons = []string{}
	}
	return p, nil
}
