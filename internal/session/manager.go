package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"soyle/internal/logger"
	"soyle/internal/models"
	"soyle/internal/progress"
)

// DefaultIdleTTL - сколько сессия живёт без обращений.
const DefaultIdleTTL = 15 * time.Minute

// Manager выдаёт по одной Session на Identity. Анонимные сессии пишут
// в локальное хранилище устройства, сессии пользователей - в удалённое.
// Простаивающие сессии закрываются EvictIdle.
type Manager struct {
	remote progress.Store
	local  progress.Store
	clock  progress.Clock
	log    *logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

type entry struct {
	s        *Session
	lastUsed time.Time
}

func NewManager(remote, local progress.Store, clock progress.Clock, log *logger.Logger) *Manager {
	return &Manager{
		remote:   remote,
		local:    local,
		clock:    clock,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get возвращает сессию identity, создавая её при первом обращении.
func (m *Manager) Get(id models.Identity) (*Session, error) {
	if id.UserID == "" && id.DeviceID == "" {
		return nil, fmt.Errorf("session: identity has neither user nor device")
	}
	// пользователь определяется только по UserID
	if !id.Anonymous() {
		id.DeviceID = ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	key := id.Key()
	if e, ok := m.sessions[key]; ok {
		e.lastUsed = m.now()
		return e.s, nil
	}

	store := m.remote
	if id.Anonymous() {
		store = m.local
	}
	s := New(id, store, m.clock, m.log)
	m.sessions[key] = &entry{s: s, lastUsed: m.now()}
	return s, nil
}

// Len - число открытых сессий.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle закрывает сессии, к которым не обращались дольше ttl.
// Сессии с заданиями в очереди остаются до следующего раза.
func (m *Manager) EvictIdle(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	var evicted []*Session
	for key, e := range m.sessions {
		if e.lastUsed.After(cutoff) {
			continue
		}
		if e.s.closeIfIdle() {
			delete(m.sessions, key)
			evicted = append(evicted, e.s)
		}
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.wg.Wait()
	}
	if len(evicted) > 0 {
		m.log.Debug("idle sessions evicted", "count", len(evicted))
	}
	return len(evicted)
}

// RunJanitor вызывает EvictIdle каждые ttl/2, пока не отменён ctx.
func (m *Manager) RunJanitor(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictIdle(ttl)
		}
	}
}

// MergeResult - итог переноса анонимного прогресса.
type MergeResult struct {
	Imported []string
	Progress models.Progress
}

// MergeAnonymous переносит пройденные на устройстве уроки в запись пользователя.
// XP начисляется по очкам урока из points; уроки, которых нет в каталоге или
// уже пройденные пользователем, пропускаются. Серия пользователя не меняется,
// локальная запись устройства остаётся как есть.
func (m *Manager) MergeAnonymous(ctx context.Context, user models.Identity, deviceID string, points func(lessonID string) (int, bool)) (MergeResult, error) {
	if user.Anonymous() {
		return MergeResult{}, fmt.Errorf("%w: merge target must be a signed-in user", progress.ErrPermissionDenied)
	}

	device, err := m.Get(models.Identity{DeviceID: deviceID})
	if err != nil {
		return MergeResult{}, err
	}
	local, err := device.Load(ctx)
	if err != nil {
		return MergeResult{}, err
	}

	target, err := m.Get(user)
	if err != nil {
		return MergeResult{}, err
	}
	if _, err := target.Load(ctx); err != nil {
		return MergeResult{}, err
	}

	res := MergeResult{Imported: []string{}}
	for _, lessonID := range local.Progress.CompletedLessons {
		pts, ok := points(lessonID)
		if !ok {
			m.log.Warn("skipping unknown lesson during merge", "lesson_id", lessonID, "device_id", deviceID)
			continue
		}
		added, err := target.replay(ctx, lessonID, pts)
		if err != nil {
			return res, err
		}
		if added {
			res.Imported = append(res.Imported, lessonID)
		}
	}

	res.Progress = target.View().Progress
	m.log.Info("anonymous progress merged", "user_id", user.UserID, "device_id", deviceID, "imported", len(res.Imported))
	return res, nil
}

// Close закрывает все сессии, дожидаясь их очередей.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		sessions = append(sessions, e.s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
