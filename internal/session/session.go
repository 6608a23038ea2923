// Package session держит актуальное представление прогресса одного ученика
// и проводит все записи через очередь с одним обработчиком.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"soyle/internal/logger"
	"soyle/internal/models"
	"soyle/internal/progress"
)

var (
	ErrClosed = errors.New("session closed")
	// ErrSessionFailed - прогресс не удалось загрузить; сессия в состоянии Error.
	ErrSessionFailed = errors.New("progress session failed")
	ErrInvalidLesson = errors.New("invalid lesson completion")
)

type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot - состояние сессии на момент чтения. Progress имеет смысл только в Ready.
type Snapshot struct {
	State    State
	Progress models.Progress
	Err      error
}

// Outcome - результат прохождения урока.
type Outcome struct {
	Progress         models.Progress
	AlreadyCompleted bool
	// Streak == nil, если серия в этот день не менялась.
	Streak *progress.StreakUpdate
}

type job struct {
	ctx context.Context
	run func(ctx context.Context)
}

// Session - представление прогресса одной Identity. Хранилище выбирается
// при создании и больше не меняется.
type Session struct {
	id    models.Identity
	store progress.Store
	clock progress.Clock
	log   *logger.Logger

	mu   sync.RWMutex
	snap Snapshot

	jobs    chan job
	sendMu  sync.RWMutex
	closed  bool
	pending atomic.Int32 // принятые, но ещё не выполненные задания
	wg      sync.WaitGroup

	loads singleflight.Group
}

// New запускает обработчик очереди сессии. Close останавливает его.
func New(id models.Identity, store progress.Store, clock progress.Clock, log *logger.Logger) *Session {
	s := &Session{
		id:    id,
		store: store,
		clock: clock,
		log:   log.With("component", "Session", "identity", id.Key()),
		jobs:  make(chan job, 16),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *Session) Identity() models.Identity { return s.id }

func (s *Session) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		// задание, которое уже никто не ждёт, не начинаем
		if j.ctx.Err() == nil {
			j.run(context.WithoutCancel(j.ctx))
		}
		s.pending.Add(-1)
	}
}

// submit ставит задание в очередь. Принятое задание выполняется до конца,
// даже если вызывающий перестал ждать.
func (s *Session) submit(ctx context.Context, run func(ctx context.Context)) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.pending.Add(1)
	select {
	case s.jobs <- job{ctx: ctx, run: run}:
		return nil
	case <-ctx.Done():
		s.pending.Add(-1)
		return ctx.Err()
	}
}

// closeIfIdle закрывает очередь, только если в ней нет заданий.
// Не ждёт обработчик: пустая очередь завершает его сразу.
func (s *Session) closeIfIdle() bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return true
	}
	if s.pending.Load() > 0 {
		return false
	}
	s.closed = true
	close(s.jobs)
	return true
}

// Close дожидается выполнения принятых заданий.
func (s *Session) Close() {
	s.sendMu.Lock()
	if s.closed {
		s.sendMu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.sendMu.Unlock()
	s.wg.Wait()
}

// View возвращает текущее представление без обращения к хранилищу.
func (s *Session) View() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Progress = snap.Progress.Clone()
	return snap
}

func (s *Session) set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Load загружает прогресс, если он ещё не загружен. Одновременные вызовы
// объединяются в одно задание очереди. Отмена ctx прекращает ожидание,
// но не саму загрузку.
func (s *Session) Load(ctx context.Context) (Snapshot, error) {
	if snap := s.View(); snap.State == Ready {
		return snap, nil
	}

	ch := s.loads.DoChan("load", func() (any, error) {
		done := make(chan error, 1)
		err := s.submit(context.Background(), func(ctx context.Context) {
			done <- s.ensureLoaded(ctx)
		})
		if err != nil {
			return nil, err
		}
		return nil, <-done
	})

	select {
	case res := <-ch:
		return s.View(), res.Err
	case <-ctx.Done():
		return s.View(), ctx.Err()
	}
}

// ensureLoaded выполняется только обработчиком очереди.
func (s *Session) ensureLoaded(ctx context.Context) error {
	if s.View().State == Ready {
		return nil
	}
	s.set(Snapshot{State: Loading})

	p, err := s.store.GetProgress(ctx, s.id)
	switch {
	case err == nil:
	case errors.Is(err, progress.ErrNotFound):
		p = models.Progress{CompletedLessons: []string{}}
	default:
		err = fmt.Errorf("%w: %w", ErrSessionFailed, err)
		s.log.Error("failed to load progress", "error", err)
		s.set(Snapshot{State: Failed, Err: err})
		return err
	}

	s.log.Debug("progress loaded", "xp", p.XP, "completed", len(p.CompletedLessons))
	s.set(Snapshot{State: Ready, Progress: p})
	return nil
}

// CompleteLesson проводит прохождение урока через очередь сессии.
// Повторное прохождение урока ничего не меняет и возвращает AlreadyCompleted.
func (s *Session) CompleteLesson(ctx context.Context, lessonID string, points int) (Outcome, error) {
	if lessonID == "" {
		return Outcome{}, fmt.Errorf("%w: empty lesson id", ErrInvalidLesson)
	}
	if points <= 0 {
		return Outcome{}, fmt.Errorf("%w: lesson %q has %d points", ErrInvalidLesson, lessonID, points)
	}

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	err := s.submit(ctx, func(ctx context.Context) {
		out, err := s.complete(ctx, lessonID, points)
		done <- result{out, err}
	})
	if err != nil {
		return Outcome{}, err
	}

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (s *Session) complete(ctx context.Context, lessonID string, points int) (Outcome, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return Outcome{}, err
	}

	current := s.View().Progress
	if current.HasCompleted(lessonID) {
		return Outcome{Progress: current, AlreadyCompleted: true}, nil
	}

	delta := progress.Delta{LessonID: lessonID, XPIncrement: points}
	if upd, changed := progress.NextStreak(current.CurrentStreak, current.LastCompletionDate, s.clock.Today()); changed {
		delta.Streak = &upd
	}

	if err := s.store.ApplyCompletion(ctx, s.id, delta); err != nil {
		s.log.Warn("lesson completion was not saved", "lesson_id", lessonID, "error", err)
		return Outcome{}, err
	}

	next := progress.Apply(current, delta)
	s.set(Snapshot{State: Ready, Progress: next})
	s.log.Info("lesson completed", "lesson_id", lessonID, "xp", next.XP, "streak", next.CurrentStreak)
	return Outcome{Progress: next.Clone(), Streak: delta.Streak}, nil
}

// replay записывает уже пройденный урок без изменения серии.
func (s *Session) replay(ctx context.Context, lessonID string, points int) (bool, error) {
	type result struct {
		added bool
		err   error
	}
	done := make(chan result, 1)
	err := s.submit(ctx, func(ctx context.Context) {
		if err := s.ensureLoaded(ctx); err != nil {
			done <- result{err: err}
			return
		}
		current := s.View().Progress
		if current.HasCompleted(lessonID) {
			done <- result{}
			return
		}
		delta := progress.Delta{LessonID: lessonID, XPIncrement: points}
		if err := s.store.ApplyCompletion(ctx, s.id, delta); err != nil {
			done <- result{err: err}
			return
		}
		s.set(Snapshot{State: Ready, Progress: progress.Apply(current, delta)})
		done <- result{added: true}
	})
	if err != nil {
		return false, err
	}

	select {
	case r := <-done:
		return r.added, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
