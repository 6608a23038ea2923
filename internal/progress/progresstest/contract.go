// Package progresstest - общий набор проверок для реализаций progress.Store.
package progresstest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"soyle/internal/models"
	"soyle/internal/progress"
)

// Run прогоняет контракт хранилища. newStore вызывается на каждый подтест
// и должен возвращать пустое хранилище; id - владелец записи.
func Run(t *testing.T, newStore func(t *testing.T) progress.Store, id models.Identity) {
	t.Run("missing record", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetProgress(context.Background(), id); !errors.Is(err, progress.ErrNotFound) {
			t.Fatalf("GetProgress() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		day := civil.Date{Year: 2025, Month: time.March, Day: 1}

		deltas := []progress.Delta{
			{LessonID: "s1-l1", XPIncrement: 5, Streak: &progress.StreakUpdate{Streak: 1, LastDate: day}},
			{LessonID: "s1-l2", XPIncrement: 7},
			{LessonID: "s1-l3", XPIncrement: 5, Streak: &progress.StreakUpdate{Streak: 2, LastDate: day.AddDays(1)}},
		}
		for _, d := range deltas {
			if err := s.ApplyCompletion(ctx, id, d); err != nil {
				t.Fatalf("ApplyCompletion(%s) error = %v", d.LessonID, err)
			}
		}

		p, err := s.GetProgress(ctx, id)
		if err != nil {
			t.Fatalf("GetProgress() error = %v", err)
		}
		if p.XP != 17 || p.CurrentStreak != 2 {
			t.Errorf("xp = %d, streak = %d; want 17, 2", p.XP, p.CurrentStreak)
		}
		if p.LastCompletionDate == nil || *p.LastCompletionDate != day.AddDays(1) {
			t.Errorf("lastCompletionDate = %v, want %v", p.LastCompletionDate, day.AddDays(1))
		}
		want := []string{"s1-l1", "s1-l2", "s1-l3"}
		if fmt.Sprint(p.CompletedLessons) != fmt.Sprint(want) {
			t.Errorf("completedLessons = %v, want %v", p.CompletedLessons, want)
		}
	})

	t.Run("duplicate delta is a no-op", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		day := civil.Date{Year: 2025, Month: time.March, Day: 1}

		first := progress.Delta{LessonID: "s1-l1", XPIncrement: 5, Streak: &progress.StreakUpdate{Streak: 1, LastDate: day}}
		again := progress.Delta{LessonID: "s1-l1", XPIncrement: 5, Streak: &progress.StreakUpdate{Streak: 9, LastDate: day.AddDays(3)}}
		for _, d := range []progress.Delta{first, again, first} {
			if err := s.ApplyCompletion(ctx, id, d); err != nil {
				t.Fatal(err)
			}
		}

		p, err := s.GetProgress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if p.XP != 5 || len(p.CompletedLessons) != 1 || p.CurrentStreak != 1 || *p.LastCompletionDate != day {
			t.Errorf("GetProgress() = %+v", p)
		}
	})

	t.Run("concurrent deltas", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for i := 0; i < 20; i++ {
			for j := 0; j < 2; j++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- s.ApplyCompletion(ctx, id, progress.Delta{LessonID: fmt.Sprintf("l%d", i), XPIncrement: 3})
				}(i)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatal(err)
			}
		}

		p, err := s.GetProgress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if p.XP != 60 || len(p.CompletedLessons) != 20 {
			t.Errorf("xp = %d, lessons = %d; want 60, 20", p.XP, len(p.CompletedLessons))
		}
	})
}
