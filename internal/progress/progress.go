// Package progress содержит чистую логику прогресса (серия дней, открытие уроков)
// и общий интерфейс хранилищ прогресса.
package progress

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"soyle/internal/models"
)

var (
	// ErrNotFound - записи прогресса ещё нет.
	ErrNotFound = errors.New("progress not found")
	// ErrPermissionDenied - хранилище отклонило запись. Не повторяется.
	ErrPermissionDenied = errors.New("progress store: permission denied")
	// ErrStoreUnavailable - временный сбой хранилища. Повторяется с backoff.
	ErrStoreUnavailable = errors.New("progress store unavailable")
)

// StreakUpdate - новые значения полей серии.
type StreakUpdate struct {
	Streak   int        `json:"current_streak"`
	LastDate civil.Date `json:"last_completion_date"`
}

// Delta - изменение, которое вносит прохождение урока.
// Streak == nil означает "серию не трогать" (второй урок за день).
type Delta struct {
	LessonID    string
	XPIncrement int
	Streak      *StreakUpdate
}

// Store - хранилище прогресса. Ключ записи выбирает сама реализация:
// удалённая - по UserID, локальная - по DeviceID.
type Store interface {
	GetProgress(ctx context.Context, id models.Identity) (models.Progress, error)
	// ApplyCompletion атомарно: XP увеличивается только вместе с добавлением урока
	// в множество пройденных. Повторная дельта того же урока ничего не меняет.
	ApplyCompletion(ctx context.Context, id models.Identity, delta Delta) error
}

// Apply применяет дельту к прогрессу в памяти, с той же семантикой, что и хранилища.
func Apply(p models.Progress, d Delta) models.Progress {
	out := p.Clone()
	if out.HasCompleted(d.LessonID) {
		return out
	}
	out.XP += d.XPIncrement
	out.CompletedLessons = append(out.CompletedLessons, d.LessonID)
	if d.Streak != nil {
		date := d.Streak.LastDate
		out.CurrentStreak = d.Streak.Streak
		out.LastCompletionDate = &date
	}
	return out
}
