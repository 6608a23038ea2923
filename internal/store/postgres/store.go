// Package postgres - удалённое хранилище прогресса пользователей в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"soyle/internal/logger"
	"soyle/internal/models"
	"soyle/internal/progress"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_progress (
	user_id              TEXT PRIMARY KEY,
	xp                   INTEGER NOT NULL DEFAULT 0 CHECK (xp >= 0),
	current_streak       INTEGER NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
	last_completion_date DATE,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS completed_lessons (
	id           BIGSERIAL,
	user_id      TEXT NOT NULL,
	lesson_id    TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, lesson_id)
);
`

type Store struct {
	DB  *sql.DB
	log *logger.Logger
}

func NewStore(db *sql.DB, log *logger.Logger) *Store {
	return &Store{DB: db, log: log.With("component", "PostgresProgressStore")}
}

// Migrate создаёт таблицы прогресса, если их ещё нет.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate progress tables: %w", classify(err))
	}
	return nil
}

func (s *Store) GetProgress(ctx context.Context, id models.Identity) (models.Progress, error) {
	if id.UserID == "" {
		return models.Progress{}, fmt.Errorf("%w: remote progress requires a signed-in user", progress.ErrPermissionDenied)
	}

	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return models.Progress{}, fmt.Errorf("begin read: %w", classify(err))
	}
	defer tx.Rollback()

	var (
		p    models.Progress
		last sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		"SELECT xp, current_streak, last_completion_date FROM user_progress WHERE user_id = $1",
		id.UserID,
	).Scan(&p.XP, &p.CurrentStreak, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Progress{}, progress.ErrNotFound
	}
	if err != nil {
		return models.Progress{}, fmt.Errorf("load progress: %w", classify(err))
	}
	if last.Valid {
		d := civil.DateOf(last.Time)
		p.LastCompletionDate = &d
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT lesson_id FROM completed_lessons WHERE user_id = $1 ORDER BY id",
		id.UserID,
	)
	if err != nil {
		return models.Progress{}, fmt.Errorf("load completed lessons: %w", classify(err))
	}
	defer rows.Close()

	p.CompletedLessons = []string{}
	for rows.Next() {
		var lessonID string
		if err := rows.Scan(&lessonID); err != nil {
			return models.Progress{}, fmt.Errorf("scan completed lesson: %w", classify(err))
		}
		p.CompletedLessons = append(p.CompletedLessons, lessonID)
	}
	if err := rows.Err(); err != nil {
		return models.Progress{}, fmt.Errorf("load completed lessons: %w", classify(err))
	}
	return p, nil
}

// ApplyCompletion выполняет дельту одной транзакцией. Если урок уже был
// в completed_lessons, транзакция фиксируется без изменений XP и серии.
func (s *Store) ApplyCompletion(ctx context.Context, id models.Identity, delta progress.Delta) error {
	if id.UserID == "" {
		return fmt.Errorf("%w: remote progress requires a signed-in user", progress.ErrPermissionDenied)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin completion: %w", classify(err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO completed_lessons (user_id, lesson_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, lesson_id) DO NOTHING`,
		id.UserID, delta.LessonID,
	)
	if err != nil {
		return fmt.Errorf("insert completed lesson: %w", classify(err))
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert completed lesson: %w", classify(err))
	}
	if inserted == 0 {
		s.log.Debug("lesson already completed, skipping delta", "user_id", id.UserID, "lesson_id", delta.LessonID)
		return classify(tx.Commit())
	}

	var (
		setStreak bool
		streak    int
		last      sql.NullTime
	)
	if delta.Streak != nil {
		setStreak = true
		streak = delta.Streak.Streak
		last = sql.NullTime{Time: delta.Streak.LastDate.In(time.UTC), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_progress (user_id, xp, current_streak, last_completion_date, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			xp = user_progress.xp + EXCLUDED.xp,
			current_streak = CASE WHEN $5 THEN EXCLUDED.current_streak ELSE user_progress.current_streak END,
			last_completion_date = CASE WHEN $5 THEN EXCLUDED.last_completion_date ELSE user_progress.last_completion_date END,
			updated_at = NOW()`,
		id.UserID, delta.XPIncrement, streak, last, setStreak,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit completion: %w", classify(err))
	}
	return nil
}
