package progress

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"soyle/internal/logger"
	"soyle/internal/models"
)

// RetryConfig - параметры повторов для временных сбоев хранилища.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// RetryingStore повторяет операции, упавшие с ErrStoreUnavailable.
// ErrPermissionDenied и ErrNotFound возвращаются сразу.
type RetryingStore struct {
	next  Store
	get   retry.Retry[models.Progress]
	apply retry.Retry[struct{}]
	log   *logger.Logger
}

func NewRetryingStore(next Store, cfg RetryConfig, log *logger.Logger) *RetryingStore {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	isRetryable := func(err error) bool {
		return errors.Is(err, ErrStoreUnavailable)
	}

	return &RetryingStore{
		next: next,
		get: retry.New[models.Progress](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      cfg.MaxDelay,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		}),
		apply: retry.New[struct{}](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      cfg.MaxDelay,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		}),
		log: log.With("component", "RetryingStore"),
	}
}

func (s *RetryingStore) GetProgress(ctx context.Context, id models.Identity) (models.Progress, error) {
	var lastErr error
	attempt := 0
	p, err := s.get.Do(ctx, func(ctx context.Context) (models.Progress, error) {
		attempt++
		p, err := s.next.GetProgress(ctx, id)
		lastErr = err
		if err != nil && errors.Is(err, ErrStoreUnavailable) {
			s.log.Warn("progress read failed", "identity", id.Key(), "attempt", attempt, "error", err)
		}
		return p, err
	})
	if err != nil {
		return models.Progress{}, pickErr(lastErr, err)
	}
	return p, nil
}

func (s *RetryingStore) ApplyCompletion(ctx context.Context, id models.Identity, delta Delta) error {
	var lastErr error
	attempt := 0
	_, err := s.apply.Do(ctx, func(ctx context.Context) (struct{}, error) {
		attempt++
		err := s.next.ApplyCompletion(ctx, id, delta)
		lastErr = err
		if err != nil && errors.Is(err, ErrStoreUnavailable) {
			s.log.Warn("progress write failed", "identity", id.Key(), "lesson_id", delta.LessonID, "attempt", attempt, "error", err)
		}
		return struct{}{}, err
	})
	if err != nil {
		return pickErr(lastErr, err)
	}
	return nil
}

// pickErr: наружу отдаётся классифицированная ошибка хранилища, а не обёртка ретраера.
// Если ретраер остановился по контексту до первой попытки, возвращается его ошибка.
func pickErr(lastErr, err error) error {
	if lastErr != nil {
		return lastErr
	}
	return err
}
