// Package redisstore - удалённое хранилище прогресса в Redis.
//
// Ключи пользователя:
//
//	progress:{uid}            hash: xp, currentStreak, lastCompletionDate
//	progress:{uid}:completed  set пройденных уроков
//	progress:{uid}:order      list уроков в порядке прохождения
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	goredis "github.com/redis/go-redis/v9"

	"soyle/internal/logger"
	"soyle/internal/models"
	"soyle/internal/progress"
)

// applyScript добавляет урок и начисляет XP одной атомарной операцией.
// Возвращает 1, если урок добавлен, и 0, если он уже был пройден.
var applyScript = goredis.NewScript(`
if redis.call('SADD', KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call('RPUSH', KEYS[3], ARGV[1])
redis.call('HINCRBY', KEYS[1], 'xp', ARGV[2])
if ARGV[3] == '1' then
  redis.call('HSET', KEYS[1], 'currentStreak', ARGV[4], 'lastCompletionDate', ARGV[5])
end
return 1
`)

type Store struct {
	rdb goredis.UniversalClient
	log *logger.Logger
}

func NewStore(rdb goredis.UniversalClient, log *logger.Logger) *Store {
	return &Store{rdb: rdb, log: log.With("component", "RedisProgressStore")}
}

// Dial создаёт клиента и проверяет соединение.
func Dial(ctx context.Context, opts *goredis.Options) (*goredis.Client, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func keys(userID string) []string {
	// хеш-тег {uid} кладёт все три ключа в один слот кластера
	base := "progress:{" + userID + "}"
	return []string{base, base + ":completed", base + ":order"}
}

func (s *Store) GetProgress(ctx context.Context, id models.Identity) (models.Progress, error) {
	if id.UserID == "" {
		return models.Progress{}, fmt.Errorf("%w: remote progress requires a signed-in user", progress.ErrPermissionDenied)
	}
	k := keys(id.UserID)

	var (
		fields *goredis.MapStringStringCmd
		order  *goredis.StringSliceCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, k[0])
		order = pipe.LRange(ctx, k[2], 0, -1)
		return nil
	})
	if err != nil {
		return models.Progress{}, fmt.Errorf("load progress: %w", classify(err))
	}

	h := fields.Val()
	lessons := order.Val()
	if len(h) == 0 && len(lessons) == 0 {
		return models.Progress{}, progress.ErrNotFound
	}

	p := models.Progress{CompletedLessons: append([]string{}, lessons...)}
	if p.XP, err = intField(h, "xp"); err != nil {
		return models.Progress{}, err
	}
	if p.CurrentStreak, err = intField(h, "currentStreak"); err != nil {
		return models.Progress{}, err
	}
	if raw := h["lastCompletionDate"]; raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return models.Progress{}, fmt.Errorf("corrupt lastCompletionDate %q: %w", raw, err)
		}
		p.LastCompletionDate = &d
	}
	return p, nil
}

func intField(h map[string]string, name string) (int, error) {
	raw, ok := h[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt %s %q: %w", name, raw, err)
	}
	return n, nil
}

func (s *Store) ApplyCompletion(ctx context.Context, id models.Identity, delta progress.Delta) error {
	if id.UserID == "" {
		return fmt.Errorf("%w: remote progress requires a signed-in user", progress.ErrPermissionDenied)
	}

	setStreak, streak, last := "0", "0", ""
	if delta.Streak != nil {
		setStreak = "1"
		streak = strconv.Itoa(delta.Streak.Streak)
		last = delta.Streak.LastDate.String()
	}

	added, err := applyScript.Run(ctx, s.rdb, keys(id.UserID),
		delta.LessonID, delta.XPIncrement, setStreak, streak, last,
	).Int()
	if err != nil {
		return fmt.Errorf("apply completion: %w", classify(err))
	}
	if added == 0 {
		s.log.Debug("lesson already completed, skipping delta", "user_id", id.UserID, "lesson_id", delta.LessonID)
	}
	return nil
}

// classify приводит ошибку клиента к ошибкам progress.Store.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var redisErr goredis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		for _, prefix := range []string{"NOPERM", "NOAUTH", "WRONGPASS"} {
			if strings.HasPrefix(msg, prefix) {
				return fmt.Errorf("%w: %w", progress.ErrPermissionDenied, err)
			}
		}
		for _, prefix := range []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "READONLY"} {
			if strings.HasPrefix(msg, prefix) {
				return fmt.Errorf("%w: %w", progress.ErrStoreUnavailable, err)
			}
		}
		return err
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, goredis.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", progress.ErrStoreUnavailable, err)
	}
	return err
}
