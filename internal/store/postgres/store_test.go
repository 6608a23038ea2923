package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"soyle/internal/database"
	"soyle/internal/logger"
	"soyle/internal/models"
	"soyle/internal/progress"
	"soyle/internal/progress/progresstest"
)

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"insufficient privilege", &pgconn.PgError{Code: "42501"}, progress.ErrPermissionDenied},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, progress.ErrStoreUnavailable},
		{"admin shutdown", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "57P01"}), progress.ErrStoreUnavailable},
		{"network", refused, progress.ErrStoreUnavailable},
		{"deadline", context.DeadlineExceeded, progress.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}

	unique := &pgconn.PgError{Code: "23505"}
	got := classify(unique)
	if errors.Is(got, progress.ErrStoreUnavailable) || errors.Is(got, progress.ErrPermissionDenied) {
		t.Errorf("classify(unique_violation) = %v, want unclassified", got)
	}
	if classify(nil) != nil {
		t.Error("classify(nil) != nil")
	}
}

func TestStore_RequiresUser(t *testing.T) {
	s := NewStore(nil, logger.Nop())
	anon := models.Identity{DeviceID: "d1"}

	if _, err := s.GetProgress(context.Background(), anon); !errors.Is(err, progress.ErrPermissionDenied) {
		t.Errorf("GetProgress() error = %v, want ErrPermissionDenied", err)
	}
	if err := s.ApplyCompletion(context.Background(), anon, progress.Delta{LessonID: "l1", XPIncrement: 5}); !errors.Is(err, progress.ErrPermissionDenied) {
		t.Errorf("ApplyCompletion() error = %v, want ErrPermissionDenied", err)
	}
}

// Контракт против настоящей базы: TEST_DATABASE_URL=postgres://... go test ./internal/store/postgres
func TestStore_Contract(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, url, logger.Nop())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewStore(db, logger.Nop())
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	progresstest.Run(t, func(t *testing.T) progress.Store {
		if _, err := db.ExecContext(ctx, "TRUNCATE user_progress, completed_lessons"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	}, models.Identity{UserID: "contract-user"})
}
