package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // драйвер PostgreSQL для database/sql

	"soyle/internal/logger"
)

const (
	maxRetries = 10
	retryDelay = 3 * time.Second
)

// Connect открывает пул к PostgreSQL и ждёт, пока база начнёт отвечать.
func Connect(ctx context.Context, dbURL string, log *logger.Logger) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	// sql.Open не устанавливает соединение, а только готовит пул
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection (driver error): %w", err)
	}

	var pingErr error
	for i := 1; i <= maxRetries; i++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			return db, nil
		}

		log.Warn("database not ready, retrying", "attempt", i, "max_attempts", maxRetries, "delay", retryDelay, "error", pingErr)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	db.Close()
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, pingErr)
}
