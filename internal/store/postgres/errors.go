package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"soyle/internal/progress"
)

// SQLSTATE, которые означают временный сбой.
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P03": true, // cannot_connect_now
}

// classify приводит ошибку драйвера к ошибкам progress.Store.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501": // insufficient_privilege
			return fmt.Errorf("%w: %w", progress.ErrPermissionDenied, err)
		case transientCodes[pgErr.Code]:
			return fmt.Errorf("%w: %w", progress.ErrStoreUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err):
		return fmt.Errorf("%w: %w", progress.ErrStoreUnavailable, err)
	}
	return err
}
