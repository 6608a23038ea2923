// Package sqlitekv - файловое хранилище устройств на SQLite,
// реализующее local.Namespaces.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"soyle/internal/store/local"
)

// DB - соединение с файлом SQLite.
type DB struct {
	*sql.DB
}

// Open открывает базу в режиме WAL и создаёт таблицу kv.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)

	kv := &DB{DB: db}
	if err := kv.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

func (db *DB) migrate() error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (namespace, key)
	)`)
	if err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// Namespace возвращает KV одного устройства.
func (db *DB) Namespace(name string) local.KV {
	return &namespace{db: db.DB, name: name}
}

type namespace struct {
	db   *sql.DB
	name string
}

func (n *namespace) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := n.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE namespace = ? AND key = ?", n.name, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", n.name, key, err)
	}
	return value, true, nil
}

func (n *namespace) Set(ctx context.Context, key, value string) error {
	_, err := n.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		n.name, key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", n.name, key, err)
	}
	return nil
}
