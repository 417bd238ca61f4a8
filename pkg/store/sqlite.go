package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteBackend stores documents as rows of a key/value table.
// Save writes all documents in one transaction.
type SQLiteBackend struct {
	db *sqlx.DB
}

// NewSQLiteBackend opens the database and makes sure the documents table exists
func NewSQLiteBackend(ctx context.Context, dsn string) (*SQLiteBackend, error) {
	if dsn == "" {
		dsn = "file:lotwatch.db?cache=shared&mode=rwc&_txlock=immediate"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, documentsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Load reads the named document into v
func (s *SQLiteBackend) Load(ctx context.Context, name string, v any) error {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM documents WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get document %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return fmt.Errorf("decode %s: %w: %v", name, ErrCorrupt, err)
	}
	return nil
}

// Save upserts all documents in a single transaction, retrying on lock errors
func (s *SQLiteBackend) Save(ctx context.Context, docs ...Document) error {
	values := make([]string, len(docs))
	for i, d := range docs {
		data, err := json.Marshal(d.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", d.Name, err)
		}
		values[i] = string(data)
	}

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	return retrier.Do(ctx, func() error {
		err := s.saveTx(ctx, docs, values)
		if err != nil && !isLockError(err) {
			return &criticalError{err: err}
		}
		return err
	}, errCritical)
}

func (s *SQLiteBackend) saveTx(ctx context.Context, docs []Document, values []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO documents (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	for i, d := range docs {
		if _, err := tx.ExecContext(ctx, query, d.Name, values[i]); err != nil {
			return fmt.Errorf("save document %s: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// errCritical is matched by repeater to stop retrying
var errCritical = errors.New("critical error")

// criticalError wraps an error to signal repeater to stop retrying
type criticalError struct {
	err error
}

func (e *criticalError) Error() string { return e.err.Error() }

// Is makes criticalError match errCritical
func (e *criticalError) Is(target error) bool { return target == errCritical }

// Unwrap returns the wrapped error
func (e *criticalError) Unwrap() error { return e.err }

// isLockError checks if an error is a SQLite lock/busy error
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked")
}
