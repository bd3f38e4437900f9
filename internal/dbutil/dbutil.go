package dbutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sceneflow/internal/services"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Schema describes the DDL a store applies to a fresh database file.
type Schema struct {
	Name    string
	SQL     string
	Version int
}

// Open connects to the SQLite file at path, applies connection pragmas, and
// creates or verifies the schema. Failures are tagged services.ErrStorage.
func Open(ctx context.Context, path string, schema Schema) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrStorage, schema.Name, "open", "create directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, schema.Name, "open", path, err)
	}
	// One connection keeps writes serialized and lets :memory: databases work.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrStorage, schema.Name, "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	if err := initSchema(ctx, db, schema); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStorage, schema.Name, "open", "init schema", err)
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB, schema Schema) error {
	var tableExists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return WithTx(ctx, db, schema.Name, "create schema", func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schema.SQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schema.Version); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		})
	}

	var version int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schema.Version {
		return fmt.Errorf("%w: %s database has version %d, expected %d",
			ErrSchemaMismatch, schema.Name, version, schema.Version)
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise; every failure comes back tagged
// services.ErrStorage unless fn already returned a marked error.
func WithTx(ctx context.Context, db *sql.DB, component, operation string, fn func(*sql.Tx) error) error {
	return RetryOnBusy(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return services.Wrap(services.ErrStorage, component, operation, "begin transaction", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isMarked(err) {
				return err
			}
			return services.Wrap(services.ErrStorage, component, operation, "", err)
		}
		if err := tx.Commit(); err != nil {
			_ = tx.Rollback()
			return services.Wrap(services.ErrStorage, component, operation, "commit", err)
		}
		return nil
	})
}

// Exec runs a single statement with busy retries and returns rows affected.
func Exec(ctx context.Context, db *sql.DB, component, operation, query string, args ...any) (int64, error) {
	var affected int64
	err := RetryOnBusy(ctx, func() error {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, component, operation, "", err)
	}
	return affected, nil
}

// RetryOnBusy retries op with exponential backoff while SQLite reports the
// database as busy.
func RetryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// IsBusy reports whether err is SQLITE_BUSY or its "database is locked" form.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// FormatTime stores timestamps as RFC3339Nano text in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime accepts RFC3339Nano and SQLite's CURRENT_TIMESTAMP layout.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func isMarked(err error) bool {
	for _, marker := range []error{
		services.ErrStorage, services.ErrValidation, services.ErrNotFound,
		services.ErrConfiguration, services.ErrSecurity, services.ErrTransfer,
	} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}
