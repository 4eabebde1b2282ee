package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "spesa/internal/log"

	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02 15:04:05"

// SQLiteRepository is the single persistence gateway for users, categories,
// expenses and pending OAuth authorizations.
type SQLiteRepository struct {
	db     *sql.DB
	now    func() time.Time
	logger *applog.Logger
}

// NewSQLiteRepository opens (creating if needed) and migrates the database.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewFromDB(db), nil
}

// NewFromDB wraps an already opened database. The schema must exist.
func NewFromDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:     db,
		now:    time.Now,
		logger: applog.Default(applog.ComponentStorage),
	}
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// WithClock overrides the timestamp source.
func (r *SQLiteRepository) WithClock(now func() time.Time) *SQLiteRepository {
	r.now = now
	return r
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// withTx runs fn in a transaction, rolling back on any error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.ErrorContext(ctx, "Rollback failed", applog.FieldError, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
