// Package store owns the embedded relational database: schema, the
// schema-version ledger, and the do_tx transactional primitive every
// multi-row write in the system runs inside (spec.md §4.1, §5).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/agent-replay/tracecore/internal/apperr"
)

// CurrentSchemaVersion is the latest schema version this build knows how
// to migrate to. Only v0 (no schema_version row) -> v1 exists today
// (spec.md §4.1).
const CurrentSchemaVersion = 1

// Store is a handle to the embedded database. It is passed explicitly to
// every component that needs it; there is no package-level singleton
// connection, unlike the teacher's source pattern (spec.md §9).
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open ensures the parent directory exists, applies the schema if absent,
// enables WAL journaling and foreign-key enforcement, and returns a ready
// Store. A file lock guards the narrow window between file creation and
// the schema_version row existing, so two processes racing to initialize
// the same fresh database file don't both attempt migrations.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.Server, err, "create database directory %s", dir)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(context.Background(), 50*time.Millisecond)
	if err != nil {
		return nil, apperr.Wrap(apperr.Server, err, "acquire init lock for %s", path)
	}
	if !locked {
		// Another process is initializing; proceed anyway, the migration
		// transaction's own BEGIN IMMEDIATE serializes the actual DDL.
		log.Warn("store init lock busy, proceeding without it", "path", path)
	} else {
		defer func() { _ = lock.Unlock() }()
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_txlock=immediate")
	if err != nil {
		return nil, apperr.Wrap(apperr.Server, err, "open database %s", path)
	}
	// The store permits one writer at a time (spec.md §5); serializing all
	// access through a single connection makes that the concurrency
	// contract rather than something callers must separately coordinate.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.Server, err, "enable WAL journaling")
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.Server, err, "enable foreign key enforcement")
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.Server, err, "set busy timeout")
	}

	s := &Store{db: db, log: log}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DoTx runs f inside a single database transaction: BEGIN IMMEDIATE,
// then f, then COMMIT on success or ROLLBACK on error or panic. Every
// multi-row write (ingest, appendStep, fork, createEval) goes through
// this, per spec.md §5.
func (s *Store) DoTx(ctx context.Context, f func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Server, err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Server, err, "commit transaction")
	}
	return nil
}

// QueryDB exposes the underlying *sql.DB for read paths that don't need
// transactional semantics (resolver, diff, guardrail, evaluator reads).
func (s *Store) QueryDB() *sql.DB { return s.db }

// Logger returns the store's logger, so components built on top can log
// consistently without threading a separate logger argument everywhere.
func (s *Store) Logger() *slog.Logger { return s.log }

// TranslateWriteError maps raw SQLite constraint-violation text to the
// taxonomy spec.md §7 requires ("store-layer foreign-key or uniqueness
// errors are translated to invalid_input/invalid_state before crossing
// the API boundary"), the way the teacher's isUniqueConstraintError does
// for its own constraint checks.
func TranslateWriteError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return apperr.Wrap(apperr.InvalidInput, err, "uniqueness violation")
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return apperr.Wrap(apperr.InvalidState, err, "referenced row does not exist")
	case strings.Contains(msg, "CHECK constraint failed"):
		return apperr.Wrap(apperr.InvalidInput, err, "constraint violation")
	default:
		return apperr.Wrap(apperr.Server, err, "store error")
	}
}

var errNoRows = sql.ErrNoRows

// IsNoRows reports whether err is sql.ErrNoRows, unwrapped through any
// wrapping the caller applied.
func IsNoRows(err error) bool {
	return errors.Is(err, errNoRows)
}

// NowISO returns the current time formatted as an ISO-8601 / RFC3339
// string with millisecond precision, the format every stored timestamp
// uses (spec.md §6) so that lexicographic ordering matches chronological
// ordering.
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// FormatISO formats an arbitrary time the same way NowISO does.
func FormatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ParseISO parses a stored timestamp string back into a time.Time.
func ParseISO(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339Nano, s)
}
