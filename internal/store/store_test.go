package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traces.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAppliesSchema(t *testing.T) {
	s := openTestStore(t)

	var version int
	err := s.db.QueryRow(`SELECT max(version) FROM schema_version`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)

	var journalMode string
	require.NoError(t, s.db.QueryRow(`PRAGMA journal_mode`).Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var fk int
	require.NoError(t, s.db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	require.Equal(t, 1, fk)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.db")
	s1, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, nil)
	require.NoError(t, err)
	defer s2.Close()

	var count int
	require.NoError(t, s2.db.QueryRow(`SELECT count(*) FROM schema_version`).Scan(&count))
	require.Equal(t, 1, count)
}

var errIntentional = errors.New("intentional rollback trigger")

func TestDoTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	writeErr := s.DoTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.Exec(`INSERT INTO guardrail_policies
			(id, name, description, action, priority, enabled, match_pattern, action_params, tags, created_at, updated_at)
			VALUES ('pol_x','dup','', 'allow', 0, 1, '{}', '{}', '[]', ?, ?)`, NowISO(), NowISO())
		if execErr != nil {
			return execErr
		}
		return errIntentional
	})
	require.ErrorIs(t, writeErr, errIntentional)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT count(*) FROM guardrail_policies WHERE id='pol_x'`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestTranslateWriteError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insert := func() error {
		return s.DoTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.Exec(`INSERT INTO guardrail_policies
				(id, name, description, action, priority, enabled, match_pattern, action_params, tags, created_at, updated_at)
				VALUES (?, 'same-name', '', 'allow', 0, 1, '{}', '{}', '[]', ?, ?)`, "pol_a", NowISO(), NowISO())
			return err
		})
	}
	require.NoError(t, insert())

	err := s.DoTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO guardrail_policies
			(id, name, description, action, priority, enabled, match_pattern, action_params, tags, created_at, updated_at)
			VALUES (?, 'same-name', '', 'allow', 0, 1, '{}', '{}', '[]', ?, ?)`, "pol_b", NowISO(), NowISO())
		return err
	})
	require.Error(t, err)
	translated := TranslateWriteError(err)
	require.Error(t, translated)
}
