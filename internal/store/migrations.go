package store

import (
	"database/sql"
	"fmt"

	"github.com/agent-replay/tracecore/internal/apperr"
)

// runMigrations applies the schema, bringing a fresh or existing database
// up to CurrentSchemaVersion. Migration is monotonic: runMigrations reads
// the current version and applies any gap, the way the teacher's
// RunMigrations walks its migrationsList (spec.md §4.1). Only v0->v1
// exists today.
func (s *Store) runMigrations() error {
	// PRAGMA foreign_keys must be set when no transaction is active
	// (SQLite limitation); the teacher's migrations.go does the same
	// dance around its own schema-changing migrations.
	if _, err := s.db.Exec(`PRAGMA foreign_keys=OFF`); err != nil {
		return apperr.Wrap(apperr.Server, err, "disable foreign keys for migration")
	}
	defer func() { _, _ = s.db.Exec(`PRAGMA foreign_keys=ON`) }()

	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Wrap(apperr.Server, err, "begin migration transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	current, err := currentVersion(tx)
	if err != nil {
		return apperr.Wrap(apperr.Server, err, "read schema version")
	}

	if current < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return apperr.Wrap(apperr.Server, err, "apply schema v1")
		}
		if err := recordVersion(tx, 1); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Server, err, "commit migration")
	}
	committed = true
	return nil
}

func currentVersion(tx *sql.Tx) (int, error) {
	// schema_version itself may not exist yet on a brand new file.
	var exists int
	err := tx.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}
	var version sql.NullInt64
	err = tx.QueryRow(`SELECT max(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func recordVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`, version, NowISO())
	if err != nil {
		return apperr.Wrap(apperr.Server, err, fmt.Sprintf("record schema version %d", version))
	}
	return nil
}
