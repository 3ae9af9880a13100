package lotstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pelicanplatform/lotman-go/internal/lotkind"
)

var perLotTables = []string{"owners", "parents", "paths", "management_policy_attributes", "lot_usage"}

// migrate classifies the database as fresh, legacy-v0, versioned-N, or
// incompatible (spec.md §4.1) and brings it up to TargetSchemaVersion.
func (s *Store) migrate(ctx context.Context) error {
	existing, err := s.existingTables(ctx)
	if err != nil {
		return err
	}

	anyPerLotTable := false
	for _, t := range perLotTables {
		if existing[t] {
			anyPerLotTable = true
			break
		}
	}

	if !anyPerLotTable && !existing["schema_versions"] {
		return s.migrateFresh(ctx)
	}

	if !existing["schema_versions"] {
		return s.migrateLegacyV0(ctx)
	}

	version, err := s.readSchemaVersion(ctx)
	if err != nil {
		return err
	}

	if version == TargetSchemaVersion {
		return nil
	}

	if version > TargetSchemaVersion {
		return lotkind.New(lotkind.MigrationRefused,
			fmt.Sprintf("schema mismatch: on-disk schema version %d is newer than this build's target %d; refusing to open to avoid data loss", version, TargetSchemaVersion))
	}

	return s.migrateForward(ctx, version)
}

func (s *Store) existingTables(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, lotkind.Wrap(lotkind.StoreError, "failed to inspect schema", err)
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, lotkind.Wrap(lotkind.StoreError, "failed to scan table name", err)
		}
		found[strings.ToLower(name)] = true
	}
	return found, rows.Err()
}

func (s *Store) migrateFresh(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return lotkind.Wrap(lotkind.StoreError, "failed to create schema", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO schema_versions (id, version) VALUES (1, ?)", TargetSchemaVersion); err != nil {
		return lotkind.Wrap(lotkind.StoreError, "failed to record schema version", err)
	}
	return nil
}

func (s *Store) migrateLegacyV0(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return lotkind.Wrap(lotkind.StoreError, "failed to create schema_versions table", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_versions (id, version) VALUES (1, 0)"); err != nil {
		return lotkind.Wrap(lotkind.StoreError, "failed to seed legacy schema version", err)
	}
	return s.migrateForward(ctx, 0)
}

func (s *Store) migrateForward(ctx context.Context, from int) error {
	for v := from; v < TargetSchemaVersion; v++ {
		if err := s.runMigrationStep(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// runMigrationStep applies the single v->v+1 migration inside one
// transaction, then advances the recorded version.
func (s *Store) runMigrationStep(ctx context.Context, from int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lotkind.Wrap(lotkind.StoreError, "failed to begin migration transaction", err)
	}

	if err := applyMigration(ctx, tx, from); err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE schema_versions SET version = ? WHERE id = 1", from+1); err != nil {
		tx.Rollback()
		return lotkind.Wrap(lotkind.StoreError, "failed to record schema version", err)
	}

	if err := tx.Commit(); err != nil {
		return lotkind.Wrap(lotkind.StoreError, "failed to commit migration", err)
	}
	return nil
}

// applyMigration runs the body of the v->v+1 migration for the given
// `from` version.
func applyMigration(ctx context.Context, tx *sql.Tx, from int) error {
	switch from {
	case 0:
		return migrateV0ToV1(ctx, tx)
	default:
		return lotkind.New(lotkind.MigrationRefused, fmt.Sprintf("no migration defined from version %d", from))
	}
}

// migrateV0ToV1 rewrites every path in the Path table so it ends with a
// trailing slash, the target schema's normal form (spec.md §4.1, §8).
func migrateV0ToV1(ctx context.Context, tx *sql.Tx) error {
	// Ensure the table exists in legacy installs that predate it (e.g. a
	// genuinely empty v0 database).
	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS paths (
		path TEXT PRIMARY KEY,
		lot_name TEXT NOT NULL,
		recursive INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		return lotkind.Wrap(lotkind.StoreError, "failed to ensure paths table", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT path, lot_name, recursive FROM paths")
	if err != nil {
		return lotkind.Wrap(lotkind.StoreError, "failed to read paths for migration", err)
	}

	type row struct {
		path, lotName string
		recursive     int
	}
	var toFix []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.path, &r.lotName, &r.recursive); err != nil {
			rows.Close()
			return lotkind.Wrap(lotkind.StoreError, "failed to scan path row", err)
		}
		if !strings.HasSuffix(r.path, "/") {
			toFix = append(toFix, r)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return lotkind.Wrap(lotkind.StoreError, "failed to iterate paths for migration", err)
	}
	rows.Close()

	for _, r := range toFix {
		if _, err := tx.ExecContext(ctx, "DELETE FROM paths WHERE path = ?", r.path); err != nil {
			return lotkind.Wrap(lotkind.StoreError, "failed to migrate path row", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO paths (path, lot_name, recursive) VALUES (?, ?, ?)",
			r.path+"/", r.lotName, r.recursive); err != nil {
			return lotkind.Wrap(lotkind.StoreError, "failed to migrate path row", err)
		}
	}
	return nil
}

func (s *Store) readSchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_versions WHERE id = 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, lotkind.Wrap(lotkind.StoreError, "failed to read schema version", err)
	}
	return version, nil
}
