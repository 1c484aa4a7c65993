package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Technical attributes (data dictionary)
CREATE TABLE IF NOT EXISTS attributes (
    attr_id INTEGER PRIMARY KEY AUTOINCREMENT,
    product TEXT NOT NULL DEFAULT '',
    dominio TEXT NOT NULL DEFAULT '',
    aplication_csi TEXT NOT NULL DEFAULT '',
    origination_source TEXT NOT NULL DEFAULT '',
    table_source TEXT NOT NULL DEFAULT '',
    dataset_description TEXT NOT NULL DEFAULT '',
    physical_name TEXT NOT NULL DEFAULT '',
    variable_name TEXT NOT NULL DEFAULT '',
    desc_raw TEXT NOT NULL DEFAULT '',
    desc_clean TEXT NOT NULL DEFAULT '',
    iniciativa TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attributes_physical_name ON attributes(physical_name);

-- Critical data elements (business glossary)
CREATE TABLE IF NOT EXISTS cdes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cde_id TEXT NOT NULL UNIQUE,
    biz_term TEXT NOT NULL DEFAULT '',
    desc_raw TEXT NOT NULL DEFAULT '',
    desc_clean TEXT NOT NULL DEFAULT '',
    prod_domains TEXT NOT NULL DEFAULT '',
    cons_domains TEXT NOT NULL DEFAULT '',
    falta_desc BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_cdes_biz_term ON cdes(biz_term);

-- Reference catalogs
CREATE TABLE IF NOT EXISTS catalogs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    schema_name TEXT NOT NULL DEFAULT '',
    table_name TEXT NOT NULL DEFAULT '',
    desc_raw TEXT NOT NULL DEFAULT '',
    desc_clean TEXT NOT NULL DEFAULT '',
    atributos TEXT NOT NULL DEFAULT '',
    ejemplo_datos TEXT NOT NULL DEFAULT '',
    cde TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_catalogs_cde ON catalogs(cde);

-- One row per ingested file
CREATE TABLE IF NOT EXISTS ingestion_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    file_name TEXT NOT NULL DEFAULT '',
    table_name TEXT NOT NULL DEFAULT '',
    rows_inserted INTEGER NOT NULL DEFAULT 0,
    rows_failed INTEGER NOT NULL DEFAULT 0,
    details TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ingestion_log_run ON ingestion_log(run_id);
`

const migrationV1Down = `
DROP TABLE IF EXISTS ingestion_log;
DROP TABLE IF EXISTS catalogs;
DROP TABLE IF EXISTS cdes;
DROP TABLE IF EXISTS attributes;
DROP TABLE IF EXISTS schema_version;
`

const migrationV11Up = `
-- Data quality rules attached to CDEs
CREATE TABLE IF NOT EXISTS cde_quality_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cde_id TEXT NOT NULL,
    rule_natural TEXT NOT NULL DEFAULT '',
    rule_standard TEXT NOT NULL DEFAULT '',
    dimension TEXT NOT NULL DEFAULT '',
    field_type TEXT NOT NULL DEFAULT '',
    max_length INTEGER,
    scale INTEGER,
    pattern TEXT NOT NULL DEFAULT '',
    example TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_cde_quality_rules_cde ON cde_quality_rules(cde_id);
`

const migrationV11Down = `
DROP INDEX IF EXISTS idx_cde_quality_rules_cde;
DROP TABLE IF EXISTS cde_quality_rules;
`

// schemaVersion returns the highest applied migration version, or 0.0.0 on a
// fresh database
func schemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var table string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&table)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	// applied_at has one-second resolution, so several migrations applied
	// together tie on it; the highest version wins instead.
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer rows.Close()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to read schema_version: %w", err)
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", raw, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations in order. Each migration and
// its version record are applied in one transaction.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
		current = v
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for i := len(AllMigrations) - 1; i >= 0; i-- {
		m := AllMigrations[i]
		if m.Version != current.Original() && m.Version != current.String() {
			continue
		}
		if _, err := db.ExecContext(ctx, m.Down); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", m.Version, err)
		}
		// The down script may have dropped schema_version itself
		_, _ = db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", m.Version)
		return nil
	}

	return fmt.Errorf("no migrations to rollback from %s", current)
}
