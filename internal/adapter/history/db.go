package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 2

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version     INTEGER PRIMARY KEY,
    applied_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS device_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          TEXT NOT NULL,
    device      TEXT NOT NULL,
    action      TEXT NOT NULL,
    state       TEXT NOT NULL,
    surplus     REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_summaries (
    day              TEXT NOT NULL,
    device           TEXT NOT NULL,
    runtime_minutes  INTEGER NOT NULL,
    PRIMARY KEY (day, device)
);

CREATE INDEX IF NOT EXISTS idx_device_events_ts ON device_events(ts);
CREATE INDEX IF NOT EXISTS idx_device_events_device ON device_events(device);
`

const schemaV2 = `
CREATE TABLE IF NOT EXISTS daily_energy (
    day                       TEXT PRIMARY KEY,
    pv_kwh                    REAL NOT NULL,
    consumption_kwh           REAL NOT NULL,
    self_consumption_kwh      REAL NOT NULL,
    feed_in_kwh               REAL NOT NULL,
    grid_kwh                  REAL NOT NULL,
    battery_charge_kwh        REAL NOT NULL,
    battery_discharge_kwh     REAL NOT NULL,
    pv_power_max              REAL NOT NULL,
    consumption_power_max     REAL NOT NULL,
    feed_in_power_max         REAL NOT NULL,
    grid_power_max            REAL NOT NULL,
    surplus_power_max         REAL NOT NULL,
    battery_soc_min           REAL,
    battery_soc_max           REAL,
    autarky_avg               REAL NOT NULL,
    samples                   INTEGER NOT NULL,
    first_update              TEXT,
    last_update               TEXT
);
`

// migrations[i] brings the schema to version i+1.
var migrations = []string{schemaV1, schemaV2}

// DB wraps the SQLite history database.
type DB struct {
	*sql.DB
	path string
}

// Open opens or creates the database at path and brings its schema up to date.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer, the scheduler actor
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Tx runs fn in a transaction, rolling back when fn fails.
func (db *DB) Tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) Migrate(ctx context.Context) error {
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	return db.Tx(ctx, func(tx *sql.Tx) error {
		for v := version + 1; v <= currentSchemaVersion; v++ {
			if _, err := tx.ExecContext(ctx, migrations[v-1]); err != nil {
				return fmt.Errorf("failed to execute schema v%d: %w", v, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, v); err != nil {
				return fmt.Errorf("failed to record schema version: %w", err)
			}
		}
		return nil
	})
}

// SchemaVersion returns 0 for an empty database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&count)
	if err != nil || count == 0 {
		return 0, err
	}
	var version int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	return version, err
}
