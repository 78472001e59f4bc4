package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	// Pragmas to improve reliability
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaEquipment = `
CREATE TABLE IF NOT EXISTS equipment (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL,
    type TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    installed_at TIMESTAMP,
    tracking_status TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT 1,
    vulnerable BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_equipment_client ON equipment (client_id);
`

const schemaMaintenance = `
CREATE TABLE IF NOT EXISTS maintenance_events (
    id TEXT PRIMARY KEY,
    equipment_id TEXT NOT NULL REFERENCES equipment (id),
    occurred_at TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    technician TEXT NOT NULL DEFAULT '',
    related_alert_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_maintenance_equipment ON maintenance_events (equipment_id, occurred_at);
`

const schemaMeasurements = `
CREATE TABLE IF NOT EXISTS measurements (
    id TEXT PRIMARY KEY,
    equipment_id TEXT NOT NULL REFERENCES equipment (id),
    kind TEXT NOT NULL,
    taken_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    channels TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_measurements_equipment ON measurements (equipment_id, taken_at);
CREATE TABLE IF NOT EXISTS measurement_channels (
    measurement_id TEXT NOT NULL REFERENCES measurements (id),
    name TEXT NOT NULL,
    value REAL NOT NULL,
    status TEXT NOT NULL,
    PRIMARY KEY (measurement_id, name)
);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    equipment_id TEXT NOT NULL REFERENCES equipment (id),
    client_id TEXT NOT NULL,
    type TEXT NOT NULL,
    severity INTEGER NOT NULL CHECK (severity BETWEEN 1 AND 4),
    criticality TEXT NOT NULL,
    state TEXT NOT NULL,
    channel TEXT NOT NULL,
    failure_category TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL,
    data TEXT,
    validated BOOLEAN NOT NULL DEFAULT 0,
    false_positive BOOLEAN NOT NULL DEFAULT 0,
    reliability REAL NOT NULL DEFAULT 0,
    measurement_id TEXT NOT NULL DEFAULT '',
    measured_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    validated_at TIMESTAMP,
    closed_at TIMESTAMP,
    updated_at TIMESTAMP NOT NULL,
    CHECK (NOT (validated AND false_positive))
);
CREATE INDEX IF NOT EXISTS idx_alerts_open ON alerts (equipment_id, channel, state);
CREATE INDEX IF NOT EXISTS idx_alerts_client ON alerts (client_id, created_at);
`

const schemaRiskProfiles = `
CREATE TABLE IF NOT EXISTS risk_profiles (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL,
    equipment_type TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    thresholds TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (client_id, equipment_type)
);
`

const schemaClusters = `
CREATE TABLE IF NOT EXISTS root_cause_clusters (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL,
    scope TEXT NOT NULL,
    subject TEXT NOT NULL,
    channel TEXT NOT NULL,
    cause_category TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    priority TEXT NOT NULL,
    predominant_severity INTEGER NOT NULL,
    alert_ids TEXT NOT NULL,
    occurrences INTEGER NOT NULL,
    first_occurrence TIMESTAMP NOT NULL,
    last_occurrence TIMESTAMP NOT NULL,
    avg_interval_hours REAL NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clusters_client ON root_cause_clusters (client_id);
`

const schemaVulnerabilityFlags = `
CREATE TABLE IF NOT EXISTS vulnerability_flags (
    equipment_id TEXT PRIMARY KEY REFERENCES equipment (id),
    client_id TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL,
    risk_score REAL NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    computed_at TIMESTAMP NOT NULL
);
`

const schemaPipelineEvents = `
CREATE TABLE IF NOT EXISTS pipeline_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    equipment_id TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL,
    meta TEXT
);
CREATE INDEX IF NOT EXISTS idx_pipeline_events_time ON pipeline_events (occurred_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaEquipment,
		schemaMaintenance,
		schemaMeasurements,
		schemaAlerts,
		schemaRiskProfiles,
		schemaClusters,
		schemaVulnerabilityFlags,
		schemaPipelineEvents,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
