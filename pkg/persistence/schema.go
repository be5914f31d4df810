// Package persistence provides SQLite-based storage for agent configs,
// escalations, routing decisions, and canonical answers.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// InitializeDatabase creates and initializes the SQLite database with the
// required schema. Idempotent and safe to call multiple times.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite supports a single writer; serialize at the pool level.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// initializeSchemaWithMigrations ensures the database schema is at the
// current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion == 0 {
		return createSchema(db)
	}
	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies a specific version migration.
func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds the context summary column carried alongside the
// original message on escalations.
func migrateToVersion2(db *sql.DB) error {
	if _, err := db.Exec("ALTER TABLE escalations ADD COLUMN context_summary TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("failed to add context_summary column: %w", err)
	}
	return nil
}

// createSchema creates the full current schema on a fresh database.
func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS agent_configs (
			agent_id TEXT PRIMARY KEY,
			escalation_enabled INTEGER NOT NULL DEFAULT 1,
			max_escalations_per_day INTEGER NOT NULL,
			max_escalations_per_week INTEGER NOT NULL,
			auto_answer_threshold REAL NOT NULL CHECK (auto_answer_threshold >= 0 AND auto_answer_threshold <= 1),
			clarification_enabled INTEGER NOT NULL DEFAULT 1,
			blocked_topics TEXT NOT NULL DEFAULT '[]',
			allowed_tiers TEXT NOT NULL DEFAULT '[]',
			availability_windows TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS escalations (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			message TEXT NOT NULL,
			context_summary TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL CHECK (reason IN ('novel','strategic','complex')),
			status TEXT NOT NULL CHECK (status IN ('pending','accepted','answered','declined','expired')),
			offered_at DATETIME NOT NULL,
			accepted_at DATETIME,
			answered_at DATETIME,
			creator_answer TEXT,
			answer_layer TEXT CHECK (answer_layer IS NULL OR answer_layer IN ('public','friends','intimate'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_escalations_agent_status ON escalations(agent_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_escalations_agent_offered ON escalations(agent_id, offered_at)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			message TEXT NOT NULL,
			path TEXT NOT NULL CHECK (path IN ('A','B','C','D','E','F')),
			confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
			novelty REAL NOT NULL CHECK (novelty >= 0 AND novelty <= 1),
			complexity REAL NOT NULL CHECK (complexity >= 0 AND complexity <= 1),
			canonical_answer_id TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_agent_created ON decisions(agent_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS canonical_answers (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			escalation_id TEXT UNIQUE,
			question_pattern TEXT NOT NULL,
			answer TEXT NOT NULL,
			layer TEXT NOT NULL CHECK (layer IN ('public','friends','intimate')),
			reuse_count INTEGER NOT NULL DEFAULT 0,
			embedding BLOB,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_canonical_agent_layer ON canonical_answers(agent_id, layer)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
