package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pulseguard/core/pkg/config"
)

// DB wraps the sqlite connection shared by all repositories.
type DB struct {
	*sqlx.DB
	config *config.Config
}

// NewDB opens (and, if necessary, creates) the sqlite database described by cfg.
func NewDB(cfg *config.Config) (*DB, error) {
	dbPath := cfg.Database.Path

	if dbPath == ":memory:" {
		db, err := sqlx.Connect("sqlite", ":memory:?_pragma=foreign_keys(1)")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to in-memory database: %w", err)
		}

		database := &DB{DB: db, config: cfg}
		if err := database.InitSchema(); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return database, nil
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	connStr := dbPath + "?_pragma=foreign_keys(1)"
	if cfg.Database.WALMode {
		connStr += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=cache_size(1000)"
	}

	db, err := sqlx.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbWrapper := &DB{DB: db, config: cfg}
	if err := dbWrapper.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return dbWrapper, nil
}

// InitSchema creates the Monitor/Check/Incident/Config schema described in spec §3.
func (db *DB) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS monitors (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		target TEXT NOT NULL,
		protocol TEXT NOT NULL,
		port INTEGER,
		interval_minutes INTEGER NOT NULL DEFAULT 5,
		timeout_ms INTEGER NOT NULL DEFAULT 30000,
		degraded_threshold_ms INTEGER NOT NULL DEFAULT 2000,
		ssl_expiry_threshold_days INTEGER NOT NULL DEFAULT 14,
		allow_unauthorized BOOLEAN NOT NULL DEFAULT FALSE,
		strict_mode BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		alert_threshold INTEGER NOT NULL DEFAULT 2,
		total_checks INTEGER NOT NULL DEFAULT 0,
		successful_checks INTEGER NOT NULL DEFAULT 0,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		consecutive_degraded INTEGER NOT NULL DEFAULT 0,
		consecutive_slow_count INTEGER NOT NULL DEFAULT 0,
		last_checked DATETIME,
		last_response_time INTEGER,
		current_status TEXT NOT NULL DEFAULT 'unknown',
		uptime_percentage REAL NOT NULL DEFAULT 0,
		last_24h_uptime REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS checks (
		id TEXT PRIMARY KEY,
		monitor_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		status TEXT NOT NULL,
		response_time_ms INTEGER NOT NULL,
		status_code INTEGER,
		error_type TEXT,
		error_message TEXT,
		degradation_reasons TEXT,
		ssl_valid_from DATETIME,
		ssl_valid_to DATETIME,
		ssl_days_remaining INTEGER,
		ssl_valid BOOLEAN,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		monitor_id TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		status TEXT NOT NULL DEFAULT 'ongoing',
		severity TEXT NOT NULL,
		error_type TEXT,
		error_message TEXT,
		status_code INTEGER,
		duration_ms INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS config_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_monitors_owner ON monitors(owner_id);
	CREATE INDEX IF NOT EXISTS idx_monitors_active ON monitors(active);
	CREATE INDEX IF NOT EXISTS idx_checks_monitor_timestamp ON checks(monitor_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_incidents_monitor_status ON incidents(monitor_id, status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_one_ongoing ON incidents(monitor_id) WHERE status = 'ongoing';

	CREATE TRIGGER IF NOT EXISTS update_monitors_timestamp
		AFTER UPDATE ON monitors
		BEGIN
			UPDATE monitors SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;

	CREATE TRIGGER IF NOT EXISTS update_incidents_timestamp
		AFTER UPDATE ON incidents
		BEGIN
			UPDATE incidents SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck performs a cheap round-trip against the database.
func (db *DB) HealthCheck() error {
	var result int
	if err := db.Get(&result, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// GetStats reports row counts and storage footprint, used by /healthz.
func (db *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	tables := []string{"monitors", "checks", "incidents", "config_entries"}
	for _, table := range tables {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := db.Get(&count, query); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table+"_count"] = count
	}

	var pages, pageSize int
	if err := db.Get(&pages, "PRAGMA page_count"); err == nil {
		if err := db.Get(&pageSize, "PRAGMA page_size"); err == nil {
			stats["database_size_bytes"] = pages * pageSize
		}
	}

	var walMode string
	if err := db.Get(&walMode, "PRAGMA journal_mode"); err == nil {
		stats["journal_mode"] = walMode
	}

	return stats, nil
}

// MonitorStore returns a new monitor repository.
func (db *DB) MonitorStore() *MonitorStore {
	return NewMonitorStore(db)
}

// CheckStore returns a new check repository.
func (db *DB) CheckStore() *CheckStore {
	return NewCheckStore(db)
}

// IncidentStore returns a new incident repository.
func (db *DB) IncidentStore() *IncidentStore {
	return NewIncidentStore(db)
}

// ConfigStore returns a new config repository.
func (db *DB) ConfigStore() *ConfigStore {
	return NewConfigStore(db)
}
