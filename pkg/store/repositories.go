package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MonitorStore provides database operations for monitors.
type MonitorStore struct {
	db *DB
}

// NewMonitorStore creates a new monitor repository.
func NewMonitorStore(db *DB) *MonitorStore {
	return &MonitorStore{db: db}
}

// Create inserts a new monitor, assigning an id if one is not already set.
func (r *MonitorStore) Create(m *Monitor) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CurrentStatus == "" {
		m.CurrentStatus = "unknown"
	}

	query := `
		INSERT INTO monitors (
			id, owner_id, name, target, protocol, port, interval_minutes, timeout_ms,
			degraded_threshold_ms, ssl_expiry_threshold_days, allow_unauthorized, strict_mode,
			active, alert_threshold, current_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, m.ID, m.OwnerID, m.Name, m.Target, m.Protocol, m.Port,
		m.IntervalMinutes, m.TimeoutMs, m.DegradedThresholdMs, m.SSLExpiryThresholdDays,
		m.AllowUnauthorized, m.StrictMode, m.Active, m.AlertThreshold, m.CurrentStatus)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	return nil
}

// GetByID fetches a single monitor. Returns sql.ErrNoRows if it does not exist.
func (r *MonitorStore) GetByID(id string) (*Monitor, error) {
	var m Monitor
	query := `SELECT * FROM monitors WHERE id = ?`
	if err := r.db.Get(&m, query, id); err != nil {
		return nil, fmt.Errorf("failed to get monitor by id: %w", err)
	}
	return &m, nil
}

// ListActive returns every monitor with active=true, used by the scheduler's startup sync.
func (r *MonitorStore) ListActive() ([]*Monitor, error) {
	var monitors []*Monitor
	query := `SELECT * FROM monitors WHERE active = TRUE ORDER BY created_at ASC`
	if err := r.db.Select(&monitors, query); err != nil {
		return nil, fmt.Errorf("failed to list active monitors: %w", err)
	}
	return monitors, nil
}

// Update replaces the mutable, user-facing fields of a monitor (full row replace).
func (r *MonitorStore) Update(m *Monitor) error {
	query := `
		UPDATE monitors SET
			name = ?, target = ?, protocol = ?, port = ?, interval_minutes = ?, timeout_ms = ?,
			degraded_threshold_ms = ?, ssl_expiry_threshold_days = ?, allow_unauthorized = ?,
			strict_mode = ?, active = ?, alert_threshold = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, m.Name, m.Target, m.Protocol, m.Port, m.IntervalMinutes,
		m.TimeoutMs, m.DegradedThresholdMs, m.SSLExpiryThresholdDays, m.AllowUnauthorized,
		m.StrictMode, m.Active, m.AlertThreshold, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update monitor: %w", err)
	}
	return nil
}

// ApplyCheckResult performs the Check Runner's step-5 atomic monitor update: status,
// lastChecked, lastResponseTime, totalChecks, and the consecutive counters, all in one
// statement so concurrent probes of *different* monitors never race on a read-modify-write.
func (r *MonitorStore) ApplyCheckResult(monitorID, status string, responseMs int, at time.Time) error {
	query := `
		UPDATE monitors SET
			current_status = ?,
			last_checked = ?,
			last_response_time = ?,
			total_checks = total_checks + 1,
			successful_checks = successful_checks + CASE WHEN ? IN ('up', 'degraded') THEN 1 ELSE 0 END,
			consecutive_failures = CASE WHEN ? = 'down' THEN consecutive_failures + 1 ELSE 0 END,
			consecutive_degraded = CASE WHEN ? = 'degraded' THEN consecutive_degraded + 1 ELSE 0 END
		WHERE id = ?
	`
	_, err := r.db.Exec(query, status, at, responseMs, status, status, status, monitorID)
	if err != nil {
		return fmt.Errorf("failed to apply check result: %w", err)
	}
	return nil
}

// UpdateUptime writes the Accountant's lifetime and 24h uptime percentages as a
// follow-up to ApplyCheckResult (spec §4.J).
func (r *MonitorStore) UpdateUptime(monitorID string, lifetime, last24h float64) error {
	query := `UPDATE monitors SET uptime_percentage = ?, last_24h_uptime = ? WHERE id = ?`
	_, err := r.db.Exec(query, lifetime, last24h, monitorID)
	if err != nil {
		return fmt.Errorf("failed to update uptime: %w", err)
	}
	return nil
}

// Delete removes a monitor. Checks and the open incident cascade via the schema's
// foreign keys (spec §3 ownership: a Monitor exclusively owns both).
func (r *MonitorStore) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM monitors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete monitor: %w", err)
	}
	return nil
}

// CheckStore provides database operations for checks.
type CheckStore struct {
	db *DB
}

// NewCheckStore creates a new check repository.
func NewCheckStore(db *DB) *CheckStore {
	return &CheckStore{db: db}
}

// Insert writes an immutable check record.
func (r *CheckStore) Insert(c *Check) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO checks (
			id, monitor_id, timestamp, status, response_time_ms, status_code, error_type,
			error_message, degradation_reasons, ssl_valid_from, ssl_valid_to,
			ssl_days_remaining, ssl_valid
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, c.ID, c.MonitorID, c.Timestamp, c.Status, c.ResponseMs,
		c.StatusCode, c.ErrorType, c.ErrorMsg, c.Degradation, c.SSLValidFrom, c.SSLValidTo,
		c.SSLDaysRemaining, c.SSLValid)
	if err != nil {
		return fmt.Errorf("failed to insert check: %w", err)
	}
	return nil
}

// ListRecent returns the n most recent checks for a monitor, newest first. Used by the
// Health Evaluator's N=10 flap-damping window.
func (r *CheckStore) ListRecent(monitorID string, n int) ([]*Check, error) {
	var checks []*Check
	query := `SELECT * FROM checks WHERE monitor_id = ? ORDER BY timestamp DESC LIMIT ?`
	if err := r.db.Select(&checks, query, monitorID, n); err != nil {
		return nil, fmt.Errorf("failed to list recent checks: %w", err)
	}
	return checks, nil
}

// CountWindow counts all checks for a monitor since the given time.
func (r *CheckStore) CountWindow(monitorID string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM checks WHERE monitor_id = ? AND timestamp >= ?`
	if err := r.db.Get(&count, query, monitorID, since); err != nil {
		return 0, fmt.Errorf("failed to count checks in window: %w", err)
	}
	return count, nil
}

// CountWindowByStatus counts checks for a monitor since the given time whose status is
// one of statuses. Used by the Uptime Accountant's 24h query (spec §4.J).
func (r *CheckStore) CountWindowByStatus(monitorID string, since time.Time, statuses ...string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(
		`SELECT COUNT(*) FROM checks WHERE monitor_id = ? AND timestamp >= ? AND status IN (?)`,
		monitorID, since, statuses,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to build status window query: %w", err)
	}
	query = r.db.Rebind(query)

	var count int
	if err := r.db.Get(&count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count checks by status: %w", err)
	}
	return count, nil
}

// IncidentStore provides database operations for incidents.
type IncidentStore struct {
	db *DB
}

// NewIncidentStore creates a new incident repository.
func NewIncidentStore(db *DB) *IncidentStore {
	return &IncidentStore{db: db}
}

// Open creates a new ongoing incident. The unique partial index on (monitor_id) WHERE
// status='ongoing' enforces the "at most one ongoing incident per monitor" invariant;
// callers are expected to have checked GetOngoing first (the Reducer is single-threaded
// per monitor, so this is a belt-and-suspenders constraint, not the primary guard).
func (r *IncidentStore) Open(inc *Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.New().String()
	}
	if inc.Status == "" {
		inc.Status = IncidentOngoing
	}
	if inc.StartTime.IsZero() {
		inc.StartTime = time.Now().UTC()
	}

	query := `
		INSERT INTO incidents (id, monitor_id, start_time, status, severity, error_type, error_message, status_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, inc.ID, inc.MonitorID, inc.StartTime, inc.Status, inc.Severity,
		inc.ErrorType, inc.ErrorMsg, inc.StatusCode)
	if err != nil {
		return fmt.Errorf("failed to open incident: %w", err)
	}
	return nil
}

// GetOngoing returns the monitor's open incident, or nil if there is none.
func (r *IncidentStore) GetOngoing(monitorID string) (*Incident, error) {
	var inc Incident
	query := `SELECT * FROM incidents WHERE monitor_id = ? AND status = ?`
	err := r.db.Get(&inc, query, monitorID, IncidentOngoing)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ongoing incident: %w", err)
	}
	return &inc, nil
}

// Close resolves an incident, setting endTime and duration (spec §3: duration = endTime -
// startTime when resolved).
func (r *IncidentStore) Close(id string, endTime time.Time) error {
	query := `
		UPDATE incidents SET
			status = ?,
			end_time = ?,
			duration_ms = CAST((julianday(?) - julianday(start_time)) * 86400000 AS INTEGER)
		WHERE id = ?
	`
	_, err := r.db.Exec(query, IncidentResolved, endTime, endTime, id)
	if err != nil {
		return fmt.Errorf("failed to close incident: %w", err)
	}
	return nil
}

// UpdateReasons updates an ongoing incident's error detail without changing its severity
// or opening a duplicate (degraded -> degraded transition, spec §4.G).
func (r *IncidentStore) UpdateReasons(id string, errorType, errorMsg *string) error {
	query := `UPDATE incidents SET error_type = ?, error_message = ? WHERE id = ?`
	_, err := r.db.Exec(query, errorType, errorMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update incident reasons: %w", err)
	}
	return nil
}

// ConfigStore provides get/set access to the process-wide settings singleton.
type ConfigStore struct {
	db *DB
}

// NewConfigStore creates a new config repository.
func NewConfigStore(db *DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Get returns a config value, or ("", false) if the key has never been set.
func (r *ConfigStore) Get(key string) (string, bool, error) {
	var entry ConfigEntry
	err := r.db.Get(&entry, `SELECT * FROM config_entries WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get config entry %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set upserts a config value.
func (r *ConfigStore) Set(key, value string) error {
	query := `
		INSERT INTO config_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.Exec(query, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config entry %s: %w", key, err)
	}
	return nil
}

// All returns every config entry, read once on startup (spec §3).
func (r *ConfigStore) All() ([]*ConfigEntry, error) {
	var entries []*ConfigEntry
	if err := r.db.Select(&entries, `SELECT * FROM config_entries`); err != nil {
		return nil, fmt.Errorf("failed to list config entries: %w", err)
	}
	return entries, nil
}
