package store

import "time"

// Monitor is a registered endpoint, probed on a fixed interval.
type Monitor struct {
	ID       string `db:"id" json:"id"`
	OwnerID  string `db:"owner_id" json:"owner_id"`
	Name     string `db:"name" json:"name"`
	Target   string `db:"target" json:"target"`
	Protocol string `db:"protocol" json:"protocol"` // HTTP, HTTPS, TCP, UDP, DNS, SMTP, SSL, PING
	Port     *int   `db:"port" json:"port"`

	IntervalMinutes        int  `db:"interval_minutes" json:"interval_minutes"`
	TimeoutMs              int  `db:"timeout_ms" json:"timeout_ms"`
	DegradedThresholdMs    int  `db:"degraded_threshold_ms" json:"degraded_threshold_ms"`
	SSLExpiryThresholdDays int  `db:"ssl_expiry_threshold_days" json:"ssl_expiry_threshold_days"`
	AllowUnauthorized      bool `db:"allow_unauthorized" json:"allow_unauthorized"`
	StrictMode             bool `db:"strict_mode" json:"strict_mode"` // UDP only
	Active                 bool `db:"active" json:"active"`
	AlertThreshold         int  `db:"alert_threshold" json:"alert_threshold"`

	TotalChecks         int `db:"total_checks" json:"total_checks"`
	SuccessfulChecks    int `db:"successful_checks" json:"successful_checks"`
	ConsecutiveFailures int `db:"consecutive_failures" json:"consecutive_failures"`
	ConsecutiveDegraded int `db:"consecutive_degraded" json:"consecutive_degraded"`
	ConsecutiveSlow     int `db:"consecutive_slow_count" json:"consecutive_slow_count"`

	LastChecked      *time.Time `db:"last_checked" json:"last_checked"`
	LastResponseTime *int       `db:"last_response_time" json:"last_response_time"`
	CurrentStatus    string     `db:"current_status" json:"current_status"` // up, degraded, down, unknown

	UptimePercentage float64 `db:"uptime_percentage" json:"uptime_percentage"`
	Last24hUptime    float64 `db:"last_24h_uptime" json:"last_24h_uptime"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Check is an immutable observation produced by a single probe run.
type Check struct {
	ID          string    `db:"id" json:"id"`
	MonitorID   string    `db:"monitor_id" json:"monitor_id"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
	Status      string    `db:"status" json:"status"`
	ResponseMs  int       `db:"response_time_ms" json:"response_time_ms"`
	StatusCode  *int      `db:"status_code" json:"status_code"`
	ErrorType   *string   `db:"error_type" json:"error_type"`
	ErrorMsg    *string   `db:"error_message" json:"error_message"`
	Degradation *string   `db:"degradation_reasons" json:"degradation_reasons"` // JSON array, optional

	SSLValidFrom     *time.Time `db:"ssl_valid_from" json:"ssl_valid_from"`
	SSLValidTo       *time.Time `db:"ssl_valid_to" json:"ssl_valid_to"`
	SSLDaysRemaining *int       `db:"ssl_days_remaining" json:"ssl_days_remaining"`
	SSLValid         *bool      `db:"ssl_valid" json:"ssl_valid"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Incident status values.
const (
	IncidentOngoing  = "ongoing"
	IncidentResolved = "resolved"
)

// Incident severities.
const (
	SeverityMinor    = "minor"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Incident aggregates a run of consecutive non-up checks on a monitor.
type Incident struct {
	ID         string     `db:"id" json:"id"`
	MonitorID  string     `db:"monitor_id" json:"monitor_id"`
	StartTime  time.Time  `db:"start_time" json:"start_time"`
	EndTime    *time.Time `db:"end_time" json:"end_time"`
	Status     string     `db:"status" json:"status"`
	Severity   string     `db:"severity" json:"severity"`
	ErrorType  *string    `db:"error_type" json:"error_type"`
	ErrorMsg   *string    `db:"error_message" json:"error_message"`
	StatusCode *int       `db:"status_code" json:"status_code"`
	DurationMs *int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// ConfigEntry is a single row of the process-wide settings table.
type ConfigEntry struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Well-known Config keys (spec §3).
const (
	ConfigMaintenanceMode = "maintenanceMode"
	ConfigGlobalAlert     = "globalAlert"
	ConfigAllowSignups    = "allowSignups"
)
