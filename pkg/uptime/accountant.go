// Package uptime incrementally maintains lifetime and 24h uptime percentages
// for a monitor (spec §4.J). Failure here is logged and non-fatal: an uptime
// figure lagging by one check is never worth failing the check itself over.
package uptime

import (
	"log"
	"time"

	"github.com/pulseguard/core/pkg/store"
)

const windowDuration = 24 * time.Hour

// Accountant updates a monitor's lifetime and rolling 24h uptime percentage
// after each check is recorded.
type Accountant struct {
	monitors *store.MonitorStore
	checks   *store.CheckStore
}

// NewAccountant builds an Accountant backed by the given repositories.
func NewAccountant(monitors *store.MonitorStore, checks *store.CheckStore) *Accountant {
	return &Accountant{monitors: monitors, checks: checks}
}

// Update recomputes and persists monitor.uptimePercentage and
// monitor.last24hUptime. totalChecks/successfulChecks already reflect the
// just-applied check, since ApplyCheckResult increments them in the same
// step the Check Runner performs just before calling here.
func (a *Accountant) Update(monitor *store.Monitor) {
	lifetime := 0.0
	if monitor.TotalChecks > 0 {
		lifetime = float64(monitor.SuccessfulChecks) / float64(monitor.TotalChecks) * 100
	}

	since := time.Now().UTC().Add(-windowDuration)
	total, err := a.checks.CountWindow(monitor.ID, since)
	if err != nil {
		log.Printf("Warning: failed to count 24h window for monitor %s: %v", monitor.ID, err)
		return
	}

	last24h := lifetime
	if total > 0 {
		up, err := a.checks.CountWindowByStatus(monitor.ID, since, "up", "degraded")
		if err != nil {
			log.Printf("Warning: failed to count 24h up/degraded window for monitor %s: %v", monitor.ID, err)
			return
		}
		last24h = float64(up) / float64(total) * 100
	}

	if err := a.monitors.UpdateUptime(monitor.ID, lifetime, last24h); err != nil {
		log.Printf("Warning: failed to persist uptime for monitor %s: %v", monitor.ID, err)
	}
}
