// Package incident implements the check/incident state machine (spec §4.G):
// it watches status transitions and opens, updates, or closes incidents.
package incident

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pulseguard/core/pkg/classifier"
	"github.com/pulseguard/core/pkg/evaluator"
	"github.com/pulseguard/core/pkg/events"
	"github.com/pulseguard/core/pkg/store"
	"github.com/pulseguard/core/pkg/telemetry"
)

// Reducer applies the prev->curr transition table against the incident
// store. At most one ongoing incident exists per monitor at any time;
// replaying the same transition never creates a duplicate, since every Open
// is preceded by a GetOngoing check.
type Reducer struct {
	incidents *store.IncidentStore
	emitter   *events.Emitter
	metrics   *telemetry.Metrics
}

// NewReducer builds a Reducer backed by the given incident repository.
// emitter and metrics may both be nil in tests that don't care about event
// fan-out or observability.
func NewReducer(incidents *store.IncidentStore, emitter *events.Emitter, metrics *telemetry.Metrics) *Reducer {
	return &Reducer{incidents: incidents, emitter: emitter, metrics: metrics}
}

// Reduce applies one evaluated check result to the monitor's incident state.
func (red *Reducer) Reduce(ctx context.Context, monitor *store.Monitor, result evaluator.Result, check *store.Check) error {
	prev, curr := result.Transition.From, result.Transition.To

	switch {
	case prev == classifier.StatusUp && curr == classifier.StatusUp:
		return nil

	case prev == classifier.StatusUp && curr == classifier.StatusDegraded:
		if monitor.ConsecutiveDegraded < monitor.AlertThreshold {
			return nil
		}
		return red.open(ctx, monitor, store.SeverityWarning, check)

	case prev == classifier.StatusUp && curr == classifier.StatusDown:
		if monitor.ConsecutiveFailures < monitor.AlertThreshold {
			return nil
		}
		return red.open(ctx, monitor, store.SeverityCritical, check)

	case prev == classifier.StatusDegraded && curr == classifier.StatusUp:
		return red.closeOngoing(monitor)

	case prev == classifier.StatusDegraded && curr == classifier.StatusDegraded:
		return red.updateReasonsIfChanged(monitor, check)

	case prev == classifier.StatusDegraded && curr == classifier.StatusDown:
		if err := red.closeOngoing(monitor); err != nil {
			return err
		}
		return red.open(ctx, monitor, store.SeverityCritical, check)

	case prev == classifier.StatusDown && curr == classifier.StatusUp:
		return red.closeOngoing(monitor)

	case prev == classifier.StatusDown && curr == classifier.StatusDegraded:
		if err := red.closeOngoing(monitor); err != nil {
			return err
		}
		return red.open(ctx, monitor, store.SeverityWarning, check)

	default:
		return nil
	}
}

func (red *Reducer) open(ctx context.Context, monitor *store.Monitor, severity string, check *store.Check) error {
	existing, err := red.incidents.GetOngoing(monitor.ID)
	if err != nil {
		return fmt.Errorf("failed to check for an ongoing incident: %w", err)
	}
	if existing != nil {
		return nil
	}

	inc := &store.Incident{
		MonitorID:  monitor.ID,
		Severity:   severity,
		ErrorType:  check.ErrorType,
		ErrorMsg:   check.ErrorMsg,
		StatusCode: check.StatusCode,
	}
	if err := red.incidents.Open(inc); err != nil {
		return fmt.Errorf("failed to open incident: %w", err)
	}
	red.metrics.RecordIncidentOpened(severity)
	if red.emitter != nil {
		if err := red.emitter.EmitIncidentCreated(ctx, monitor.ID, inc); err != nil {
			log.Printf("Warning: failed to emit incident_created for monitor %s: %v", monitor.ID, err)
		}
	}
	return nil
}

func (red *Reducer) closeOngoing(monitor *store.Monitor) error {
	existing, err := red.incidents.GetOngoing(monitor.ID)
	if err != nil {
		return fmt.Errorf("failed to check for an ongoing incident: %w", err)
	}
	if existing == nil {
		return nil
	}
	if err := red.incidents.Close(existing.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to close incident: %w", err)
	}
	red.metrics.RecordIncidentClosed()
	return nil
}

func (red *Reducer) updateReasonsIfChanged(monitor *store.Monitor, check *store.Check) error {
	existing, err := red.incidents.GetOngoing(monitor.ID)
	if err != nil {
		return fmt.Errorf("failed to check for an ongoing incident: %w", err)
	}
	if existing == nil {
		return nil
	}
	if stringPtrEqual(existing.ErrorType, check.ErrorType) {
		return nil
	}
	if err := red.incidents.UpdateReasons(existing.ID, check.ErrorType, check.ErrorMsg); err != nil {
		return fmt.Errorf("failed to update incident reasons: %w", err)
	}
	return nil
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
