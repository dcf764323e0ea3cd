// Package runner implements the Check Runner (spec §4.F): it orchestrates
// validator -> probe -> classifier -> evaluator for one monitor, persists a
// Check, updates counters and uptime, runs the incident reducer, emits
// events, and reschedules the monitor's next check from a finally block so
// even a crashed probe re-arms it.
package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pulseguard/core/pkg/classifier"
	"github.com/pulseguard/core/pkg/evaluator"
	"github.com/pulseguard/core/pkg/events"
	"github.com/pulseguard/core/pkg/incident"
	"github.com/pulseguard/core/pkg/probe"
	"github.com/pulseguard/core/pkg/store"
	"github.com/pulseguard/core/pkg/telemetry"
	"github.com/pulseguard/core/pkg/uptime"
)

// RescheduleFunc enqueues the monitor's next scheduled job after delay. The
// Scheduler supplies this so the Runner never imports it directly (the
// reschedule happens inside the Runner, but the Scheduler owns the queue).
type RescheduleFunc func(ctx context.Context, monitorID string, delay time.Duration) error

const rescheduleAttempts = 3

// Runner ties every other module together for a single monitor's check.
type Runner struct {
	monitors   *store.MonitorStore
	checks     *store.CheckStore
	probes     *probe.Registry
	reducer    *incident.Reducer
	accountant *uptime.Accountant
	emitter    *events.Emitter
	reschedule RescheduleFunc
	metrics    *telemetry.Metrics
}

// New builds a Runner. emitter and metrics may be nil in tests that don't
// care about event fan-out or observability.
func New(
	monitors *store.MonitorStore,
	checks *store.CheckStore,
	probes *probe.Registry,
	reducer *incident.Reducer,
	accountant *uptime.Accountant,
	emitter *events.Emitter,
	reschedule RescheduleFunc,
	metrics *telemetry.Metrics,
) *Runner {
	return &Runner{
		monitors:   monitors,
		checks:     checks,
		probes:     probes,
		reducer:    reducer,
		accountant: accountant,
		emitter:    emitter,
		reschedule: reschedule,
		metrics:    metrics,
	}
}

// Run executes one check for monitorID. Any panic inside the probe/classify
// chain is recovered, written as a DOWN/UNKNOWN_ERROR check, and the monitor
// is still rescheduled — a missed reschedule would strand it permanently.
func (r *Runner) Run(ctx context.Context, monitorID string) (err error) {
	monitor, loadErr := r.monitors.GetByID(monitorID)
	if loadErr != nil {
		// The monitor was deleted between enqueue and dequeue; there is
		// nothing to check and nothing to reschedule.
		return nil
	}
	if !monitor.Active {
		return nil
	}

	defer r.rescheduleWithRetry(ctx, monitor)

	defer func() {
		if rec := recover(); rec != nil {
			r.writeUnknownErrorCheck(monitor, fmt.Errorf("panic: %v", rec))
			err = fmt.Errorf("check runner recovered from a panic: %v", rec)
		}
	}()

	return r.runOnce(ctx, monitor)
}

func (r *Runner) runOnce(ctx context.Context, monitor *store.Monitor) error {
	start := time.Now()
	recent, err := r.checks.ListRecent(monitor.ID, evaluator.WindowSize)
	if err != nil {
		return fmt.Errorf("failed to load recent checks: %w", err)
	}

	obs := r.probes.Probe(ctx, monitor)
	class := classifier.Classify(monitor, obs)
	result := evaluator.Evaluate(monitor, class, recent)

	// Immediate verification: a DOWN or DEGRADED verdict gets one extra
	// probe before it is committed, so a single transient blip doesn't
	// write a tentative status that the Evaluator then has to walk back.
	if result.Status == classifier.StatusDown || result.Status == classifier.StatusDegraded {
		obs = r.probes.Probe(ctx, monitor)
		class = classifier.Classify(monitor, obs)
		result = evaluator.Evaluate(monitor, class, recent)
	}

	// Post-fetch: a monitor deleted or deactivated while its probe was in
	// flight has its result discarded and is not rescheduled.
	if current, err := r.monitors.GetByID(monitor.ID); err != nil || !current.Active {
		monitor.Active = false
		return nil
	}

	check := &store.Check{
		MonitorID:  monitor.ID,
		Status:     result.Status,
		ResponseMs: obs.ResponseTime,
		StatusCode: obs.StatusCode,
	}
	if result.ErrorType != "" {
		check.ErrorType = &result.ErrorType
	}
	if result.Reason != "" {
		check.ErrorMsg = &result.Reason
	}

	if err := r.checks.Insert(check); err != nil {
		return fmt.Errorf("failed to insert check: %w", err)
	}

	if err := r.monitors.ApplyCheckResult(monitor.ID, result.Status, obs.ResponseTime, check.Timestamp); err != nil {
		return fmt.Errorf("failed to apply check result: %w", err)
	}

	updated, err := r.monitors.GetByID(monitor.ID)
	if err != nil {
		return fmt.Errorf("failed to reload monitor after check: %w", err)
	}

	r.accountant.Update(updated)

	if err := r.reducer.Reduce(ctx, updated, result, check); err != nil {
		log.Printf("Warning: incident reducer failed for monitor %s: %v", monitor.ID, err)
	}

	r.emit(ctx, monitor.ID, check, result)
	r.metrics.RecordProbe(monitor.Protocol, result.Status, time.Since(start))

	return nil
}

func (r *Runner) emit(ctx context.Context, monitorID string, check *store.Check, result evaluator.Result) {
	if r.emitter == nil {
		return
	}
	if err := r.emitter.EmitCheckUpdate(ctx, monitorID, check); err != nil {
		log.Printf("Warning: failed to emit check update for monitor %s: %v", monitorID, err)
	}
	if result.Transition.From != result.Transition.To {
		if err := r.emitter.EmitStatusChange(ctx, monitorID, result.Transition); err != nil {
			log.Printf("Warning: failed to emit status change for monitor %s: %v", monitorID, err)
		}
	}
}

func (r *Runner) writeUnknownErrorCheck(monitor *store.Monitor, cause error) {
	errType := "UNKNOWN_ERROR"
	msg := cause.Error()
	check := &store.Check{
		MonitorID: monitor.ID,
		Status:    classifier.StatusDown,
		ErrorType: &errType,
		ErrorMsg:  &msg,
	}
	if err := r.checks.Insert(check); err != nil {
		log.Printf("Warning: failed to persist UNKNOWN_ERROR check for monitor %s: %v", monitor.ID, err)
		return
	}
	if err := r.monitors.ApplyCheckResult(monitor.ID, classifier.StatusDown, 0, check.Timestamp); err != nil {
		log.Printf("Warning: failed to apply UNKNOWN_ERROR check result for monitor %s: %v", monitor.ID, err)
	}
}

// rescheduleWithRetry re-arms the monitor's next scheduled job, retrying up
// to rescheduleAttempts times with linear backoff. A missed reschedule would
// strand the monitor until the Sentinel's next sweep, so this is the one
// place the Runner retries in-process rather than deferring to the caller.
func (r *Runner) rescheduleWithRetry(ctx context.Context, monitor *store.Monitor) {
	if !monitor.Active || r.reschedule == nil {
		return
	}
	delay := time.Duration(monitor.IntervalMinutes) * time.Minute

	var lastErr error
	for attempt := 1; attempt <= rescheduleAttempts; attempt++ {
		if err := r.reschedule(ctx, monitor.ID, delay); err == nil {
			return
		} else {
			lastErr = err
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	log.Printf("Warning: failed to reschedule monitor %s after %d attempts: %v", monitor.ID, rescheduleAttempts, lastErr)
}
