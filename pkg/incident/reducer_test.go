package incident

import (
	"context"
	"testing"

	"github.com/pulseguard/core/pkg/classifier"
	"github.com/pulseguard/core/pkg/config"
	"github.com/pulseguard/core/pkg/evaluator"
	"github.com/pulseguard/core/pkg/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: ":memory:", WALMode: true, Timeout: "30s"},
	}
	db, err := store.NewDB(cfg)
	if err != nil {
		t.Fatalf("failed to create in-memory test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestMonitor(t *testing.T, db *store.DB) *store.Monitor {
	t.Helper()
	m := &store.Monitor{
		OwnerID: "owner-1", Name: "test monitor", Target: "example.com", Protocol: "HTTP",
		IntervalMinutes: 5, TimeoutMs: 30000, AlertThreshold: 2,
	}
	if err := db.MonitorStore().Create(m); err != nil {
		t.Fatalf("failed to create test monitor: %v", err)
	}
	return m
}

func errType(s string) *string { return &s }

func TestReduce_UpToDegradedOpensWhenThresholdMet(t *testing.T) {
	db := newTestDB(t)
	monitor := newTestMonitor(t, db)
	monitor.ConsecutiveDegraded = 2

	red := NewReducer(db.IncidentStore(), nil, nil)
	result := evaluator.Result{Transition: evaluator.StateTransition{From: classifier.StatusUp, To: classifier.StatusDegraded}}
	check := &store.Check{MonitorID: monitor.ID, Status: classifier.StatusDegraded, ErrorType: errType("HIGH_LATENCY")}

	if err := red.Reduce(context.Background(), monitor, result, check); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ongoing, err := db.IncidentStore().GetOngoing(monitor.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ongoing == nil {
		t.Fatal("expected an incident to be opened")
	}
	if ongoing.Severity != store.SeverityWarning {
		t.Errorf("expected warning severity, got %s", ongoing.Severity)
	}
}

func TestReduce_UpToDegradedSkipsBelowThreshold(t *testing.T) {
	db := newTestDB(t)
	monitor := newTestMonitor(t, db)
	monitor.ConsecutiveDegraded = 1

	red := NewReducer(db.IncidentStore(), nil, nil)
	result := evaluator.Result{Transition: evaluator.StateTransition{From: classifier.StatusUp, To: classifier.StatusDegraded}}
	check := &store.Check{MonitorID: monitor.ID, Status: classifier.StatusDegraded}

	if err := red.Reduce(context.Background(), monitor, result, check); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ongoing, _ := db.IncidentStore().GetOngoing(monitor.ID)
	if ongoing != nil {
		t.Fatal("expected no incident below the alert threshold")
	}
}

func TestReduce_DownToUpClosesIncident(t *testing.T) {
	db := newTestDB(t)
	monitor := newTestMonitor(t, db)

	if err := db.IncidentStore().Open(&store.Incident{MonitorID: monitor.ID, Severity: store.SeverityCritical}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	red := NewReducer(db.IncidentStore(), nil, nil)
	result := evaluator.Result{Transition: evaluator.StateTransition{From: classifier.StatusDown, To: classifier.StatusUp}}
	check := &store.Check{MonitorID: monitor.ID, Status: classifier.StatusUp}

	if err := red.Reduce(context.Background(), monitor, result, check); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ongoing, _ := db.IncidentStore().GetOngoing(monitor.ID)
	if ongoing != nil {
		t.Fatal("expected the incident to be closed")
	}
}

func TestReduce_DegradedToDownClosesThenOpensCritical(t *testing.T) {
	db := newTestDB(t)
	monitor := newTestMonitor(t, db)

	if err := db.IncidentStore().Open(&store.Incident{MonitorID: monitor.ID, Severity: store.SeverityWarning}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	red := NewReducer(db.IncidentStore(), nil, nil)
	result := evaluator.Result{Transition: evaluator.StateTransition{From: classifier.StatusDegraded, To: classifier.StatusDown}}
	check := &store.Check{MonitorID: monitor.ID, Status: classifier.StatusDown, ErrorType: errType("CONNECTION_REFUSED")}

	if err := red.Reduce(context.Background(), monitor, result, check); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ongoing, _ := db.IncidentStore().GetOngoing(monitor.ID)
	if ongoing == nil {
		t.Fatal("expected a new critical incident to be open")
	}
	if ongoing.Severity != store.SeverityCritical {
		t.Errorf("expected critical severity, got %s", ongoing.Severity)
	}
}

func TestReduce_ReplayingTransitionIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	monitor := newTestMonitor(t, db)
	monitor.ConsecutiveFailures = 3

	red := NewReducer(db.IncidentStore(), nil, nil)
	result := evaluator.Result{Transition: evaluator.StateTransition{From: classifier.StatusUp, To: classifier.StatusDown}}
	check := &store.Check{MonitorID: monitor.ID, Status: classifier.StatusDown}

	if err := red.Reduce(context.Background(), monitor, result, check); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := red.Reduce(context.Background(), monitor, result, check); err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}

	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM incidents WHERE monitor_id = ?", monitor.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one incident after replaying the same transition, got %d", count)
	}
}
