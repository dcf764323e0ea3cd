package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pulseguard/core/pkg/config"
	"github.com/pulseguard/core/pkg/store"
)

type stubScheduler struct {
	enqueuedImmediate []string
	removed           []string
	failEnqueue       bool
}

func (s *stubScheduler) EnqueueImmediate(_ context.Context, monitorID string) error {
	if s.failEnqueue {
		return errFake
	}
	s.enqueuedImmediate = append(s.enqueuedImmediate, monitorID)
	return nil
}

func (s *stubScheduler) RemoveMonitor(_ context.Context, monitorID string) error {
	s.removed = append(s.removed, monitorID)
	return nil
}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

var errFake = &fakeErr{"boom"}

func newTestRouter(t *testing.T) (*httptest.Server, *store.DB, *stubScheduler) {
	t.Helper()
	db, err := store.NewDB(&config.Config{
		Database: config.DatabaseConfig{Path: ":memory:", WALMode: true, Timeout: "30s"},
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sched := &stubScheduler{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router := NewRouter("test", db.MonitorStore(), sched, config.ProbeConfig{
		DefaultTimeoutMs: 30000, DefaultDegradedMs: 2000, DefaultSSLExpiryDays: 14,
	}, metrics)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, db, sched
}

func TestCreateMonitor_ValidTargetSchedulesFirstCheck(t *testing.T) {
	srv, _, sched := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{
		"owner_id":         "owner-1",
		"name":             "example",
		"target":           "https://example.com",
		"protocol":         "HTTPS",
		"interval_minutes": 5,
	})
	resp, err := http.Post(srv.URL+"/api/monitors", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if len(sched.enqueuedImmediate) != 1 {
		t.Fatalf("expected exactly one immediate enqueue, got %d", len(sched.enqueuedImmediate))
	}
}

func TestCreateMonitor_InvalidTargetRejected(t *testing.T) {
	srv, _, sched := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{
		"owner_id":         "owner-1",
		"name":             "bad",
		"target":           "",
		"protocol":         "HTTPS",
		"interval_minutes": 5,
	})
	resp, err := http.Post(srv.URL+"/api/monitors", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty target, got %d", resp.StatusCode)
	}
	if len(sched.enqueuedImmediate) != 0 {
		t.Error("expected no enqueue for a rejected monitor")
	}
}

func TestDeleteMonitor_ClearsQueueThenRow(t *testing.T) {
	srv, db, sched := newTestRouter(t)

	m := &store.Monitor{OwnerID: "owner-1", Name: "del-me", Target: "example.com", Protocol: "TCP", IntervalMinutes: 5}
	if err := db.MonitorStore().Create(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/monitors/"+m.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if len(sched.removed) != 1 || sched.removed[0] != m.ID {
		t.Errorf("expected the monitor's queue entries to be cleared, got %v", sched.removed)
	}
	if _, err := db.MonitorStore().GetByID(m.ID); err == nil {
		t.Error("expected the monitor row to be gone")
	}
}

func TestTriggerImmediate_UnknownMonitorIs404(t *testing.T) {
	srv, _, _ := newTestRouter(t)

	resp, err := http.Post(srv.URL+"/api/monitors/does-not-exist/trigger", "application/json", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthz_ReportsHealthy(t *testing.T) {
	srv, _, _ := newTestRouter(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
