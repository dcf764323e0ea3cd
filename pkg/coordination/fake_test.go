package coordination

import (
	"context"
	"testing"
	"time"
)

func TestFakeLock_AcquireThenBlocksOthers(t *testing.T) {
	lock := NewFakeLock()
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "master", "node-a", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected node-a to acquire the lock, got ok=%v err=%v", ok, err)
	}

	ok, err = lock.Acquire(ctx, "master", "node-b", 30*time.Second)
	if err != nil || ok {
		t.Fatalf("expected node-b to fail acquiring a held lock, got ok=%v err=%v", ok, err)
	}
}

func TestFakeLock_RefreshOnlySucceedsForHolder(t *testing.T) {
	lock := NewFakeLock()
	ctx := context.Background()
	_, _ = lock.Acquire(ctx, "master", "node-a", 30*time.Second)

	ok, err := lock.Refresh(ctx, "master", "node-b", 30*time.Second)
	if err != nil || ok {
		t.Fatalf("expected a non-holder's refresh to fail, got ok=%v err=%v", ok, err)
	}

	ok, err = lock.Refresh(ctx, "master", "node-a", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected the holder's refresh to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestFakeLock_ExpiryAllowsReacquisition(t *testing.T) {
	lock := NewFakeLock()
	ctx := context.Background()
	_, _ = lock.Acquire(ctx, "master", "node-a", 30*time.Second)
	lock.Expire()

	ok, err := lock.Acquire(ctx, "master", "node-b", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected node-b to acquire an expired lock, got ok=%v err=%v", ok, err)
	}
}

func TestFakeQueue_EnqueueIsIdempotentByID(t *testing.T) {
	q := NewFakeQueue()
	ctx := context.Background()
	job := Job{ID: "scheduled-mon-1", MonitorID: "mon-1", Kind: KindScheduled, RunAt: time.Now().UTC()}

	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("unexpected error on re-enqueue: %v", err)
	}

	jobs, err := q.ListByState(ctx, JobWaiting, JobDelayed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected exactly one job after a duplicate enqueue, got %d", len(jobs))
	}
}

func TestFakeQueue_DequeueOnlyReturnsDueJobs(t *testing.T) {
	q := NewFakeQueue()
	ctx := context.Background()

	future := Job{ID: "scheduled-mon-2", MonitorID: "mon-2", Kind: KindScheduled, RunAt: time.Now().UTC().Add(time.Hour)}
	due := Job{ID: "scheduled-mon-1", MonitorID: "mon-1", Kind: KindScheduled, RunAt: time.Now().UTC().Add(-time.Second)}

	if err := q.Enqueue(ctx, future); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Enqueue(ctx, due); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job, ok, err := q.Dequeue(ctx, 180*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected to dequeue the due job, got ok=%v err=%v", ok, err)
	}
	if job.ID != "scheduled-mon-1" {
		t.Errorf("expected the due job to be dequeued first, got %s", job.ID)
	}

	_, ok, err = q.Dequeue(ctx, 180*time.Second)
	if err != nil || ok {
		t.Fatalf("expected no further due jobs, got ok=%v err=%v", ok, err)
	}
}

func TestFakeQueue_RemoveByMonitorSkipsActive(t *testing.T) {
	q := NewFakeQueue()
	ctx := context.Background()
	job := Job{ID: "scheduled-mon-1", MonitorID: "mon-1", Kind: KindScheduled, RunAt: time.Now().UTC().Add(-time.Second)}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claimed, ok, err := q.Dequeue(ctx, 180*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected to claim the job, got ok=%v err=%v", ok, err)
	}

	if err := q.RemoveByMonitor(ctx, "mon-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exists, err := q.Exists(ctx, claimed.ID, JobActive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected the active job to survive removeByMonitor and drain naturally")
	}
}
