package coordination

import (
	"context"
	"time"
)

// JobState is where a job sits in the queue's lifecycle.
type JobState string

const (
	JobWaiting JobState = "waiting"
	JobDelayed JobState = "delayed"
	JobActive  JobState = "active"
)

// Job kinds, matching the deterministic id schemes from spec §4.H.
const (
	KindScheduled = "scheduled"
	KindImmediate = "immediate"
)

// Job is one unit of scheduler work. ID is deterministic
// ("scheduled-<monitorId>" or "immediate-<monitorId>") so re-enqueuing the
// same logical job is naturally idempotent.
type Job struct {
	ID        string
	MonitorID string
	Kind      string
	Priority  int
	RunAt     time.Time
	State     JobState
}

// QueueBackend is the durable job queue contract (spec §6): deterministic
// ids with upsert semantics, delayed enqueue, priority, state enumeration,
// and lease-based in-flight tracking.
type QueueBackend interface {
	// Enqueue upserts a job by id. If a job with this id already exists in
	// {waiting, active, delayed}, the call is a no-op — this is what makes
	// immediate-job de-bouncing and scheduled-job idempotence work.
	Enqueue(ctx context.Context, job Job) error
	// Dequeue claims the single next due job (RunAt <= now), transitioning
	// it to active with the given lease duration. Returns (nil, false, nil)
	// if nothing is ready.
	Dequeue(ctx context.Context, lease time.Duration) (*Job, bool, error)
	// Complete removes a job after it finishes processing (success or
	// terminal failure).
	Complete(ctx context.Context, id string) error
	// Renew extends an active job's lease. A no-op if the job is not
	// currently active (it may have already completed or been reclaimed).
	Renew(ctx context.Context, id string, lease time.Duration) error
	// RemoveByMonitor removes every waiting/delayed job for monitorID.
	// Active jobs can't be interrupted and are left to drain.
	RemoveByMonitor(ctx context.Context, monitorID string) error
	// Exists reports whether a job with this id currently sits in any of the
	// given states.
	Exists(ctx context.Context, id string, states ...JobState) (bool, error)
	// ListByState enumerates jobs currently in any of the given states.
	ListByState(ctx context.Context, states ...JobState) ([]Job, error)
}
