package coordination

import (
	"context"
	"sync"
	"time"
)

// FakeQueue is an in-process QueueBackend for scheduler tests that
// shouldn't require a live Redis server.
type FakeQueue struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewFakeQueue builds an empty queue.
func NewFakeQueue() *FakeQueue {
	return &FakeQueue{jobs: make(map[string]Job)}
}

func (q *FakeQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[job.ID]; exists {
		return nil
	}
	if job.RunAt.After(time.Now().UTC()) {
		job.State = JobDelayed
	} else {
		job.State = JobWaiting
	}
	q.jobs[job.ID] = job
	return nil
}

func (q *FakeQueue) Dequeue(_ context.Context, lease time.Duration) (*Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	var bestID string
	var best Job
	found := false
	for id, job := range q.jobs {
		if job.State == JobActive || job.RunAt.After(now) {
			continue
		}
		if !found || job.RunAt.Before(best.RunAt) {
			bestID, best, found = id, job, true
		}
	}
	if !found {
		return nil, false, nil
	}

	best.State = JobActive
	q.jobs[bestID] = best
	claimed := best
	_ = lease // lease renewal isn't modeled by the in-process fake
	return &claimed, true, nil
}

// Renew is a no-op: the in-process fake doesn't model lease expiry, only
// job state, so there is nothing for a renewal to extend.
func (q *FakeQueue) Renew(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

func (q *FakeQueue) Complete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, id)
	return nil
}

func (q *FakeQueue) RemoveByMonitor(_ context.Context, monitorID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, job := range q.jobs {
		if job.State == JobActive {
			continue
		}
		if job.MonitorID == monitorID {
			delete(q.jobs, id)
		}
	}
	return nil
}

func (q *FakeQueue) Exists(_ context.Context, id string, states ...JobState) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return false, nil
	}
	for _, s := range states {
		if job.State == s {
			return true, nil
		}
	}
	return false, nil
}

func (q *FakeQueue) ListByState(_ context.Context, states ...JobState) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Job
	for _, job := range q.jobs {
		for _, s := range states {
			if job.State == s {
				out = append(out, job)
				break
			}
		}
	}
	return out, nil
}
