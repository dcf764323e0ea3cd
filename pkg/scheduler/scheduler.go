// Package scheduler implements the cluster-safe job dispatcher (spec §4.H):
// single-master election over a distributed lock, a bounded worker pool that
// dequeues and executes jobs on every process, recursive rescheduling driven
// by the Check Runner's own completion, and a sentinel sweep that re-arms
// monitors the queue silently dropped.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pulseguard/core/pkg/config"
	"github.com/pulseguard/core/pkg/coordination"
	"github.com/pulseguard/core/pkg/store"
	"github.com/pulseguard/core/pkg/telemetry"
)

const masterLockKey = "pulseguard:scheduler:master"

const (
	dispatchPollInterval = 250 * time.Millisecond
	dispatchErrorBackoff = 2 * time.Second
)

// Runner is the subset of *runner.Runner the Scheduler depends on. Declared
// here rather than imported so tests can inject a stub without pulling in
// the whole check-running pipeline.
type Runner interface {
	Run(ctx context.Context, monitorID string) error
}

// DefaultConcurrency is max(2, min(CPU*2, 20)) per spec §4.H.
func DefaultConcurrency() int {
	return clampInt(runtime.NumCPU()*2, 2, 20)
}

// Scheduler owns master election, the worker pool, and recursive job
// enqueueing for one process sharing a queue/lock backend with its peers.
type Scheduler struct {
	nodeID      string
	lock        coordination.LockBackend
	queue       coordination.QueueBackend
	monitors    *store.MonitorStore
	runner      Runner
	concurrency int
	lockTTL     time.Duration
	jobLease    time.Duration
	sentinelInt time.Duration
	forceMaster bool
	metrics     *telemetry.Metrics

	mu           sync.Mutex
	master       bool
	masterCancel context.CancelFunc

	wg sync.WaitGroup
}

// New builds a Scheduler from its coordination backends and scheduler
// config. Call SetRunner before Start; Runner can't be supplied here
// because it's typically constructed with this Scheduler's EnqueueScheduled
// as its reschedule callback, which would otherwise be a circular build.
func New(nodeID string, lock coordination.LockBackend, queue coordination.QueueBackend, monitors *store.MonitorStore, cfg config.SchedulerConfig) *Scheduler {
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}
	lockTTL := time.Duration(cfg.LockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	jobLease := time.Duration(cfg.JobLockSeconds) * time.Second
	if jobLease <= 0 {
		jobLease = 180 * time.Second
	}
	sentinelInt := time.Duration(cfg.SentinelIntervalSecs) * time.Second
	if sentinelInt <= 0 {
		sentinelInt = 5 * time.Minute
	}

	return &Scheduler{
		nodeID:      nodeID,
		lock:        lock,
		queue:       queue,
		monitors:    monitors,
		concurrency: clampInt(concurrency, 2, 20),
		lockTTL:     lockTTL,
		jobLease:    jobLease,
		sentinelInt: sentinelInt,
		forceMaster: cfg.ForceMaster,
	}
}

// SetRunner wires the component that actually executes a dequeued job.
func (s *Scheduler) SetRunner(r Runner) {
	s.runner = r
}

// SetMetrics wires observability. Like SetRunner this is a post-construction
// setter rather than a constructor parameter so tests that don't care about
// metrics can leave it nil.
func (s *Scheduler) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// Start launches election and worker-pool dispatch. It returns immediately;
// call Wait to block until ctx is cancelled and both loops exit.
func (s *Scheduler) Start(ctx context.Context) {
	s.tickElection(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.electionLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.dispatchLoop(ctx)
	}()
}

// Wait blocks until the scheduler's background loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// IsMaster reports whether this process currently holds the master lock.
func (s *Scheduler) IsMaster() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master
}

// EnqueueScheduled arms the monitor's next periodic check. Deterministic ids
// make this naturally idempotent: a duplicate enqueue for a job already
// waiting or delayed is a no-op.
func (s *Scheduler) EnqueueScheduled(ctx context.Context, monitorID string, delay time.Duration) error {
	job := coordination.Job{
		ID:        scheduledJobID(monitorID),
		MonitorID: monitorID,
		Kind:      coordination.KindScheduled,
		RunAt:     time.Now().UTC().Add(delay),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue scheduled job for monitor %s: %w", monitorID, err)
	}
	return nil
}

// EnqueueImmediate arms a user-requested or just-created monitor's first
// check. De-bounced by the queue's own upsert semantics: if a prior
// immediate job for this monitor is still waiting, active, or delayed, this
// call is a no-op.
func (s *Scheduler) EnqueueImmediate(ctx context.Context, monitorID string) error {
	job := coordination.Job{
		ID:        immediateJobID(monitorID),
		MonitorID: monitorID,
		Kind:      coordination.KindImmediate,
		Priority:  1,
		RunAt:     time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue immediate job for monitor %s: %w", monitorID, err)
	}
	return nil
}

// RemoveMonitor cancels every non-active queue entry for monitorID. An
// in-flight probe can't be interrupted; the Check Runner discards its
// result against a deleted/deactivated monitor on post-fetch instead.
func (s *Scheduler) RemoveMonitor(ctx context.Context, monitorID string) error {
	if err := s.queue.RemoveByMonitor(ctx, monitorID); err != nil {
		return fmt.Errorf("failed to remove queue entries for monitor %s: %w", monitorID, err)
	}
	return nil
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	p := pool.New().WithMaxGoroutines(s.concurrency).WithErrors().WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			p.Wait()
			return
		default:
		}

		if s.runner == nil {
			time.Sleep(dispatchPollInterval)
			continue
		}

		job, ok, err := s.queue.Dequeue(ctx, s.jobLease)
		if err != nil {
			log.Printf("Warning: failed to dequeue job: %v", err)
			time.Sleep(dispatchErrorBackoff)
			continue
		}
		if !ok {
			time.Sleep(dispatchPollInterval)
			continue
		}

		claimed := *job
		p.Go(func(ctx context.Context) error {
			s.execute(ctx, claimed)
			return nil
		})
	}
}

func (s *Scheduler) execute(ctx context.Context, job coordination.Job) {
	renewCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.renewLeaseHalfway(renewCtx, job.ID)

	if err := s.runner.Run(ctx, job.MonitorID); err != nil {
		log.Printf("Warning: check runner returned an error for monitor %s: %v", job.MonitorID, err)
	}
	if err := s.queue.Complete(ctx, job.ID); err != nil {
		log.Printf("Warning: failed to complete job %s: %v", job.ID, err)
	}
}

func (s *Scheduler) renewLeaseHalfway(ctx context.Context, jobID string) {
	timer := time.NewTimer(s.jobLease / 2)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if err := s.queue.Renew(ctx, jobID, s.jobLease); err != nil {
			log.Printf("Warning: failed to renew lease for job %s: %v", jobID, err)
		}
	}
}
