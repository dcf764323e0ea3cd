package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pulseguard/core/pkg/coordination"
	"github.com/pulseguard/core/pkg/store"
)

// startupSync runs once per master tenure: it purges every non-active queue
// entry (an active job's worker is still holding it, so it's left to
// drain), then re-arms every active monitor based on how stale its last
// check is.
func (s *Scheduler) startupSync(ctx context.Context) error {
	if err := s.purgeNonActiveJobs(ctx); err != nil {
		return fmt.Errorf("failed to purge queue: %w", err)
	}

	monitors, err := s.monitors.ListActive()
	if err != nil {
		return fmt.Errorf("failed to list active monitors: %w", err)
	}

	now := time.Now().UTC()
	for _, m := range monitors {
		if err := s.syncMonitor(ctx, m, now); err != nil {
			log.Printf("Warning: failed to sync monitor %s during startup: %v", m.ID, err)
		}
	}
	return nil
}

func (s *Scheduler) purgeNonActiveJobs(ctx context.Context) error {
	jobs, err := s.queue.ListByState(ctx, coordination.JobWaiting, coordination.JobDelayed)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := s.queue.Complete(ctx, j.ID); err != nil {
			log.Printf("Warning: failed to purge job %s: %v", j.ID, err)
		}
	}
	return nil
}

func (s *Scheduler) syncMonitor(ctx context.Context, m *store.Monitor, now time.Time) error {
	if m.LastChecked == nil {
		return s.EnqueueImmediate(ctx, m.ID)
	}

	interval := time.Duration(m.IntervalMinutes) * time.Minute
	elapsed := now.Sub(*m.LastChecked)
	if elapsed >= interval {
		return s.EnqueueImmediate(ctx, m.ID)
	}
	return s.EnqueueScheduled(ctx, m.ID, interval-elapsed)
}

// sentinelSweep is the auto-healing safety net: any active monitor whose
// last check has aged past interval+buffer gets its queue entries cleared
// and an immediate check re-issued, regardless of what the queue itself
// thinks is scheduled.
func (s *Scheduler) sentinelSweep(ctx context.Context) {
	s.sampleQueueDepth(ctx)

	monitors, err := s.monitors.ListActive()
	if err != nil {
		log.Printf("Warning: sentinel failed to list active monitors: %v", err)
		return
	}

	now := time.Now().UTC()
	for _, m := range monitors {
		if !isOverdue(m, now) {
			continue
		}
		log.Printf("sentinel recovering stalled monitor %s", m.ID)
		if err := s.RemoveMonitor(ctx, m.ID); err != nil {
			log.Printf("Warning: sentinel failed to clear queue entries for monitor %s: %v", m.ID, err)
		}
		if err := s.EnqueueImmediate(ctx, m.ID); err != nil {
			log.Printf("Warning: sentinel failed to reschedule monitor %s: %v", m.ID, err)
		}
		s.metrics.RecordSentinelRecovery()
	}
}

// sampleQueueDepth reports the current waiting/delayed/active job counts.
// Called once per sentinel sweep rather than per dispatch poll, since
// ListByState walks the whole due set and doesn't need sub-second freshness.
func (s *Scheduler) sampleQueueDepth(ctx context.Context) {
	for _, state := range []coordination.JobState{coordination.JobWaiting, coordination.JobDelayed, coordination.JobActive} {
		jobs, err := s.queue.ListByState(ctx, state)
		if err != nil {
			log.Printf("Warning: failed to sample queue depth for state %s: %v", state, err)
			continue
		}
		s.metrics.SetQueueDepth(string(state), len(jobs))
	}
}

// isOverdue applies spec §4.H's buffer formula. A never-checked monitor is
// measured from creation with the strict 120s buffer; every other monitor
// uses max(120s, interval) measured from its last check.
func isOverdue(m *store.Monitor, now time.Time) bool {
	if m.LastChecked == nil {
		return now.Sub(m.CreatedAt) >= minSentinelBuffer
	}
	interval := time.Duration(m.IntervalMinutes) * time.Minute
	return now.Sub(*m.LastChecked) >= interval+sentinelBuffer(interval)
}
