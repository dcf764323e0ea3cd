package scheduler

import (
	"context"
	"log"
	"time"
)

// electionLoop refreshes or attempts the master lock every lockTTL/2, the
// cadence spec §4.H requires so a lost lock is noticed within one tick.
func (s *Scheduler) electionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.lockTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickElection(ctx)
		}
	}
}

func (s *Scheduler) tickElection(ctx context.Context) {
	if s.forceMaster {
		if !s.IsMaster() {
			s.promote(ctx)
		}
		return
	}

	if s.IsMaster() {
		ok, err := s.lock.Refresh(ctx, masterLockKey, s.nodeID, s.lockTTL)
		if err != nil {
			log.Printf("Warning: failed to refresh master lock: %v", err)
			return
		}
		if !ok {
			s.demote()
		}
		return
	}

	ok, err := s.lock.Acquire(ctx, masterLockKey, s.nodeID, s.lockTTL)
	if err != nil {
		log.Printf("Warning: failed to attempt master lock acquisition: %v", err)
		return
	}
	if ok {
		s.promote(ctx)
	}
}

func (s *Scheduler) promote(ctx context.Context) {
	masterCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.master = true
	s.masterCancel = cancel
	s.mu.Unlock()

	log.Printf("became scheduler master (node=%s)", s.nodeID)
	go s.runAsMaster(masterCtx)
}

func (s *Scheduler) demote() {
	s.mu.Lock()
	s.master = false
	cancel := s.masterCancel
	s.masterCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Printf("lost scheduler master lock (node=%s); standing by", s.nodeID)
}

// runAsMaster performs the once-per-tenure startup sync and then sweeps for
// stalled monitors every sentinelInt until this node loses mastership.
func (s *Scheduler) runAsMaster(ctx context.Context) {
	if err := s.startupSync(ctx); err != nil {
		log.Printf("Warning: startup sync failed: %v", err)
	}

	ticker := time.NewTicker(s.sentinelInt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sentinelSweep(ctx)
		}
	}
}
