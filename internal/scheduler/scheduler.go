// Package scheduler drives periodic refresh rounds. A scheduler owns at
// most one active timer; Start and Stop are idempotent, so shutdown
// leaves no ambient process-lifetime timers behind.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RefreshFunc runs one refresh round. Errors are logged, never fatal to
// the schedule.
type RefreshFunc func(ctx context.Context) error

type Scheduler struct {
	refresh RefreshFunc
	log     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(refresh RefreshFunc, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{refresh: refresh, log: log}
}

// Start installs a repeating timer. Calling Start while running cancels
// the existing timer first, so a double Start leaves exactly one timer.
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(ctx, interval, done)
	s.log.Info("scheduler started", zap.Duration("interval", interval))
}

// Stop cancels the pending timer so no further rounds start. A round
// already dispatched is allowed to complete. Stopping an idle scheduler
// is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.stopLocked()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.done = nil
	}
}

// ForceRefreshNow runs one round immediately, without waiting for or
// resetting the timer phase. It works whether or not the scheduler is
// running.
func (s *Scheduler) ForceRefreshNow() {
	s.round(context.Background())
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.round(ctx)
		}
	}
}

func (s *Scheduler) round(ctx context.Context) {
	start := time.Now()
	if err := s.refresh(ctx); err != nil {
		// Stale cached values persist; the next tick proceeds normally.
		s.log.Warn("refresh round failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	s.log.Debug("refresh round complete", zap.Duration("took", time.Since(start)))
}
