package sync

import (
	"context"
	"sync"
	"time"

	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
)

// Scheduler owns the periodic reconciliation loop. There is exactly one
// schedule at a time: rescheduling cancels the previous loop before starting
// the next, so an interval change never leaves two tickers running.
type Scheduler struct {
	runner func(ctx context.Context)
	logger logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(runner func(ctx context.Context), log logger.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		logger: log.WithFields(map[string]interface{}{"component": "sync-scheduler"}),
	}
}

// Start launches the loop at the given interval, replacing any previous
// schedule. The first run happens after one full interval.
func (s *Scheduler) Start(intervalMinutes int) {
	intervalMinutes = models.ClampSyncInterval(intervalMinutes)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	interval := time.Duration(intervalMinutes) * time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.run(ctx)
			}
		}
	}()

	s.logger.Info("sync scheduled", map[string]interface{}{"intervalMinutes": intervalMinutes})
}

// Reschedule replaces the current schedule with a new interval.
func (s *Scheduler) Reschedule(intervalMinutes int) {
	s.Start(intervalMinutes)
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// run shields the loop from a panicking runner; one bad run must not kill
// the schedule.
func (s *Scheduler) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync run panicked", map[string]interface{}{"panic": r})
		}
	}()
	s.runner(ctx)
}
