package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
	"github.com/custodia-labs/paperdex/internal/logger"
	"github.com/custodia-labs/paperdex/internal/metrics"
)

// Ensure SweepScheduler implements the interface.
var _ driving.Scheduler = (*SweepScheduler)(nil)

// DefaultSweepInterval is used when no positive interval is configured.
const DefaultSweepInterval = 15 * time.Minute

// SweepScheduler periodically flags documents without chunks for
// re-embedding and waits for the resulting jobs.
type SweepScheduler struct {
	reembed  driving.ReembedService
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	resetCh chan struct{}
	last    *domain.SweepResult
}

// NewSweepScheduler creates a scheduler that sweeps every interval.
func NewSweepScheduler(reembed driving.ReembedService, interval time.Duration) *SweepScheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SweepScheduler{
		reembed:  reembed,
		interval: interval,
		metrics:  metrics.Get(),
		now:      time.Now,
		resetCh:  make(chan struct{}, 1),
	}
}

// SetMetrics replaces the metrics collectors.
func (s *SweepScheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start sweeps once and then on every tick. It blocks until Stop is called
// or ctx is cancelled.
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	defer close(done)
	logger.Info("Sweeping for papers without chunks every %s", s.Interval())
	return s.run(ctx, stopCh)
}

// Stop ends the loop and waits for the sweep in progress.
func (s *SweepScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

// Reschedule changes the sweep interval. Non-positive values are ignored.
func (s *SweepScheduler) Reschedule(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	changed := interval != s.interval
	s.interval = interval
	s.mu.Unlock()
	if !changed {
		return
	}
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
}

// Interval returns the current sweep interval.
func (s *SweepScheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// LastResult returns the most recent sweep, or nil before the first one.
func (s *SweepScheduler) LastResult() *domain.SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

func (s *SweepScheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.markStopped()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.resetCh:
			interval := s.Interval()
			ticker.Reset(interval)
			logger.Info("Sweep interval changed to %s", interval)
		}
	}
}

func (s *SweepScheduler) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
}

// sweep runs one pass and waits for the jobs it scheduled.
func (s *SweepScheduler) sweep(ctx context.Context) {
	result := &domain.SweepResult{StartedAt: s.now()}
	ids, err := s.reembed.Sweep(ctx)
	if err == nil {
		s.reembed.Wait()
	}
	result.EndedAt = s.now()
	result.Scheduled = ids

	outcome := metrics.OutcomeOK
	switch {
	case err != nil:
		result.Error = err.Error()
		outcome = metrics.OutcomeError
		logger.Warn("Sweep failed: %v", err)
	case len(ids) == 0:
		outcome = metrics.OutcomeEmpty
		logger.Debug("Sweep found no papers without chunks")
	default:
		logger.Info("Sweep scheduled %d papers for re-embedding", len(ids))
	}
	s.metrics.SweepRuns.WithLabelValues(outcome).Inc()

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
}
