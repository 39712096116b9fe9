package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agencyos/rategate/internal/config"
)

// RetentionSweeper deletes aged counter windows, old violation events, and
// expired demo sessions on an interval, decoupled from the request path.
// Delete-by-age is idempotent, so concurrent sweeps and live traffic are fine.
type RetentionSweeper struct {
	counter    *UsageCounterService
	violations *ViolationLogService
	demos      *DemoSessionService
	metrics    *Metrics
	logger     *logrus.Logger
	cfg        config.RetentionConfig

	stopChan chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewRetentionSweeper(
	cfg config.RetentionConfig,
	counter *UsageCounterService,
	violations *ViolationLogService,
	demos *DemoSessionService,
	metrics *Metrics,
	logger *logrus.Logger,
) *RetentionSweeper {
	return &RetentionSweeper{
		counter:    counter,
		violations: violations,
		demos:      demos,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start launches the background sweep worker.
func (s *RetentionSweeper) Start() {
	s.wg.Add(1)
	go s.worker()
}

func (s *RetentionSweeper) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *RetentionSweeper) worker() {
	defer s.wg.Done()

	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			s.Sweep(ctx)
			cancel()
		case <-s.stopChan:
			return
		}
	}
}

// Sweep runs one retention pass. Failures are logged and the remaining
// purges still run; the next tick retries.
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	start := time.Now()
	now := s.now().UTC()

	if deleted, err := s.counter.PurgeOlderThan(ctx, now.Add(-s.cfg.UsageWindows)); err != nil {
		s.logger.WithError(err).Error("Failed to purge usage windows")
	} else if deleted > 0 {
		s.observeDeleted("usage_windows", deleted)
	}

	if deleted, err := s.violations.PurgeOlderThan(ctx, now.Add(-s.cfg.ViolationEvents)); err != nil {
		s.logger.WithError(err).Error("Failed to purge violation events")
	} else if deleted > 0 {
		s.observeDeleted("rate_limit_events", deleted)
	}

	if deleted, err := s.demos.PurgeExpired(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to purge expired demo sessions")
	} else if deleted > 0 {
		s.observeDeleted("demo_sessions", deleted)
	}

	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	s.logger.WithField("duration", time.Since(start)).Debug("Retention sweep finished")
}

func (s *RetentionSweeper) observeDeleted(table string, deleted int64) {
	if s.metrics != nil {
		s.metrics.SweepDeleted.WithLabelValues(table).Add(float64(deleted))
	}
	s.logger.WithFields(logrus.Fields{
		"table":   table,
		"deleted": deleted,
	}).Info("Retention sweep purged rows")
}
