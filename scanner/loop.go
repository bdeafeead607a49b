package scanner

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Run drives the scheduler on a fixed poll interval until ctx is cancelled.
// Tick errors are logged per tick and never stop the loop: the scanner has no
// interactive consumer to propagate to.
func (s *Scheduler) Run(ctx context.Context, pollInterval time.Duration) {
	s.logger.Info("scanner started",
		zap.Duration("poll_interval", pollInterval),
		zap.Duration("staleness_threshold", s.cfg.StalenessThreshold),
		zap.Int("max_concurrent", s.cfg.MaxConcurrent))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// First scan immediately rather than one full interval in.
	if err := s.Tick(ctx); err != nil {
		s.logger.Warn("scan tick failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopping")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			s.Shutdown(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Warn("scan tick failed", zap.Error(err))
			}
		}
	}
}
