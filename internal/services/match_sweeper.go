package services

import (
	"context"
	"time"

	"campusride/pkg/logger"
)

// Sweeper periodically cancels matches whose confirmation window or
// departure time has passed. Both checks are idempotent, so an overlapping
// run in another replica is harmless.
type Sweeper struct {
	matches  MatchService
	interval time.Duration
	logger   *logger.Logger
}

func NewSweeper(matches MatchService, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sweeper{matches: matches, interval: interval, logger: log.WithField("component", "match_sweeper")}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("match sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	timedOut, err := s.matches.CheckConfirmationTimeouts(ctx)
	if err != nil {
		s.logger.WithError(err).Error("confirmation timeout sweep failed")
	}

	expired, err := s.matches.ExpireOldMatches(ctx)
	if err != nil {
		s.logger.WithError(err).Error("departure expiry sweep failed")
	}

	if timedOut > 0 || expired > 0 {
		s.logger.WithFields(map[string]interface{}{
			"timed_out": timedOut,
			"expired":   expired,
		}).Info("match sweep cancelled matches")
	}
}
