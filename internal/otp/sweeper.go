package otp

import (
	"context"
	"time"

	"github.com/redmonkez12/payflow-auth/internal/logging"
	"github.com/redmonkez12/payflow-auth/internal/metrics"
)

// Sweeper periodically deletes expired codes. Nothing depends on it running.
type Sweeper struct {
	repo     *Repository
	interval time.Duration
	locker   Locker
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// SweeperOption configures a Sweeper
type SweeperOption func(*Sweeper)

// WithLocker makes each sweep conditional on acquiring l for one interval, so
// only one replica sweeps at a time.
func WithLocker(l Locker) SweeperOption {
	return func(s *Sweeper) { s.locker = l }
}

func WithMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(repo *Repository, interval time.Duration, logger *logging.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{repo: repo, interval: interval, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once per interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("otp sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("otp sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("otp sweeper stopped")
			return
		case <-ticker.C:
			if _, _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("otp sweep failed", "error", err.Error())
			}
		}
	}
}

// SweepOnce runs a single sweep. ran is false when another holder has the lock.
func (s *Sweeper) SweepOnce(ctx context.Context) (swept int64, ran bool, err error) {
	if s.locker != nil {
		acquired, err := s.locker.TryAcquire(ctx, s.lockTTL())
		if err != nil {
			return 0, false, err
		}
		if !acquired {
			s.logger.Debug("otp sweep skipped, lock held elsewhere")
			return 0, false, nil
		}
	}

	swept, err = s.repo.SweepExpired(ctx)
	if err != nil {
		return 0, true, err
	}

	s.metrics.OTPsSwept(swept)
	if swept > 0 {
		s.logger.Info("expired otps swept", "count", swept)
	}

	return swept, true, nil
}

func (s *Sweeper) lockTTL() time.Duration {
	// Lapse slightly before the next tick so the same replica can renew.
	if ttl := s.interval - s.interval/10; ttl > 0 {
		return ttl
	}
	return time.Minute
}
