package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-sessions/internal/core/port"
)

// RetentionService deletes refresh token rows that no longer serve reuse
// detection: expired tokens, and revoked tokens older than the retention
// window.
type RetentionService struct {
	tokens         port.RefreshTokenRepository
	recorder       *SecurityRecorder
	logger         *zap.Logger
	interval       time.Duration
	tokenRetention time.Duration
	now            func() time.Time
}

// NewRetentionService wires the sweeper.
func NewRetentionService(
	tokens port.RefreshTokenRepository,
	recorder *SecurityRecorder,
	log *zap.Logger,
	interval, tokenRetention time.Duration,
) *RetentionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetentionService{
		tokens:         tokens,
		recorder:       recorder,
		logger:         log,
		interval:       interval,
		tokenRetention: tokenRetention,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service's notion of now, primarily for tests.
func (s *RetentionService) WithClock(now func() time.Time) *RetentionService {
	if now != nil {
		s.now = now
	}
	return s
}

// Sweep runs one purge pass. Revoked rows are kept for the retention window so
// late replays still classify as reuse rather than unknown tokens.
func (s *RetentionService) Sweep(ctx context.Context) (int64, error) {
	now := s.now()

	deleted, err := s.tokens.DeleteStale(ctx, now, now.Add(-s.tokenRetention))
	if err != nil {
		s.recorder.Record(ctx, OutcomeScheduledTaskFailed, "", "", "", "token sweep failed")
		return 0, fmt.Errorf("delete stale tokens: %w", err)
	}

	s.recorder.Record(ctx, OutcomeScheduledTask, "", "", "", fmt.Sprintf("token sweep removed %d rows", deleted))

	return deleted, nil
}

// Run sweeps on the configured interval until the context is cancelled.
// Failures are logged and the loop keeps going.
func (s *RetentionService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retention sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			deleted, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("retention sweep", zap.Error(err))
				continue
			}
			if deleted > 0 {
				s.logger.Info("retention sweep completed", zap.Int64("deleted", deleted))
			}
		}
	}
}
