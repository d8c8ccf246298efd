package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
	"github.com/arklim/social-platform-sessions/internal/core/port"
)

// StubPublisher logs security events instead of sending them to Kafka.
// Useful for development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishSecurityEvent logs the event at a level matching its severity.
func (p *StubPublisher) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("owner_id", event.OwnerID),
		zap.String("family_id", event.FamilyID),
		zap.String("token_id", event.TokenID),
		zap.String("detail", event.Detail),
		zap.Time("occurred_at", at.UTC()),
	}

	switch event.Severity {
	case domain.SeverityCritical, domain.SeverityError:
		p.logger.Error("stub security event", fields...)
	case domain.SeverityWarn:
		p.logger.Warn("stub security event", fields...)
	default:
		p.logger.Info("stub security event", fields...)
	}

	return nil
}

var _ port.SecurityEventPublisher = (*StubPublisher)(nil)
