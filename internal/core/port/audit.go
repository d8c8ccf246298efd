package port

import (
	"context"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
)

// SecurityEventPublisher forwards audit records to the security event sink.
// Implementations must not block request handling on sink availability.
type SecurityEventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error
}
