package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
	"github.com/arklim/social-platform-sessions/internal/core/port"
)

// SecurityOutcome names an authentication result worth auditing.
type SecurityOutcome string

const (
	OutcomeAccountRegistered   SecurityOutcome = "account_registered"
	OutcomeAccountDeleted      SecurityOutcome = "account_deleted"
	OutcomeLoginSucceeded      SecurityOutcome = "login_succeeded"
	OutcomeLoginFailed         SecurityOutcome = "login_failed"
	OutcomePasswordChanged     SecurityOutcome = "password_changed"
	OutcomeTokenRotated        SecurityOutcome = "token_rotated"
	OutcomeRotationRace        SecurityOutcome = "rotation_race_recovered"
	OutcomeSessionExpired      SecurityOutcome = "session_expired"
	OutcomeInvalidSession      SecurityOutcome = "invalid_session"
	OutcomeTokenReuse          SecurityOutcome = "token_reuse"
	OutcomeOwnershipMismatch   SecurityOutcome = "ownership_mismatch"
	OutcomeInconsistentState   SecurityOutcome = "inconsistent_state"
	OutcomeFamilyRevoked       SecurityOutcome = "family_revoked"
	OutcomeScheduledTask       SecurityOutcome = "scheduled_task"
	OutcomeScheduledTaskFailed SecurityOutcome = "scheduled_task_failed"
)

// Classify maps an outcome to its audit event type and severity. Reuse and
// ownership violations are the only CRITICAL signals; an expired session is
// ordinary churn and must not page anyone.
func Classify(outcome SecurityOutcome) (domain.EventType, domain.EventSeverity) {
	switch outcome {
	case OutcomeAccountRegistered:
		return domain.EventAccountRegistered, domain.SeverityInfo
	case OutcomeAccountDeleted:
		return domain.EventAccountDeleted, domain.SeverityInfo
	case OutcomeLoginSucceeded:
		return domain.EventLoginSucceeded, domain.SeverityInfo
	case OutcomeLoginFailed:
		return domain.EventLoginFailed, domain.SeverityWarn
	case OutcomePasswordChanged:
		return domain.EventPasswordChanged, domain.SeverityInfo
	case OutcomeTokenRotated:
		return domain.EventTokenRotated, domain.SeverityInfo
	case OutcomeRotationRace:
		return domain.EventRotationRace, domain.SeverityInfo
	case OutcomeSessionExpired:
		return domain.EventSessionExpired, domain.SeverityInfo
	case OutcomeInvalidSession:
		return domain.EventInvalidSession, domain.SeverityWarn
	case OutcomeTokenReuse:
		return domain.EventTokenReuseDetected, domain.SeverityCritical
	case OutcomeOwnershipMismatch:
		return domain.EventOwnershipMismatch, domain.SeverityCritical
	case OutcomeInconsistentState:
		return domain.EventInconsistentToken, domain.SeverityError
	case OutcomeFamilyRevoked:
		return domain.EventFamilyRevoked, domain.SeverityInfo
	case OutcomeScheduledTask:
		return domain.EventScheduledTask, domain.SeverityInfo
	case OutcomeScheduledTaskFailed:
		return domain.EventScheduledTaskError, domain.SeverityError
	default:
		return domain.EventInvalidSession, domain.SeverityWarn
	}
}

// SecurityRecorder classifies outcomes and forwards them to the audit
// publisher. Recording is fire-and-forget: a failing publisher is logged and
// never surfaces to the caller.
type SecurityRecorder struct {
	events port.SecurityEventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityRecorder constructs a recorder around the audit publisher.
func NewSecurityRecorder(events port.SecurityEventPublisher, logger *zap.Logger) *SecurityRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityRecorder{
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the recorder's notion of now, primarily for tests.
func (r *SecurityRecorder) WithClock(now func() time.Time) *SecurityRecorder {
	if now != nil {
		r.now = now
	}
	return r
}

// Record emits one audit event for the outcome.
func (r *SecurityRecorder) Record(ctx context.Context, outcome SecurityOutcome, ownerID, familyID, tokenID, detail string) {
	if r == nil || r.events == nil {
		return
	}

	eventType, severity := Classify(outcome)
	event := domain.SecurityEvent{
		Type:       eventType,
		Severity:   severity,
		OwnerID:    ownerID,
		FamilyID:   familyID,
		TokenID:    tokenID,
		Detail:     detail,
		OccurredAt: r.now(),
	}

	if err := r.events.PublishSecurityEvent(ctx, event); err != nil {
		r.logger.Warn("publish security event",
			zap.Error(err),
			zap.String("event_type", string(eventType)),
		)
	}
}
