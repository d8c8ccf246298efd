package domain

import "time"

// EventSeverity ranks security events for the audit sink.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "INFO"
	SeverityWarn     EventSeverity = "WARN"
	SeverityError    EventSeverity = "ERROR"
	SeverityCritical EventSeverity = "CRITICAL"
)

// EventType identifies the audited action. Values follow the audit sink's
// uppercase action vocabulary.
type EventType string

const (
	EventAccountRegistered  EventType = "ACCOUNT_REGISTERED"
	EventAccountDeleted     EventType = "ACCOUNT_DELETED"
	EventLoginSucceeded     EventType = "LOGIN_SUCCEEDED"
	EventLoginFailed        EventType = "LOGIN_FAILED"
	EventPasswordChanged    EventType = "PASSWORD_CHANGED"
	EventTokenRotated       EventType = "TOKEN_ROTATED"
	EventRotationRace       EventType = "ROTATION_RACE_RECOVERED"
	EventSessionExpired     EventType = "SESSION_EXPIRED"
	EventInvalidSession     EventType = "INVALID_SESSION"
	EventTokenReuseDetected EventType = "TOKEN_REUSE_DETECTED"
	EventOwnershipMismatch  EventType = "TOKEN_OWNERSHIP_MISMATCH"
	EventInconsistentToken  EventType = "INCONSISTENT_TOKEN_STATE"
	EventFamilyRevoked      EventType = "TOKEN_FAMILY_REVOKED"
	EventScheduledTask      EventType = "SCHEDULED_TASK"
	EventScheduledTaskError EventType = "SCHEDULED_TASK_FAILED"
)

// SecurityEvent is the audit record emitted for authentication activity.
// OwnerID, FamilyID, and TokenID are optional depending on the event.
type SecurityEvent struct {
	ID         string
	Type       EventType
	Severity   EventSeverity
	OwnerID    string
	FamilyID   string
	TokenID    string
	Detail     string
	OccurredAt time.Time
}
