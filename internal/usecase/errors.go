package usecase

import "errors"

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidEmail indicates the supplied email cannot identify an account.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrWeakPassword wraps the specific password policy violation.
	ErrWeakPassword = errors.New("password rejected by policy")
	// ErrSamePassword indicates the new password matches the current one.
	ErrSamePassword = errors.New("new password matches current password")
	// ErrAccountPendingDeletion indicates a soft-deleted account still inside
	// its retention window.
	ErrAccountPendingDeletion = errors.New("account pending deletion")

	// ErrSessionExpired indicates the session ended benignly: an expired
	// token, a recent logout, or a replay the engine chose not to alarm on.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidSession indicates a token that cannot be trusted at all.
	ErrInvalidSession = errors.New("invalid session")
	// ErrAccessDenied indicates the token checks out but its owner does not:
	// the account is gone or its retention window has lapsed.
	ErrAccessDenied = errors.New("access denied")
	// ErrTokenReuse indicates a revoked refresh token was replayed outside
	// the grace window; the whole family has been killed.
	ErrTokenReuse = errors.New("refresh token reuse detected")
	// ErrInconsistentTokenState indicates a revoked row without a revocation
	// timestamp, which cannot be classified against the grace window.
	ErrInconsistentTokenState = errors.New("refresh token state inconsistent")

	// ErrUnsafeFilter indicates a bulk revocation without any scope.
	ErrUnsafeFilter = errors.New("revocation filter must not be empty")
)
