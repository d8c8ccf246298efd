package domain

import "time"

// RefreshToken is one link in a rotation lineage. Every token belongs to a
// family (one family per login); rotation revokes the presented token and
// records the successor through ReplacedByID. Revoked and RevokedAt are stored
// separately so a half-written revocation is representable and detectable.
type RefreshToken struct {
	ID           string
	OwnerID      string
	FamilyID     string
	Revoked      bool
	RevokedAt    *time.Time
	ReplacedByID *string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the token lifetime has elapsed.
func (t RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Inconsistent reports a revoked flag without a revocation timestamp. Such a
// row cannot be classified against the grace window and must be rejected.
func (t RefreshToken) Inconsistent() bool {
	return t.Revoked && t.RevokedAt == nil
}

// WithinGrace reports whether the revocation happened strictly less than
// grace ago. Tokens revoked inside the window are candidates for benign-race
// recovery rather than reuse alarms.
func (t RefreshToken) WithinGrace(now time.Time, grace time.Duration) bool {
	if t.RevokedAt == nil {
		return false
	}
	return now.Sub(*t.RevokedAt) < grace
}

// TokenPair is the client-facing result of login, registration, and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}
