package domain

import "time"

// Account roles understood by the token codec and HTTP layer.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is a credential owner. Accounts are soft-deleted: DeletedAt marks the
// start of the retention window during which the record is kept for recovery.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// Deleted reports whether the account has been soft-deleted.
func (a Account) Deleted() bool {
	return a.DeletedAt != nil
}

// RetentionDaysLeft returns the number of whole days remaining before a
// soft-deleted account is eligible for purge. Returns zero for live accounts
// or accounts already past the window.
func (a Account) RetentionDaysLeft(now time.Time, retention time.Duration) int {
	if a.DeletedAt == nil {
		return 0
	}
	remaining := a.DeletedAt.Add(retention).Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}
