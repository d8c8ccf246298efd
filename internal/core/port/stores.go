package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
)

// AccountRepository persists credential owners.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// RefreshTokenFilter selects refresh tokens for bulk revocation. At least one
// field must be set; implementations reject an empty filter so a zero value
// can never revoke the whole table.
type RefreshTokenFilter struct {
	IDs      []string
	OwnerID  string
	FamilyID string
}

// Empty reports whether the filter selects nothing in particular.
func (f RefreshTokenFilter) Empty() bool {
	return len(f.IDs) == 0 && f.OwnerID == "" && f.FamilyID == ""
}

// RefreshTokenRepository persists rotation lineages.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	GetByID(ctx context.Context, id string) (*domain.RefreshToken, error)

	// FindLatestInFamily returns the most recently created token in the family
	// that is neither revoked nor expired at now, or ErrNotFound when the whole
	// lineage is dead. The grace-window recovery uses it to re-issue the pair
	// for the newest live descendant, however many rotations happened since the
	// presented token was consumed.
	FindLatestInFamily(ctx context.Context, familyID string, now time.Time) (*domain.RefreshToken, error)

	// MarkReplaced revokes a live token and records its successor. The update
	// only matches rows that are not yet revoked; a concurrent rotation that
	// lost the race observes ErrNotFound and must re-read the row.
	MarkReplaced(ctx context.Context, tokenID, replacementID string, at time.Time) error

	// RevokeMany revokes every live token matched by the filter and returns
	// the number of rows touched. Already-revoked rows keep their original
	// revocation timestamp, so repeated kills are idempotent.
	RevokeMany(ctx context.Context, filter RefreshTokenFilter, at time.Time) (int64, error)

	// DeleteStale removes rows that expired before expiredBefore or were
	// revoked before revokedBefore.
	DeleteStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error)
}

// Repositories bundles the stores that participate in a transaction.
type Repositories struct {
	Accounts      AccountRepository
	RefreshTokens RefreshTokenRepository
}

// TxRunner executes fn atomically: either every write through the supplied
// repositories commits, or none do.
type TxRunner interface {
	InTx(ctx context.Context, fn func(repos Repositories) error) error
}
