package port

import (
	"context"
	"time"
)

// FamilyRevocationCache remembers killed token families so replayed lineage
// members can be rejected without a database read. The cache is advisory:
// a miss falls through to storage and an error is never authoritative.
type FamilyRevocationCache interface {
	MarkFamilyRevoked(ctx context.Context, familyID, reason string, ttl time.Duration) error
	IsFamilyRevoked(ctx context.Context, familyID string) (bool, string, error)
}
