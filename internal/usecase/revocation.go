package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-sessions/internal/core/port"
)

const defaultFamilyCacheTTL = 7 * 24 * time.Hour

// RevocationService kills token families and owner sessions. The cache is an
// optional fast path; revocation correctness never depends on it.
type RevocationService struct {
	tokens   port.RefreshTokenRepository
	cache    port.FamilyRevocationCache
	recorder *SecurityRecorder
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// NewRevocationService constructs the service without a family cache.
func NewRevocationService(tokens port.RefreshTokenRepository, recorder *SecurityRecorder, logger *zap.Logger) *RevocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationService{
		tokens:   tokens,
		recorder: recorder,
		logger:   logger,
		cacheTTL: defaultFamilyCacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithFamilyCache attaches a revoked-family cache. Entries live for ttl, which
// should cover at least the refresh token lifetime.
func (s *RevocationService) WithFamilyCache(cache port.FamilyRevocationCache, ttl time.Duration) *RevocationService {
	s.cache = cache
	if ttl > 0 {
		s.cacheTTL = ttl
	}
	return s
}

// WithClock overrides the service's notion of now, primarily for tests.
func (s *RevocationService) WithClock(now func() time.Time) *RevocationService {
	if now != nil {
		s.now = now
	}
	return s
}

// RevokeFamily revokes every live token in the family and marks the family in
// the cache. Revoking an already dead family is a no-op that reports zero rows.
func (s *RevocationService) RevokeFamily(ctx context.Context, familyID, reason string) (int64, error) {
	if familyID == "" {
		return 0, ErrUnsafeFilter
	}

	revoked, err := s.tokens.RevokeMany(ctx, port.RefreshTokenFilter{FamilyID: familyID}, s.now())
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.MarkFamilyRevoked(ctx, familyID, reason, s.cacheTTL); err != nil {
			s.logger.Warn("mark family revoked in cache",
				zap.Error(err),
				zap.String("family_id", familyID),
			)
		}
	}

	if revoked > 0 {
		s.recorder.Record(ctx, OutcomeFamilyRevoked, "", familyID, "", reason)
	}

	return revoked, nil
}

// RevokeAllForOwner revokes every live token the owner holds, across all
// families.
func (s *RevocationService) RevokeAllForOwner(ctx context.Context, ownerID, reason string) (int64, error) {
	if ownerID == "" {
		return 0, ErrUnsafeFilter
	}

	revoked, err := s.tokens.RevokeMany(ctx, port.RefreshTokenFilter{OwnerID: ownerID}, s.now())
	if err != nil {
		return 0, err
	}

	if revoked > 0 {
		s.recorder.Record(ctx, OutcomeFamilyRevoked, ownerID, "", "", reason)
	}

	return revoked, nil
}

// IsFamilyRevoked consults the cache. Cache failures degrade to "not revoked";
// the authoritative state lives in the token rows.
func (s *RevocationService) IsFamilyRevoked(ctx context.Context, familyID string) bool {
	if s.cache == nil || familyID == "" {
		return false
	}

	revoked, _, err := s.cache.IsFamilyRevoked(ctx, familyID)
	if err != nil {
		s.logger.Warn("check family revocation cache",
			zap.Error(err),
			zap.String("family_id", familyID),
		)
		return false
	}

	return revoked
}
