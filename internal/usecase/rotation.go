package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
	"github.com/arklim/social-platform-sessions/internal/core/port"
	"github.com/arklim/social-platform-sessions/internal/infra/security"
	"github.com/arklim/social-platform-sessions/internal/infra/telemetry"
	"github.com/arklim/social-platform-sessions/internal/repository"
)

// Rotation outcome labels for the metrics counter.
const (
	outcomeLabelRotated       = "rotated"
	outcomeLabelRaceRecovered = "race_recovered"
	outcomeLabelExpired       = "expired"
	outcomeLabelInvalid       = "invalid"
	outcomeLabelReuseDetected = "reuse_detected"
	outcomeLabelInconsistent  = "inconsistent"
)

// RotationService implements refresh token rotation with a grace window for
// concurrent clients. Every refresh consumes the presented token and issues a
// successor in the same family; a revoked token presented again is classified
// against the grace window to tell a benign double-refresh from a stolen
// token replay.
type RotationService struct {
	tx               port.TxRunner
	repos            port.Repositories
	codec            *security.TokenCodec
	revocation       *RevocationService
	recorder         *SecurityRecorder
	metrics          *telemetry.RotationMetrics
	logger           *zap.Logger
	grace            time.Duration
	accountRetention time.Duration
	now              func() time.Time
}

// NewRotationService wires the rotation engine. grace bounds how long after
// revocation a replay is still treated as a benign race.
func NewRotationService(
	tx port.TxRunner,
	repos port.Repositories,
	codec *security.TokenCodec,
	revocation *RevocationService,
	recorder *SecurityRecorder,
	logger *zap.Logger,
	grace time.Duration,
	accountRetention time.Duration,
) *RotationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RotationService{
		tx:               tx,
		repos:            repos,
		codec:            codec,
		revocation:       revocation,
		recorder:         recorder,
		logger:           logger,
		grace:            grace,
		accountRetention: accountRetention,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches the Prometheus counters.
func (s *RotationService) WithMetrics(metrics *telemetry.RotationMetrics) *RotationService {
	s.metrics = metrics
	return s
}

// WithClock overrides the service's notion of now, primarily for tests.
func (s *RotationService) WithClock(now func() time.Time) *RotationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Refresh validates the presented refresh token and rotates it. On success the
// presented token is revoked and a fresh pair is returned; the refresh token's
// jti is the id of the newly stored successor row.
func (s *RotationService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken, security.KindRefresh)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			s.recorder.Record(ctx, OutcomeSessionExpired, "", "", "", "refresh token signature expired")
			s.metrics.RecordOutcome(outcomeLabelExpired)
			return nil, ErrSessionExpired
		}
		s.metrics.RecordOutcome(outcomeLabelInvalid)
		return nil, ErrInvalidSession
	}

	stored, err := s.repos.RefreshTokens.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recorder.Record(ctx, OutcomeInvalidSession, claims.Subject, claims.FamilyID, claims.ID, "refresh token unknown to store")
			s.metrics.RecordOutcome(outcomeLabelInvalid)
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	// A valid signature over claims that disagree with the stored row means
	// the row was re-bound or the token was forged with a leaked key. Kill
	// the family either way.
	if stored.OwnerID != claims.Subject || stored.FamilyID != claims.FamilyID {
		if _, err := s.revocation.RevokeFamily(ctx, stored.FamilyID, "ownership_mismatch"); err != nil {
			s.logger.Error("revoke family after ownership mismatch", zap.Error(err), zap.String("family_id", stored.FamilyID))
		}
		s.recorder.Record(ctx, OutcomeOwnershipMismatch, stored.OwnerID, stored.FamilyID, stored.ID, "token claims disagree with stored row")
		s.metrics.RecordOutcome(outcomeLabelInvalid)
		return nil, ErrInvalidSession
	}

	// Fast path: a family already condemned in the cache is dead regardless
	// of what the row says. Re-kill to converge and treat the presentation
	// as a replay.
	if s.revocation.IsFamilyRevoked(ctx, stored.FamilyID) {
		if _, err := s.revocation.RevokeFamily(ctx, stored.FamilyID, "revoked_family_replay"); err != nil {
			s.logger.Error("re-revoke cached family", zap.Error(err), zap.String("family_id", stored.FamilyID))
		}
		s.recorder.Record(ctx, OutcomeTokenReuse, stored.OwnerID, stored.FamilyID, stored.ID, "token presented for a revoked family")
		s.metrics.RecordOutcome(outcomeLabelReuseDetected)
		return nil, ErrSessionExpired
	}

	now := s.now()
	if stored.Expired(now) {
		s.recorder.Record(ctx, OutcomeSessionExpired, stored.OwnerID, stored.FamilyID, stored.ID, "stored refresh token expired")
		s.metrics.RecordOutcome(outcomeLabelExpired)
		return nil, ErrSessionExpired
	}

	if stored.Revoked {
		return s.handleRevoked(ctx, stored, now)
	}

	account, err := s.loadAccount(ctx, stored.OwnerID, now)
	if err != nil {
		return nil, err
	}

	return s.rotate(ctx, stored, account, now)
}

// rotate creates the successor and consumes the presented token atomically.
// The MarkReplaced update only matches live rows, so of two concurrent
// rotations exactly one commits; the loser re-reads the row and lands in the
// grace window.
func (s *RotationService) rotate(ctx context.Context, stored *domain.RefreshToken, account *domain.Account, now time.Time) (*domain.TokenPair, error) {
	successor := domain.RefreshToken{
		ID:        uuid.NewString(),
		OwnerID:   stored.OwnerID,
		FamilyID:  stored.FamilyID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codec.RefreshTTL()),
	}

	err := s.tx.InTx(ctx, func(repos port.Repositories) error {
		if err := repos.RefreshTokens.Create(ctx, successor); err != nil {
			return fmt.Errorf("create successor token: %w", err)
		}
		if err := repos.RefreshTokens.MarkReplaced(ctx, stored.ID, successor.ID, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the rotation race: someone revoked the row between our
			// read and the update. Re-read and classify.
			current, readErr := s.repos.RefreshTokens.GetByID(ctx, stored.ID)
			if readErr != nil {
				if errors.Is(readErr, repository.ErrNotFound) {
					s.metrics.RecordOutcome(outcomeLabelInvalid)
					return nil, ErrInvalidSession
				}
				return nil, fmt.Errorf("re-read refresh token: %w", readErr)
			}
			return s.handleRevoked(ctx, current, s.now())
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	pair, err := s.issuePair(account, successor)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, OutcomeTokenRotated, stored.OwnerID, stored.FamilyID, successor.ID, "refresh token rotated")
	s.metrics.RecordOutcome(outcomeLabelRotated)

	return pair, nil
}

// handleRevoked classifies the presentation of an already revoked token.
// Inside the grace window a replaced token is a benign double-refresh and the
// successor's pair is re-issued without touching storage. Outside the window a
// replaced token is evidence of theft and the family dies.
func (s *RotationService) handleRevoked(ctx context.Context, stored *domain.RefreshToken, now time.Time) (*domain.TokenPair, error) {
	if stored.Inconsistent() {
		s.recorder.Record(ctx, OutcomeInconsistentState, stored.OwnerID, stored.FamilyID, stored.ID, "revoked token missing revocation timestamp")
		s.metrics.RecordOutcome(outcomeLabelInconsistent)
		return nil, ErrInconsistentTokenState
	}

	if stored.WithinGrace(now, s.grace) {
		// The client may be several rotations behind: two tabs retrying can
		// consume the direct successor too. Recover against the newest live
		// row in the family, not the replaced_by pointer.
		latest, err := s.repos.RefreshTokens.FindLatestInFamily(ctx, stored.FamilyID, now)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find latest family token: %w", err)
		}
		if err == nil {
			account, err := s.loadAccount(ctx, latest.OwnerID, now)
			if err != nil {
				return nil, err
			}

			pair, err := s.issuePair(account, *latest)
			if err != nil {
				return nil, err
			}

			s.recorder.Record(ctx, OutcomeRotationRace, stored.OwnerID, stored.FamilyID, latest.ID,
				fmt.Sprintf("concurrent refresh recovered within grace: presented %s, re-issued %s", stored.ID, latest.ID))
			s.metrics.RecordOutcome(outcomeLabelRaceRecovered)

			return pair, nil
		}

		if stored.ReplacedByID == nil {
			// Revoked without a successor inside the grace window: a logout
			// racing a refresh. Nothing to recover.
			s.recorder.Record(ctx, OutcomeSessionExpired, stored.OwnerID, stored.FamilyID, stored.ID, "revoked token replayed within grace, no successor")
			s.metrics.RecordOutcome(outcomeLabelExpired)
			return nil, ErrSessionExpired
		}

		// The token was rotated but its whole lineage is dead. That is not how
		// a chain ends normally, so flag it rather than report a plain expiry.
		s.logger.Warn("rotated token has no live descendant within grace",
			zap.String("token_id", stored.ID),
			zap.String("family_id", stored.FamilyID),
		)
		s.recorder.Record(ctx, OutcomeInvalidSession, stored.OwnerID, stored.FamilyID, stored.ID, "rotated but replacement invalid")
		s.metrics.RecordOutcome(outcomeLabelInvalid)
		return nil, ErrInvalidSession
	}

	if stored.ReplacedByID != nil {
		revoked, err := s.revocation.RevokeFamily(ctx, stored.FamilyID, "token_reuse")
		if err != nil {
			s.logger.Error("revoke family after reuse", zap.Error(err), zap.String("family_id", stored.FamilyID))
		}
		s.recorder.Record(ctx, OutcomeTokenReuse, stored.OwnerID, stored.FamilyID, stored.ID,
			fmt.Sprintf("token %s replayed %s after revocation, %d tokens revoked", stored.ID, now.Sub(*stored.RevokedAt).Round(time.Millisecond), revoked))
		s.metrics.RecordOutcome(outcomeLabelReuseDetected)
		return nil, ErrTokenReuse
	}

	// Revoked long ago with no successor: a stale replay of a logged-out
	// token. Converge the family and report a plain expiry.
	if _, err := s.revocation.RevokeFamily(ctx, stored.FamilyID, "stale_replay"); err != nil {
		s.logger.Error("revoke family after stale replay", zap.Error(err), zap.String("family_id", stored.FamilyID))
	}
	s.recorder.Record(ctx, OutcomeSessionExpired, stored.OwnerID, stored.FamilyID, stored.ID, "revoked token replayed outside grace")
	s.metrics.RecordOutcome(outcomeLabelExpired)
	return nil, ErrSessionExpired
}

func (s *RotationService) loadAccount(ctx context.Context, ownerID string, now time.Time) (*domain.Account, error) {
	account, err := s.repos.Accounts.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordOutcome(outcomeLabelInvalid)
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if account.Deleted() {
		if days := account.RetentionDaysLeft(now, s.accountRetention); days > 0 {
			return nil, fmt.Errorf("%w: %d days until purge", ErrAccountPendingDeletion, days)
		}
		s.metrics.RecordOutcome(outcomeLabelInvalid)
		return nil, ErrAccessDenied
	}

	return account, nil
}

func (s *RotationService) issuePair(account *domain.Account, token domain.RefreshToken) (*domain.TokenPair, error) {
	accessToken, err := s.codec.IssueAccess(account.ID, account.Role)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := s.codec.IssueRefresh(account.ID, token.ID, token.FamilyID, token.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.codec.AccessTTL().Seconds()),
	}, nil
}
