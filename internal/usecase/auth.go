package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
	"github.com/arklim/social-platform-sessions/internal/core/port"
	"github.com/arklim/social-platform-sessions/internal/infra/logger"
	"github.com/arklim/social-platform-sessions/internal/infra/security"
	"github.com/arklim/social-platform-sessions/internal/repository"
)

// PasswordHasher abstracts the credential hash. Both paths through Login make
// exactly one Verify call, which tests observe through this seam.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// AuthService handles registration, login, logout, and credential changes.
// Lookups by unknown email still run a hash verification against a dummy hash
// so response timing does not reveal whether the email exists.
type AuthService struct {
	tx               port.TxRunner
	repos            port.Repositories
	codec            *security.TokenCodec
	hasher           PasswordHasher
	validator        *security.PasswordValidator
	revocation       *RevocationService
	recorder         *SecurityRecorder
	logger           *zap.Logger
	accountRetention time.Duration
	dummyHash        string
	now              func() time.Time
}

// NewAuthService wires the authentication flows.
func NewAuthService(
	tx port.TxRunner,
	repos port.Repositories,
	codec *security.TokenCodec,
	hasher PasswordHasher,
	validator *security.PasswordValidator,
	revocation *RevocationService,
	recorder *SecurityRecorder,
	log *zap.Logger,
	accountRetention time.Duration,
) (*AuthService, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// Hashed once at startup so unknown-email logins pay the same Argon2
	// cost as real ones.
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AuthService{
		tx:               tx,
		repos:            repos,
		codec:            codec,
		hasher:           hasher,
		validator:        validator,
		revocation:       revocation,
		recorder:         recorder,
		logger:           log,
		accountRetention: accountRetention,
		dummyHash:        dummyHash,
		now:              func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the service's notion of now, primarily for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register creates an account and opens its first session.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.Account, *domain.TokenPair, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, nil, ErrInvalidEmail
	}

	if err := s.validator.Validate(password); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    s.now(),
	}

	if err := s.repos.Accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	pair, err := s.issuePair(ctx, &account, "")
	if err != nil {
		return nil, nil, err
	}

	s.recorder.Record(ctx, OutcomeAccountRegistered, account.ID, "", "", logger.MaskEmail(email))

	return &account, pair, nil
}

// Login verifies credentials and opens a new session family.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Account, *domain.TokenPair, error) {
	email = normalizeEmail(email)

	account, err := s.repos.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn the same hashing cost as a real verification.
			_, _ = s.hasher.Verify(password, s.dummyHash)
			s.recorder.Record(ctx, OutcomeLoginFailed, "", "", "", logger.MaskEmail(email))
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("load account: %w", err)
	}

	if account.Deleted() {
		if days := account.RetentionDaysLeft(s.now(), s.accountRetention); days > 0 {
			return nil, nil, fmt.Errorf("%w: %d days until purge", ErrAccountPendingDeletion, days)
		}
		s.recorder.Record(ctx, OutcomeLoginFailed, account.ID, "", "", "login to purged account")
		return nil, nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recorder.Record(ctx, OutcomeLoginFailed, account.ID, "", "", logger.MaskEmail(email))
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, account, "")
	if err != nil {
		return nil, nil, err
	}

	s.recorder.Record(ctx, OutcomeLoginSucceeded, account.ID, "", "", logger.MaskEmail(email))

	return account, pair, nil
}

// Logout kills the family of the presented refresh token. An invalid or
// expired token is not an error: the session is gone either way.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.Verify(refreshToken, security.KindRefresh)
	if err != nil {
		return nil
	}

	if _, err := s.revocation.RevokeFamily(ctx, claims.FamilyID, "logout"); err != nil {
		return fmt.Errorf("revoke family on logout: %w", err)
	}

	return nil
}

// LogoutAll kills every session the owner holds.
func (s *AuthService) LogoutAll(ctx context.Context, ownerID string) (int64, error) {
	return s.revocation.RevokeAllForOwner(ctx, ownerID, "logout_all")
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every existing session in one transaction. A fresh pair is issued so
// the caller stays signed in.
func (s *AuthService) ChangePassword(ctx context.Context, ownerID, currentPassword, newPassword string) (*domain.TokenPair, error) {
	account, err := s.repos.Accounts.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	ok, err := s.hasher.Verify(currentPassword, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recorder.Record(ctx, OutcomeLoginFailed, account.ID, "", "", "password change with wrong current password")
		return nil, ErrInvalidCredentials
	}

	if newPassword == currentPassword {
		return nil, ErrSamePassword
	}
	if err := s.validator.Validate(newPassword); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	err = s.tx.InTx(ctx, func(repos port.Repositories) error {
		if err := repos.Accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
			return fmt.Errorf("update password hash: %w", err)
		}
		if _, err := repos.RefreshTokens.RevokeMany(ctx, port.RefreshTokenFilter{OwnerID: account.ID}, now); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	account.PasswordHash = hash
	pair, err := s.issuePair(ctx, account, "")
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, OutcomePasswordChanged, account.ID, "", "", "password changed, all sessions revoked")

	return pair, nil
}

// DeleteAccount soft-deletes the account after password confirmation and
// revokes every session. The record survives for the retention window.
func (s *AuthService) DeleteAccount(ctx context.Context, ownerID, password string) error {
	account, err := s.repos.Accounts.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("load account: %w", err)
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	now := s.now()
	err = s.tx.InTx(ctx, func(repos port.Repositories) error {
		if err := repos.Accounts.SoftDelete(ctx, account.ID, now); err != nil {
			return fmt.Errorf("soft delete account: %w", err)
		}
		if _, err := repos.RefreshTokens.RevokeMany(ctx, port.RefreshTokenFilter{OwnerID: account.ID}, now); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, OutcomeAccountDeleted, account.ID, "", "", "account soft-deleted")

	return nil
}

// ParseAccessToken verifies an access token for the HTTP middleware.
func (s *AuthService) ParseAccessToken(token string) (*security.SessionClaims, error) {
	claims, err := s.codec.Verify(token, security.KindAccess)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// issuePair stores a fresh refresh token row and signs both tokens. An empty
// familyID starts a new family.
func (s *AuthService) issuePair(ctx context.Context, account *domain.Account, familyID string) (*domain.TokenPair, error) {
	if familyID == "" {
		familyID = uuid.NewString()
	}

	now := s.now()
	token := domain.RefreshToken{
		ID:        uuid.NewString(),
		OwnerID:   account.ID,
		FamilyID:  familyID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codec.RefreshTTL()),
	}

	if err := s.repos.RefreshTokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

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

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
