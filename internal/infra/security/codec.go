package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

var (
	// ErrTokenExpired indicates the token was well-formed and authentic but past its lifetime.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a malformed token, a bad signature, or the wrong token type.
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenKind distinguishes access tokens from refresh tokens via the typ claim.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// SessionClaims carries the session context of both token kinds. FamilyID is
// only present on refresh tokens; for those, the jti equals the stored row id.
type SessionClaims struct {
	TokenType string `json:"typ"`
	Role      string `json:"role,omitempty"`
	FamilyID  string `json:"family,omitempty"`
	jwt.RegisteredClaims
}

// CodecOptions configures token issuance.
type CodecOptions struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenCodec signs and verifies RS256 session tokens.
type TokenCodec struct {
	provider   KeyProvider
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec constructs a codec bound to the supplied key provider.
func NewTokenCodec(provider KeyProvider, opts CodecOptions) (*TokenCodec, error) {
	if provider == nil {
		return nil, fmt.Errorf("key provider is required")
	}

	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	accessTTL := opts.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := opts.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}

	return &TokenCodec{
		provider:   provider,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the codec's notion of now, primarily for tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	if now != nil {
		c.now = now
	}
	return c
}

// AccessTTL exposes the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

// RefreshTTL exposes the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// IssueAccess signs a new access token for the owner.
func (c *TokenCodec) IssueAccess(ownerID, role string) (string, error) {
	claims := &SessionClaims{
		TokenType: string(KindAccess),
		Role:      role,
	}
	return c.sign(claims, ownerID, uuid.NewString(), c.accessTTL)
}

// IssueRefresh signs a refresh token whose jti is the stored row id. The
// expiry is aligned with expiresAt so a re-signed token for a live successor
// keeps the successor's remaining lifetime.
func (c *TokenCodec) IssueRefresh(ownerID, tokenID, familyID string, expiresAt time.Time) (string, error) {
	if strings.TrimSpace(tokenID) == "" {
		return "", fmt.Errorf("token id is required")
	}
	if strings.TrimSpace(familyID) == "" {
		return "", fmt.Errorf("family id is required")
	}

	claims := &SessionClaims{
		TokenType: string(KindRefresh),
		FamilyID:  familyID,
	}

	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return "", fmt.Errorf("refresh token already expired")
	}

	return c.sign(claims, ownerID, tokenID, ttl)
}

func (c *TokenCodec) sign(claims *SessionClaims, ownerID, jti string, ttl time.Duration) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", fmt.Errorf("owner id is required")
	}

	now := c.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   ownerID,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        jti,
	}

	signingKey, err := c.provider.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = c.provider.SigningKeyID()

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify checks signature, lifetime, and token type. Expiry is the only
// recoverable failure and is reported as ErrTokenExpired; every other problem
// collapses into ErrTokenInvalid.
func (c *TokenCodec) Verify(tokenString string, kind TokenKind) (*SessionClaims, error) {
	claims := &SessionClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, c.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.TokenType != string(kind) {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.TokenType)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if kind == KindRefresh && strings.TrimSpace(claims.FamilyID) == "" {
		return nil, fmt.Errorf("%w: missing token family", ErrTokenInvalid)
	}

	return claims, nil
}

func (c *TokenCodec) verificationKey(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("missing kid header")
	}
	return c.provider.GetVerificationKey(kid)
}
