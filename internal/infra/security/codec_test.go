package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func createTestKeyProvider(t *testing.T) *FileKeyProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	dir := t.TempDir()
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	if err := os.WriteFile(filepath.Join(dir, "v1.pem"), pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	provider, err := NewFileKeyProvider(dir)
	if err != nil {
		t.Fatalf("NewFileKeyProvider: %v", err)
	}
	if provider.SigningKeyID() != "v1" {
		t.Fatalf("expected signing kid v1, got %s", provider.SigningKeyID())
	}

	return provider
}

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()

	codec, err := NewTokenCodec(createTestKeyProvider(t), CodecOptions{
		Issuer:     "sessions-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func TestTokenCodec_AccessRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.IssueAccess("owner-1", "user")
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}

	claims, err := codec.Verify(token, KindAccess)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "owner-1" {
		t.Fatalf("expected subject owner-1, got %s", claims.Subject)
	}
	if claims.Role != "user" {
		t.Fatalf("expected role user, got %s", claims.Role)
	}
	if claims.TokenType != string(KindAccess) {
		t.Fatalf("expected typ access, got %s", claims.TokenType)
	}
}

func TestTokenCodec_RefreshCarriesFamilyAndID(t *testing.T) {
	codec := newTestCodec(t)

	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	token, err := codec.IssueRefresh("owner-1", "token-1", "family-1", expiresAt)
	if err != nil {
		t.Fatalf("IssueRefresh returned error: %v", err)
	}

	claims, err := codec.Verify(token, KindRefresh)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.ID != "token-1" {
		t.Fatalf("expected jti token-1, got %s", claims.ID)
	}
	if claims.FamilyID != "family-1" {
		t.Fatalf("expected family family-1, got %s", claims.FamilyID)
	}
}

func TestTokenCodec_RejectsWrongKind(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.IssueAccess("owner-1", "user")
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}

	if _, err := codec.Verify(token, KindRefresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token presented as refresh, got %v", err)
	}
}

func TestTokenCodec_ExpiredToken(t *testing.T) {
	codec := newTestCodec(t)

	issuedAt := time.Now().UTC().Add(-time.Hour)
	codec.WithClock(func() time.Time { return issuedAt })

	token, err := codec.IssueAccess("owner-1", "user")
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}

	codec.WithClock(func() time.Time { return time.Now().UTC() })

	if _, err := codec.Verify(token, KindAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenCodec_GarbageToken(t *testing.T) {
	codec := newTestCodec(t)

	if _, err := codec.Verify("not.a.token", KindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenCodec_RefreshPastExpiryRejected(t *testing.T) {
	codec := newTestCodec(t)

	expired := time.Now().UTC().Add(-time.Minute)
	if _, err := codec.IssueRefresh("owner-1", "token-1", "family-1", expired); err == nil {
		t.Fatalf("expected error when signing for an already expired row")
	}
}
