package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
	"github.com/arklim/social-platform-sessions/internal/core/port"
	"github.com/arklim/social-platform-sessions/internal/infra/security"
	"github.com/arklim/social-platform-sessions/internal/repository"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	failWith error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]domain.Account)}
}

func (r *fakeAccountRepo) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return repository.ErrDuplicate
		}
	}
	r.accounts[account.ID] = account
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	account, ok := r.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, account := range r.accounts {
		if account.Email == email {
			found := account
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	account, ok := r.accounts[id]
	if !ok || account.DeletedAt != nil {
		return repository.ErrNotFound
	}
	account.PasswordHash = hash
	r.accounts[id] = account
	return nil
}

func (r *fakeAccountRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	account, ok := r.accounts[id]
	if !ok || account.DeletedAt != nil {
		return repository.ErrNotFound
	}
	account.DeletedAt = &at
	r.accounts[id] = account
	return nil
}

func (r *fakeAccountRepo) put(account domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.ID] = account
}

type fakeTokenRepo struct {
	mu       sync.Mutex
	tokens   map[string]domain.RefreshToken
	failWith error

	// beforeMark runs before MarkReplaced evaluates the row, letting a test
	// simulate a concurrent rotation winning first.
	beforeMark func()
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]domain.RefreshToken)}
}

func (r *fakeTokenRepo) Create(_ context.Context, token domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.tokens[token.ID] = token
	return nil
}

func (r *fakeTokenRepo) GetByID(_ context.Context, id string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	token, ok := r.tokens[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &token, nil
}

func (r *fakeTokenRepo) FindLatestInFamily(_ context.Context, familyID string, now time.Time) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	var latest *domain.RefreshToken
	for _, token := range r.tokens {
		if token.FamilyID != familyID || token.Revoked || !token.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || token.CreatedAt.After(latest.CreatedAt) {
			found := token
			latest = &found
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (r *fakeTokenRepo) MarkReplaced(_ context.Context, tokenID, replacementID string, at time.Time) error {
	if r.beforeMark != nil {
		hook := r.beforeMark
		r.beforeMark = nil
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	token, ok := r.tokens[tokenID]
	if !ok || token.Revoked {
		return repository.ErrNotFound
	}
	token.Revoked = true
	token.RevokedAt = &at
	token.ReplacedByID = &replacementID
	r.tokens[tokenID] = token
	return nil
}

func (r *fakeTokenRepo) RevokeMany(_ context.Context, filter port.RefreshTokenFilter, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return 0, r.failWith
	}
	if filter.Empty() {
		return 0, repository.ErrEmptyFilter
	}

	ids := make(map[string]struct{}, len(filter.IDs))
	for _, id := range filter.IDs {
		ids[id] = struct{}{}
	}

	var revoked int64
	for id, token := range r.tokens {
		if len(ids) > 0 {
			if _, ok := ids[id]; !ok {
				continue
			}
		}
		if filter.OwnerID != "" && token.OwnerID != filter.OwnerID {
			continue
		}
		if filter.FamilyID != "" && token.FamilyID != filter.FamilyID {
			continue
		}
		if token.Revoked {
			continue
		}
		revokedAt := at
		token.Revoked = true
		token.RevokedAt = &revokedAt
		r.tokens[id] = token
		revoked++
	}
	return revoked, nil
}

func (r *fakeTokenRepo) DeleteStale(_ context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return 0, r.failWith
	}

	var deleted int64
	for id, token := range r.tokens {
		expired := token.ExpiresAt.Before(expiredBefore)
		staleRevoked := token.Revoked && token.RevokedAt != nil && token.RevokedAt.Before(revokedBefore)
		if expired || staleRevoked {
			delete(r.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeTokenRepo) put(token domain.RefreshToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = token
}

func (r *fakeTokenRepo) get(t *testing.T, id string) domain.RefreshToken {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok {
		t.Fatalf("token %s not found in fake store", id)
	}
	return token
}

func (r *fakeTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

type fakeTxRunner struct {
	repos port.Repositories
	err   error
}

func (r *fakeTxRunner) InTx(_ context.Context, fn func(repos port.Repositories) error) error {
	if r.err != nil {
		return r.err
	}
	return fn(r.repos)
}

type fakeFamilyCache struct {
	mu        sync.Mutex
	revoked   map[string]string
	markErr   error
	checkErr  error
	markCalls int
}

func newFakeFamilyCache() *fakeFamilyCache {
	return &fakeFamilyCache{revoked: make(map[string]string)}
}

func (c *fakeFamilyCache) MarkFamilyRevoked(_ context.Context, familyID, reason string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markCalls++
	if c.markErr != nil {
		return c.markErr
	}
	c.revoked[familyID] = reason
	return nil
}

func (c *fakeFamilyCache) IsFamilyRevoked(_ context.Context, familyID string) (bool, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checkErr != nil {
		return false, "", c.checkErr
	}
	reason, ok := c.revoked[familyID]
	return ok, reason, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
	err    error
}

func (p *recordingPublisher) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) byType(eventType domain.EventType) []domain.SecurityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.SecurityEvent
	for _, event := range p.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (p *recordingPublisher) requireOne(t *testing.T, eventType domain.EventType) domain.SecurityEvent {
	t.Helper()
	matched := p.byType(eventType)
	if len(matched) != 1 {
		t.Fatalf("expected exactly one %s event, got %d", eventType, len(matched))
	}
	return matched[0]
}

const (
	testGrace            = 2 * time.Second
	testAccountRetention = 30 * 24 * time.Hour
	testRefreshTTL       = 7 * 24 * time.Hour
)

type kit struct {
	clock      *testClock
	accounts   *fakeAccountRepo
	tokens     *fakeTokenRepo
	cache      *fakeFamilyCache
	events     *recordingPublisher
	codec      *security.TokenCodec
	hasher     *security.PasswordHasher
	recorder   *SecurityRecorder
	revocation *RevocationService
	rotation   *RotationService
	auth       *AuthService
}

func newTestCodec(t *testing.T, now func() time.Time) *security.TokenCodec {
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

	provider, err := security.NewFileKeyProvider(dir)
	if err != nil {
		t.Fatalf("NewFileKeyProvider: %v", err)
	}

	codec, err := security.NewTokenCodec(provider, security.CodecOptions{
		Issuer:     "sessions-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: testRefreshTTL,
	})
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	return codec.WithClock(now)
}

func newKit(t *testing.T) *kit {
	t.Helper()

	clk := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	log := zaptest.NewLogger(t)

	accounts := newFakeAccountRepo()
	tokens := newFakeTokenRepo()
	repos := port.Repositories{Accounts: accounts, RefreshTokens: tokens}
	tx := &fakeTxRunner{repos: repos}

	events := &recordingPublisher{}
	recorder := NewSecurityRecorder(events, log).WithClock(clk.Now)

	cache := newFakeFamilyCache()
	revocation := NewRevocationService(tokens, recorder, log).
		WithFamilyCache(cache, time.Hour).
		WithClock(clk.Now)

	codec := newTestCodec(t, clk.Now)

	// Low-cost parameters keep Argon2 out of the test's critical path.
	hasher := security.NewPasswordHasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1})

	rotation := NewRotationService(tx, repos, codec, revocation, recorder, log, testGrace, testAccountRetention).
		WithClock(clk.Now)

	auth, err := NewAuthService(tx, repos, codec, hasher, security.DefaultPasswordValidator(), revocation, recorder, log, testAccountRetention)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	auth.WithClock(clk.Now)

	return &kit{
		clock:      clk,
		accounts:   accounts,
		tokens:     tokens,
		cache:      cache,
		events:     events,
		codec:      codec,
		hasher:     hasher,
		recorder:   recorder,
		revocation: revocation,
		rotation:   rotation,
		auth:       auth,
	}
}

func (k *kit) seedAccount(t *testing.T, id, email, password string) domain.Account {
	t.Helper()

	hash, err := k.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	account := domain.Account{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    k.clock.Now(),
	}
	k.accounts.put(account)
	return account
}

// seedToken stores a live refresh row and returns it with its signed form.
func (k *kit) seedToken(t *testing.T, id, ownerID, familyID string) (domain.RefreshToken, string) {
	t.Helper()

	now := k.clock.Now()
	token := domain.RefreshToken{
		ID:        id,
		OwnerID:   ownerID,
		FamilyID:  familyID,
		CreatedAt: now,
		ExpiresAt: now.Add(testRefreshTTL),
	}
	k.tokens.put(token)

	signed, err := k.codec.IssueRefresh(ownerID, token.ID, token.FamilyID, token.ExpiresAt)
	if err != nil {
		t.Fatalf("sign refresh token: %v", err)
	}
	return token, signed
}
