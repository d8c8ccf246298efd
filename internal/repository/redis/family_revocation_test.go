package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(server.Close)

	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client, server
}

func TestFamilyRevocationStore_MarkAndCheck(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewFamilyRevocationStore(client, "sessions:family_revoked:test")

	familyID := "family-123"
	if err := store.MarkFamilyRevoked(context.Background(), familyID, "token_reuse", time.Minute); err != nil {
		t.Fatalf("MarkFamilyRevoked returned error: %v", err)
	}

	revoked, reason, err := store.IsFamilyRevoked(context.Background(), familyID)
	if err != nil {
		t.Fatalf("IsFamilyRevoked returned error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected family to be revoked")
	}
	if reason != "token_reuse" {
		t.Fatalf("expected reason token_reuse, got %s", reason)
	}
}

func TestFamilyRevocationStore_Miss(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewFamilyRevocationStore(client, "sessions:family_revoked:test")

	revoked, _, err := store.IsFamilyRevoked(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("IsFamilyRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected family to not be revoked")
	}
}

func TestFamilyRevocationStore_EntryExpires(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewFamilyRevocationStore(client, "sessions:family_revoked:test")

	if err := store.MarkFamilyRevoked(context.Background(), "family-1", "logout", time.Minute); err != nil {
		t.Fatalf("MarkFamilyRevoked returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	revoked, _, err := store.IsFamilyRevoked(context.Background(), "family-1")
	if err != nil {
		t.Fatalf("IsFamilyRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestFamilyRevocationStore_InvalidInput(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewFamilyRevocationStore(client, "sessions:family_revoked:test")

	if err := store.MarkFamilyRevoked(context.Background(), "", "reason", time.Minute); err == nil {
		t.Fatalf("expected error for empty family id")
	}
	if err := store.MarkFamilyRevoked(context.Background(), "family-1", "reason", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
	if _, _, err := store.IsFamilyRevoked(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty family id")
	}
}
