package security

import (
	"strings"
	"testing"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	hasher := NewPasswordHasher(Argon2Params{})

	encoded, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.Contains(encoded, ":") {
		t.Fatalf("expected salt:hash encoding, got %s", encoded)
	}

	ok, err := hasher.Verify("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected matching password to verify")
	}

	ok, err = hasher.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatched password to fail verification")
	}
}

func TestPasswordHasher_SaltsDiffer(t *testing.T) {
	hasher := NewPasswordHasher(Argon2Params{})

	first, err := hasher.Hash("same input")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same input")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct salts to produce distinct encodings")
	}
}

func TestPasswordHasher_MalformedEncoding(t *testing.T) {
	hasher := NewPasswordHasher(Argon2Params{})

	if _, err := hasher.Verify("password", "not-a-valid-hash"); err == nil {
		t.Fatalf("expected error for malformed encoding")
	}

	ok, err := hasher.Verify("", "salt:hash")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected empty password to fail verification")
	}
}
