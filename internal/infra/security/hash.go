package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params tunes the password hashing cost. Zero fields fall back to defaults.
type Argon2Params struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

const (
	defaultArgonTime    uint32 = 3
	defaultArgonMemory  uint32 = 64 * 1024
	defaultArgonThreads uint8  = 4
	defaultArgonSaltLen uint32 = 16
	defaultArgonKeyLen  uint32 = 32
)

// PasswordHasher produces and verifies Argon2id password hashes encoded as
// "salt:hash" with both components base64-encoded.
type PasswordHasher struct {
	params Argon2Params
}

// NewPasswordHasher constructs a hasher with the supplied parameters.
func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	if params.Time == 0 {
		params.Time = defaultArgonTime
	}
	if params.Memory == 0 {
		params.Memory = defaultArgonMemory
	}
	if params.Threads == 0 {
		params.Threads = defaultArgonThreads
	}
	if params.SaltLength == 0 {
		params.SaltLength = defaultArgonSaltLen
	}
	if params.KeyLength == 0 {
		params.KeyLength = defaultArgonKeyLen
	}
	return &PasswordHasher{params: params}
}

// Hash generates an Argon2id hash for the provided password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLength)
	encodedSalt := base64.StdEncoding.EncodeToString(salt)
	encodedHash := base64.StdEncoding.EncodeToString(hash)

	return fmt.Sprintf("%s:%s", encodedSalt, encodedHash), nil
}

// Verify compares the provided password against a stored hash in constant time.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	parts := strings.Split(encoded, ":")
	if len(parts) != 2 {
		return false, fmt.Errorf("invalid password hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}

	storedHash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	computed := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, uint32(len(storedHash)))

	if subtle.ConstantTimeCompare(computed, storedHash) == 1 {
		return true, nil
	}

	return false, nil
}
