// Package reviewtoken issues and verifies the bearer tokens handed to external
// grant reviewers. Tokens are opaque random strings; only their HMAC-SHA256
// digest under a server-held secret is ever persisted.
package reviewtoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// TokenBytes is the entropy of a generated token.
	TokenBytes = 24
	// MinTokenLength is the shortest presented token worth a lookup.
	MinTokenLength = 10
)

// ErrSecretMissing is returned when no signing secret is configured.
var ErrSecretMissing = errors.New("review token secret is not configured")

// randReader is swapped in tests.
var randReader io.Reader = rand.Reader

// Hasher derives lookup keys from review tokens.
// It is safe for concurrent use.
type Hasher struct {
	secret []byte
}

// NewHasher returns a Hasher keyed by secret. A blank secret is a
// misconfiguration and yields ErrSecretMissing.
func NewHasher(secret string) (*Hasher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretMissing
	}
	return &Hasher{secret: []byte(secret)}, nil
}

// Hash returns hex(HMAC-SHA256(secret, token)).
func (h *Hasher) Hash(token string) string {
	mac := hmac.New(sha256.New, h.secret)
	_, _ = mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Generate returns a new URL-safe token with TokenBytes of entropy.
func Generate() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidSyntax is the cheap pre-filter applied before any hashing or lookup.
func ValidSyntax(token string) bool {
	return len(token) >= MinTokenLength
}
