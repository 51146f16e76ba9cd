package session

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// Generator produces a new session id.
type Generator func() string

// Verifier reports whether an externally supplied id is well formed.
// Ids failing verification never reach the storage backend.
type Verifier func(id string) bool

const tokenBytes = 32

// TokenLength is the length of ids produced by TokenGenerator.
var TokenLength = base64.RawURLEncoding.EncodedLen(tokenBytes)

// TokenGenerator creates a cryptographically secure id from 32 random bytes
// encoded as base64 URL-safe string without padding.
func TokenGenerator() string {
	b := make([]byte, tokenBytes)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// TokenVerifier accepts ids shaped like TokenGenerator output.
func TokenVerifier(id string) bool {
	if len(id) != TokenLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// UUIDGenerator creates random (v4) UUID ids.
func UUIDGenerator() string {
	return uuid.NewString()
}

// UUIDVerifier accepts canonical UUID strings.
func UUIDVerifier(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
