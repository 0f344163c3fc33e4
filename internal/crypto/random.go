package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// SessionIDBytes gives session identifiers 256 bits of entropy.
const SessionIDBytes = 32

// RandomToken returns n random bytes encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewSessionID generates a cryptographically secure session identifier.
func NewSessionID() (string, error) {
	return RandomToken(SessionIDBytes)
}
