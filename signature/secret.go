package signature

import (
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// 88 random bytes come out as 120 base64 characters, comfortably inside
	// the [MinSecretLen, MaxSecretLen] window.
	secretEntropyBytes = 88

	MinSecretLen = 64
	MaxSecretLen = 128
)

// NewSecret issues the signing secret for a fresh account: 88 bytes from the
// given entropy source, std base64 encoded. The source must be a CSPRNG
// (crypto/rand.Reader in production); it is a parameter so tests can fail it
// on purpose.
func NewSecret(entropy io.Reader) (string, error) {
	buf := make([]byte, secretEntropyBytes)
	if _, err := io.ReadFull(entropy, buf); err != nil {
		return "", fmt.Errorf("signature: unable to read entropy for new secret, cause %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// ValidSecret reports whether the encoded secret length falls inside the
// accepted window.
func ValidSecret(secret string) bool {
	return len(secret) >= MinSecretLen && len(secret) <= MaxSecretLen
}
