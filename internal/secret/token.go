package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// MinTokenBytes keeps generated tokens at 128 bits of entropy or more.
const MinTokenBytes = 16

// GenerateToken returns n random bytes (at least MinTokenBytes) encoded as unpadded base64url.
func GenerateToken(n int) (string, error) {
	if n < MinTokenBytes {
		n = MinTokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("secret: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken is the lookup key for bearer-equivalent values stored server side.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
