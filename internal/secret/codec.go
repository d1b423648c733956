// Package secret holds the process-wide symmetric key used to seal OAuth tokens
// at rest, plus random token and password hashing helpers.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	keySize       = 32
	versionPrefix = "v1."
)

var (
	// ErrInvalidCiphertext is returned for malformed input or a failed authentication tag.
	ErrInvalidCiphertext = errors.New("secret: invalid ciphertext")
	// ErrInvalidKey is returned when the configured key is not 32 bytes.
	ErrInvalidKey = errors.New("secret: key must be 32 bytes (64 hex chars or base64)")
	// ErrMissingKey is returned when no key is configured and ephemeral keys are not allowed.
	ErrMissingKey = errors.New("secret: encryption key is not configured")
)

// Codec seals and opens short secrets with AES-256-GCM.
type Codec struct {
	aead      cipher.AEAD
	ephemeral bool
}

// NewCodec builds a codec around a raw 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: new gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// LoadCodec parses an operator-supplied key (hex or base64). With an empty key
// and allowEphemeral set, a random key is generated and a warning is logged:
// anything sealed with it becomes unreadable after a restart.
func LoadCodec(raw string, allowEphemeral bool, log *zap.Logger) (*Codec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if !allowEphemeral {
			return nil, ErrMissingKey
		}
		key := make([]byte, keySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("secret: generate key: %w", err)
		}
		if log != nil {
			log.Warn("encryption key not configured; using an ephemeral key, stored OAuth tokens will be unreadable after restart",
				zap.String("env", "QMARK_ENCRYPTION_KEY"))
		}
		c, err := NewCodec(key)
		if err != nil {
			return nil, err
		}
		c.ephemeral = true
		return c, nil
	}
	key, err := ParseKey(raw)
	if err != nil {
		return nil, err
	}
	return NewCodec(key)
}

// ParseKey accepts 64 hex characters or standard/url base64 of 32 bytes.
func ParseKey(raw string) ([]byte, error) {
	if len(raw) == hex.EncodedLen(keySize) {
		if b, err := hex.DecodeString(raw); err == nil {
			return b, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(raw); err == nil && len(b) == keySize {
			return b, nil
		}
	}
	return nil, ErrInvalidKey
}

// Ephemeral reports whether the key was generated at startup.
func (c *Codec) Ephemeral() bool { return c.ephemeral }

// Encrypt seals plaintext under a fresh random nonce. Output is
// "v1." + base64url(nonce || ciphertext || tag).
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secret: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return versionPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. It never returns partial plaintext.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	body, ok := strings.CutPrefix(ciphertext, versionPrefix)
	if !ok {
		return "", ErrInvalidCiphertext
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}
