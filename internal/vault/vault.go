// Package vault seals and opens message bodies at rest.
//
// Open fails closed: any decoding or authentication error yields an empty
// string so a single undecryptable message never aborts a history load.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals plaintext for storage and opens sealed text on read.
type Cipher interface {
	Seal(plain string) (string, error)
	Open(sealed string) string
}

// Box is a ChaCha20-Poly1305 cipher with a random nonce prefixed to every
// sealed value.
type Box struct {
	key []byte
}

// NewBox builds a Box from a hex-encoded 32-byte key.
func NewBox(hexKey string) (*Box, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode vault key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Box{key: key}, nil
}

// Seal encrypts plain and returns base64(nonce || ciphertext).
func (b *Box) Seal(plain string) (string, error) {
	aead, err := chacha20poly1305.New(b.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Any failure returns the empty string.
func (b *Box) Open(sealed string) string {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return ""
	}
	aead, err := chacha20poly1305.New(b.key)
	if err != nil {
		return ""
	}
	if len(raw) < aead.NonceSize() {
		return ""
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return ""
	}
	return string(plain)
}

// Noop passes values through unchanged. Used for unencrypted deployments
// and tests.
type Noop struct{}

// Seal returns plain unchanged.
func (Noop) Seal(plain string) (string, error) { return plain, nil }

// Open returns sealed unchanged.
func (Noop) Open(sealed string) string { return sealed }
