package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the required AES-256 key length in bytes.
const KeySize = 32

var (
	// ErrKeySize is returned when the key is not 32 bytes.
	ErrKeySize = errors.New("fieldcrypt: key must be 32 bytes")
	// ErrMalformed is returned for ciphertext that does not parse.
	ErrMalformed = errors.New("fieldcrypt: malformed ciphertext")
)

// AES encrypts fields with AES-256-GCM.
type AES struct {
	aead cipher.AEAD
}

// NewAES builds a cipher from a raw 32-byte key.
func NewAES(key []byte) (*AES, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AES{aead: aead}, nil
}

// NewAESFromString accepts either a 64-character hex key or a raw
// 32-character key, the two forms ENCRYPTION_SECRET_KEY is found in.
func NewAESFromString(key string) (*AES, error) {
	if len(key) == KeySize*2 {
		if raw, err := hex.DecodeString(key); err == nil {
			return NewAES(raw)
		}
	}
	return NewAES([]byte(key))
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *AES) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed) + ":" + hex.EncodeToString(nonce), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *AES) Decrypt(encoded string) (string, error) {
	sealedHex, nonceHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", ErrMalformed
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrMalformed
	}
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: open: %w", err)
	}
	return string(plaintext), nil
}
