package password

import (
	"errors"
	"strings"
)

// ErrUnsupportedHash is returned for a hash in an unknown encoding.
var ErrUnsupportedHash = errors.New("unsupported hash format")

// Hasher writes new password hashes with Argon2id and verifies both
// Argon2id and bcrypt encodings.
type Hasher struct {
	argon  *Argon2
	bcrypt *Bcrypt
}

// NewHasher combines a primary Argon2id hasher with a bcrypt verifier.
// legacy may be nil when no bcrypt hashes are expected.
func NewHasher(primary *Argon2, legacy *Bcrypt) (*Hasher, error) {
	if primary == nil {
		return nil, errors.New("argon2 hasher required")
	}
	return &Hasher{argon: primary, bcrypt: legacy}, nil
}

// Hash always produces an Argon2id hash.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify dispatches on the hash prefix.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, argonPrefix):
		return h.argon.Verify(password, encodedHash)
	case isBcrypt(encodedHash):
		if h.bcrypt == nil {
			return false, ErrUnsupportedHash
		}
		return h.bcrypt.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh
// Argon2id hash on the next successful verification.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	stale, err := h.argon.NeedsRehash(encodedHash)
	return err != nil || stale
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
