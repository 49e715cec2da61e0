package fieldcrypt

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

// ErrNoIdentity is returned by Decrypt on an encrypt-only Age cipher.
var ErrNoIdentity = errors.New("fieldcrypt: no age identity configured")

// Age encrypts fields to an X25519 recipient. Output is standard base64.
type Age struct {
	recipient *age.X25519Recipient
	identity  *age.X25519Identity
}

// NewAge parses an age1... recipient and an optional AGE-SECRET-KEY-1...
// identity. With an empty identity the cipher can only encrypt.
func NewAge(recipient, identity string) (*Age, error) {
	r, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return nil, fmt.Errorf("parsing recipient: %w", err)
	}
	c := &Age{recipient: r}
	if identity == "" {
		return c, nil
	}
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	if id.Recipient().String() != r.String() {
		return nil, errors.New("identity does not match recipient")
	}
	c.identity = id
	return c, nil
}

// GenerateAgeKeys returns a fresh recipient and identity pair.
func GenerateAgeKeys() (recipient, identity string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generating age keypair: %w", err)
	}
	return id.Recipient().String(), id.String(), nil
}

// Encrypt seals plaintext to the recipient.
func (c *Age) Encrypt(plaintext string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, c.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Age) Decrypt(encoded string) (string, error) {
	if c.identity == nil {
		return "", ErrNoIdentity
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), c.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading plaintext: %w", err)
	}
	return string(plaintext), nil
}
