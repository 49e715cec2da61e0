package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonPrefix = "$argon2id$"

	// DefaultMaxPasswordBytes caps input length when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

// Floors enforced on both configuration and stored hashes. A stored hash
// below them is treated as malformed rather than verified.
const (
	floorMemoryKB uint32 = 8 * 1024
	floorTime     uint32 = 1
	floorThreads  uint8  = 1
	floorSalt            = 16
	floorKey      uint32 = 16
)

var (
	// ErrEmptyInput is returned when asked to hash an empty string.
	ErrEmptyInput = errors.New("password must not be empty")
	// ErrInputTooLong is returned when input exceeds the configured byte cap.
	ErrInputTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned for a stored Argon2id hash that cannot be
	// decoded or whose parameters are below the enforced floors.
	ErrMalformedHash = errors.New("malformed argon2id hash")
)

// Config holds Argon2id cost parameters.
//
// MaxPasswordBytes bounds the work an attacker can force per request; zero
// selects DefaultMaxPasswordBytes.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

func (c Config) cost() cost {
	return cost{memory: c.Memory, time: c.Time, threads: c.Parallelism, keyLen: c.KeyLength}
}

// cost is the part of a hash that decides how expensive it was to compute.
type cost struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

// below reports whether c is cheaper than target in any dimension. A key
// length that differs either way also counts, since the digest changes.
func (c cost) below(target cost) bool {
	return c.memory < target.memory ||
		c.time < target.time ||
		c.threads < target.threads ||
		c.keyLen != target.keyLen
}

// storedHash is a decoded PHC string.
type storedHash struct {
	cost
	salt   []byte
	digest []byte
}

// Argon2 hashes and verifies passwords with Argon2id.
type Argon2 struct {
	config Config
	random io.Reader
}

// NewArgon2 validates cfg and returns a hasher.
//
// NewArgon2 may return an error when a cost parameter is below the enforced minimum.
// The returned hasher holds no mutable state and is safe for concurrent use.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg, random: rand.Reader}, nil
}

// Hash returns the PHC encoding of password under a fresh random salt.
// Input bytes are used as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyInput
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrInputTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(a.random, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	c := a.config.cost()
	return encodeHash(storedHash{cost: c, salt: salt, digest: derive(password, salt, c)}), nil
}

// Verify reports whether password matches encodedHash, recomputing with the
// parameters recorded in the hash. A wrong password is (false, nil).
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrInputTooLong
	}
	stored, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	computed := derive(password, stored.salt, stored.cost)
	return subtle.ConstantTimeCompare(computed, stored.digest) == 1, nil
}

// NeedsRehash reports whether encodedHash was computed more cheaply than the
// current configuration, so the sign-in path should replace it.
func (a *Argon2) NeedsRehash(encodedHash string) (bool, error) {
	stored, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	return stored.below(a.config.cost()), nil
}

func derive(password string, salt []byte, c cost) []byte {
	return argon2.IDKey([]byte(password), salt, c.time, c.memory, c.threads, c.keyLen)
}

// encodeHash writes $argon2id$v=19$m=..,t=..,p=..$salt$digest with unpadded
// standard base64, the form other Argon2 libraries read.
func encodeHash(h storedHash) string {
	var b strings.Builder
	b.WriteString(argonPrefix)
	b.WriteString("v=")
	b.WriteString(strconv.Itoa(argon2.Version))
	fmt.Fprintf(&b, "$m=%d,t=%d,p=%d$", h.memory, h.time, h.threads)
	b.WriteString(base64.RawStdEncoding.EncodeToString(h.salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(h.digest))
	return b.String()
}

func decodeHash(encoded string) (storedHash, error) {
	var h storedHash

	rest, ok := strings.CutPrefix(encoded, argonPrefix)
	if !ok {
		return h, fmt.Errorf("%w: not argon2id", ErrMalformedHash)
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return h, fmt.Errorf("%w: want 4 fields after the prefix, got %d", ErrMalformedHash, len(fields))
	}

	version, ok := strings.CutPrefix(fields[0], "v=")
	if !ok || version != strconv.Itoa(argon2.Version) {
		return h, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[0])
	}

	if err := h.parseCost(fields[1]); err != nil {
		return h, err
	}

	var err error
	if h.salt, err = decodeB64(fields[2]); err != nil || len(h.salt) < floorSalt {
		return h, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if h.digest, err = decodeB64(fields[3]); err != nil || len(h.digest) == 0 {
		return h, fmt.Errorf("%w: bad digest", ErrMalformedHash)
	}
	h.keyLen = uint32(len(h.digest))
	return h, nil
}

// decodeB64 accepts padded and unpadded input; hashes written before the
// switch to raw encoding carry padding.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// parseCost reads "m=<kib>,t=<passes>,p=<threads>" in that order.
func (h *storedHash) parseCost(field string) error {
	var threads uint32
	targets := []struct {
		key   string
		dst   *uint32
		floor uint32
		bits  int
	}{
		{"m", &h.memory, floorMemoryKB, 32},
		{"t", &h.time, floorTime, 32},
		{"p", &threads, uint32(floorThreads), 8},
	}

	parts := strings.Split(field, ",")
	if len(parts) != len(targets) {
		return fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, field)
	}
	for i, part := range parts {
		t := targets[i]
		raw, ok := strings.CutPrefix(part, t.key+"=")
		if !ok {
			return fmt.Errorf("%w: expected %s= in %q", ErrMalformedHash, t.key, field)
		}
		v, err := strconv.ParseUint(raw, 10, t.bits)
		if err != nil || uint32(v) < t.floor {
			return fmt.Errorf("%w: bad %s parameter", ErrMalformedHash, t.key)
		}
		*t.dst = uint32(v)
	}
	h.threads = uint8(threads)
	return nil
}

func (c Config) validate() error {
	switch {
	case c.Memory < floorMemoryKB:
		return fmt.Errorf("password memory must be >= %d KiB", floorMemoryKB)
	case c.Time < floorTime:
		return fmt.Errorf("password time must be >= %d", floorTime)
	case c.Parallelism < floorThreads:
		return fmt.Errorf("password parallelism must be >= %d", floorThreads)
	case c.SaltLength < floorSalt:
		return fmt.Errorf("password salt length must be >= %d", floorSalt)
	case c.KeyLength < floorKey:
		return fmt.Errorf("password key length must be >= %d", floorKey)
	}
	return nil
}
