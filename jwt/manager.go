package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when a token cannot be decoded.
	ErrMalformed = errors.New("jwt: malformed token")
	// ErrMissingKey is returned when Sign or Parse is called with an empty key.
	ErrMissingKey = errors.New("jwt: missing key")
)

// Config controls claim validation for a Manager.
type Config struct {
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Manager signs and parses tokens. It is immutable and safe for concurrent use.
type Manager struct {
	config Config
	parser *jwt.Parser
}

// Claims carried by both access and refresh tokens.
type Claims struct {
	SignatureLevel string `json:"signatureLevel"`
	IssuedAtMillis int64  `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// IssuedAtTime returns the most precise issued-at the token carries.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAtMillis > 0 {
		return time.UnixMilli(c.IssuedAtMillis)
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// IssuedBefore reports whether the token was minted before t, compared at the
// precision the token records. A token without an issued-at is always before.
func (c *Claims) IssuedBefore(t time.Time) bool {
	if c.IssuedAtMillis > 0 {
		return t.UnixMilli() > c.IssuedAtMillis
	}
	if c.IssuedAt != nil {
		return t.Unix() > c.IssuedAt.Unix()
	}
	return true
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}

	return &Manager{config: cfg, parser: jwt.NewParser(options...)}, nil
}

// Sign stamps issuer, audience, iat and exp onto claims and signs them with key.
// The caller supplies subject, jti and signature level.
func (m *Manager) Sign(claims Claims, key []byte, ttl time.Duration) (string, error) {
	if len(key) == 0 {
		return "", ErrMissingKey
	}
	if ttl <= 0 {
		return "", errors.New("invalid TTL")
	}
	now := m.config.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.IssuedAtMillis = now.UnixMilli()
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Parse verifies signature and registered claims with key.
func (m *Manager) Parse(tokenStr string, key []byte) (*Claims, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	token, err := m.parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.IssuedAt == nil {
		return nil, errors.New("missing iat")
	}
	if claims.IssuedAtTime().After(m.config.Now().Add(m.config.MaxFutureIAT)) {
		return nil, errors.New("iat too far in future")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("missing subject")
	}

	return claims, nil
}

// DecodeUnverified reads the claims without checking the signature.
func (m *Manager) DecodeUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return claims, nil
}
