package goCred

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds engine tuning. Secrets are not part of Config; they are
// supplied through [Builder.WithSecrets].
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	OTP      OTPConfig
	Security SecurityConfig
	Audit    AuditConfig
	Notify   NotifyConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token lifetimes and claim validation.
type JWTConfig struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	// RevokeOnRefresh revokes the presented refresh token's jti when a new
	// pair is issued by Refresh.
	RevokeOnRefresh bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters and password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength   int
	HistorySize int
	// BcryptCost is used for OTP hashes and for verifying legacy bcrypt passwords.
	BcryptCost int
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls one-time code generation and throttling.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
	// ResetWindow bounds how long a confirmed reset capability stays usable.
	ResetWindow time.Duration

	MaxRequests        int
	RequestWindow      time.Duration
	MaxConfirmFailures int
	ConfirmWindow      time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls sign-in and sign-up throttling.
type SecurityConfig struct {
	EnableIPThrottle     bool
	MaxSignInAttempts    int
	SignInCooldown       time.Duration
	MaxSignUpAttempts    int
	SignUpCooldown       time.Duration
	RequireEmailConfirm  bool
	AllowFederatedSignUp bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// NotifyConfig bounds each hand-off to the [Notifier].
type NotifyConfig struct {
	Timeout time.Duration
}

// MetricsConfig toggles in-process counters and the verify latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      7 * 24 * time.Hour,
			Leeway:          0,
			MaxFutureIAT:    time.Minute,
			RevokeOnRefresh: true,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   6,
			HistorySize: 5,
			BcryptCost:  bcrypt.DefaultCost,
		},
		OTP: OTPConfig{
			Digits:             5,
			TTL:                15 * time.Minute,
			ResetWindow:        15 * time.Minute,
			MaxRequests:        3,
			RequestWindow:      15 * time.Minute,
			MaxConfirmFailures: 5,
			ConfirmWindow:      15 * time.Minute,
		},
		Security: SecurityConfig{
			EnableIPThrottle:     false,
			MaxSignInAttempts:    5,
			SignInCooldown:       15 * time.Minute,
			MaxSignUpAttempts:    5,
			SignUpCooldown:       15 * time.Minute,
			RequireEmailConfirm:  true,
			AllowFederatedSignUp: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 || c.JWT.MaxFutureIAT > 24*time.Hour {
		return errors.New("JWT MaxFutureIAT must be between 0 and 24h")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.HistorySize < 0 {
		return errors.New("Password HistorySize must be >= 0")
	}
	if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
		return errors.New("Password BcryptCost is out of range")
	}

	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.ResetWindow <= 0 {
		return errors.New("OTP ResetWindow must be > 0")
	}
	if c.OTP.MaxRequests < 0 || c.OTP.MaxConfirmFailures < 0 {
		return errors.New("OTP throttle limits must be >= 0")
	}
	if c.OTP.MaxRequests > 0 && c.OTP.RequestWindow <= 0 {
		return errors.New("OTP RequestWindow must be > 0 when MaxRequests is set")
	}
	if c.OTP.MaxConfirmFailures > 0 && c.OTP.ConfirmWindow <= 0 {
		return errors.New("OTP ConfirmWindow must be > 0 when MaxConfirmFailures is set")
	}

	// Security
	if c.Security.MaxSignInAttempts <= 0 {
		return errors.New("Security MaxSignInAttempts must be > 0")
	}
	if c.Security.SignInCooldown <= 0 {
		return errors.New("Security SignInCooldown must be > 0")
	}
	if c.Security.MaxSignUpAttempts < 0 {
		return errors.New("Security MaxSignUpAttempts must be >= 0")
	}
	if c.Security.MaxSignUpAttempts > 0 && c.Security.SignUpCooldown <= 0 {
		return errors.New("Security SignUpCooldown must be > 0 when MaxSignUpAttempts is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Notify.Timeout < 0 {
		return errors.New("Notify Timeout must be >= 0")
	}

	return nil
}
