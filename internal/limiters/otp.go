package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrOTPRateLimited is returned when an OTP request or confirm budget is spent.
	ErrOTPRateLimited = errors.New("otp rate limited")
	// ErrOTPRedisUnavailable wraps Redis failures.
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

// OTPPurpose separates the email-confirmation and password-reset namespaces.
type OTPPurpose string

const (
	PurposeConfirmEmail  OTPPurpose = "ce"
	PurposeResetPassword OTPPurpose = "rp"
)

// OTPConfig bounds how often codes can be issued and guessed per email.
type OTPConfig struct {
	MaxRequests        int
	RequestWindow      time.Duration
	MaxConfirmFailures int
	ConfirmWindow      time.Duration
}

// OTPLimiter counts OTP issues and failed confirmations.
type OTPLimiter struct {
	redis  redis.UniversalClient
	config OTPConfig
}

func NewOTPLimiter(redisClient redis.UniversalClient, cfg OTPConfig) *OTPLimiter {
	return &OTPLimiter{redis: redisClient, config: cfg}
}

// CheckRequest counts one issue attempt and fails once MaxRequests is exceeded.
func (l *OTPLimiter) CheckRequest(ctx context.Context, purpose OTPPurpose, email string) error {
	if l == nil || l.config.MaxRequests <= 0 {
		return nil
	}
	count, err := fixedWindowIncr(ctx, l.redis, otpRequestKey(purpose, email), l.config.RequestWindow)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if count > int64(l.config.MaxRequests) {
		return ErrOTPRateLimited
	}
	return nil
}

// CheckConfirm fails when too many wrong codes were submitted in the window.
func (l *OTPLimiter) CheckConfirm(ctx context.Context, purpose OTPPurpose, email string) error {
	if l == nil || l.config.MaxConfirmFailures <= 0 {
		return nil
	}
	count, err := l.redis.Get(ctx, otpConfirmKey(purpose, email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxConfirmFailures) {
		return ErrOTPRateLimited
	}
	return nil
}

// RecordConfirmFailure counts one wrong code.
func (l *OTPLimiter) RecordConfirmFailure(ctx context.Context, purpose OTPPurpose, email string) error {
	if l == nil || l.config.MaxConfirmFailures <= 0 {
		return nil
	}
	if _, err := fixedWindowIncr(ctx, l.redis, otpConfirmKey(purpose, email), l.config.ConfirmWindow); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// ResetConfirm clears the failure counter after a successful confirmation.
func (l *OTPLimiter) ResetConfirm(ctx context.Context, purpose OTPPurpose, email string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, otpConfirmKey(purpose, email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

func otpRequestKey(purpose OTPPurpose, email string) string {
	return "gcor:" + string(purpose) + ":" + email
}

func otpConfirmKey(purpose OTPPurpose, email string) string {
	return "gcoc:" + string(purpose) + ":" + email
}
