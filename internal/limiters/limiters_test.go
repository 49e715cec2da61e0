package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestOTPRequestWindow(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := NewOTPLimiter(rdb, OTPConfig{MaxRequests: 3, RequestWindow: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckRequest(ctx, PurposeResetPassword, "a@example.com"); err != nil {
			t.Fatalf("request %d unexpectedly limited: %v", i, err)
		}
	}
	if err := l.CheckRequest(ctx, PurposeResetPassword, "a@example.com"); !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited, got %v", err)
	}
	if err := l.CheckRequest(ctx, PurposeConfirmEmail, "a@example.com"); err != nil {
		t.Fatalf("other purpose should have its own budget: %v", err)
	}

	mr.FastForward(16 * time.Minute)
	if err := l.CheckRequest(ctx, PurposeResetPassword, "a@example.com"); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestOTPConfirmFailures(t *testing.T) {
	rdb, _ := newTestRedis(t)
	l := NewOTPLimiter(rdb, OTPConfig{MaxConfirmFailures: 2, ConfirmWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckConfirm(ctx, PurposeConfirmEmail, "a@example.com"); err != nil {
			t.Fatalf("confirm %d unexpectedly limited: %v", i, err)
		}
		if err := l.RecordConfirmFailure(ctx, PurposeConfirmEmail, "a@example.com"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := l.CheckConfirm(ctx, PurposeConfirmEmail, "a@example.com"); !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited, got %v", err)
	}
	if err := l.ResetConfirm(ctx, PurposeConfirmEmail, "a@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckConfirm(ctx, PurposeConfirmEmail, "a@example.com"); err != nil {
		t.Fatalf("expected reset to clear failures: %v", err)
	}
}

func TestAccountCreationLimiter(t *testing.T) {
	rdb, _ := newTestRedis(t)
	l := NewAccountCreationLimiter(rdb, AccountConfig{EnableIPThrottle: true, MaxAttempts: 2, Cooldown: time.Minute})
	ctx := context.Background()

	if err := l.Enforce(ctx, "a@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("first sign-up limited: %v", err)
	}
	if err := l.Enforce(ctx, "b@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("second sign-up limited: %v", err)
	}
	if err := l.Enforce(ctx, "c@example.com", "10.0.0.1"); !errors.Is(err, ErrAccountRateLimited) {
		t.Fatalf("expected ErrAccountRateLimited, got %v", err)
	}
}

func TestNilLimitersAllow(t *testing.T) {
	var otp *OTPLimiter
	var acct *AccountCreationLimiter
	ctx := context.Background()
	if err := otp.CheckRequest(ctx, PurposeConfirmEmail, "a"); err != nil {
		t.Fatalf("nil otp limiter: %v", err)
	}
	if err := acct.Enforce(ctx, "a", "ip"); err != nil {
		t.Fatalf("nil account limiter: %v", err)
	}
}

func TestRedisFailureIsWrapped(t *testing.T) {
	rdb, mr := newTestRedis(t)
	l := NewOTPLimiter(rdb, OTPConfig{MaxRequests: 1, RequestWindow: time.Minute})
	mr.Close()
	if err := l.CheckRequest(context.Background(), PurposeConfirmEmail, "a"); !errors.Is(err, ErrOTPRedisUnavailable) {
		t.Fatalf("expected ErrOTPRedisUnavailable, got %v", err)
	}
}
