package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAccountRateLimited      = errors.New("account rate limited")
	ErrAccountRedisUnavailable = errors.New("account redis unavailable")
)

type AccountConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	MaxAttempts              int
	Cooldown                 time.Duration
}

// AccountCreationLimiter throttles sign-ups per email and per client IP.
type AccountCreationLimiter struct {
	redis  redis.UniversalClient
	config AccountConfig
}

func NewAccountCreationLimiter(redisClient redis.UniversalClient, cfg AccountConfig) *AccountCreationLimiter {
	return &AccountCreationLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *AccountCreationLimiter) Enforce(ctx context.Context, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableIdentifierThrottle {
		if err := l.enforceKey(ctx, accountIdentifierKey(identifier)); err != nil {
			return err
		}
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceKey(ctx, accountIPKey(ip)); err != nil {
			return err
		}
	}

	return nil
}

func (l *AccountCreationLimiter) enforceKey(ctx context.Context, key string) error {
	count, err := fixedWindowIncr(ctx, l.redis, key, l.config.Cooldown)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccountRedisUnavailable, err)
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrAccountRateLimited
	}

	return nil
}

func accountIdentifierKey(identifier string) string {
	return "gcsu:" + identifier
}

func accountIPKey(ip string) string {
	return "gcsuip:" + ip
}

func fixedWindowIncr(ctx context.Context, rdb redis.UniversalClient, key string, window time.Duration) (int64, error) {
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}
