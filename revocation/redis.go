package revocation

import (
	"context"
	"errors"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces revocation keys.
const DefaultRedisPrefix = "gcrv"

// RedisStore records revoked jtis as keys that expire with the token.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a store using prefix for its keys. An empty prefix
// selects [DefaultRedisPrefix].
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("revocation: redis client is nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}, nil
}

// Record stores rec until rec.ExpiresAt. Records that are already expired
// are not written.
func (s *RedisStore) Record(ctx context.Context, rec goCred.RevocationRecord) error {
	if rec.JTI == "" {
		return errors.New("revocation: empty jti")
	}
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	// NX keeps the first record; a duplicate is not an error.
	return s.client.SetNX(ctx, s.key(rec.JTI), rec.PrincipalID, ttl).Err()
}

// Exists reports whether jti is revoked.
func (s *RedisStore) Exists(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) key(jti string) string {
	return s.prefix + ":" + jti
}
