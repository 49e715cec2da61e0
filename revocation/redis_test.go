package revocation

import (
	"context"
	"testing"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	require.NoError(t, err)
	return store, mr
}

func TestRedisStoreRecordAndExists(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Record(ctx, goCred.RevocationRecord{JTI: "j1", PrincipalID: "u1", ExpiresAt: time.Now().Add(time.Hour)}))
	ok, err = store.Exists(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl := mr.TTL("gcrv:j1")
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)

	// Duplicate keeps the first record.
	require.NoError(t, store.Record(ctx, goCred.RevocationRecord{JTI: "j1", PrincipalID: "other", ExpiresAt: time.Now().Add(time.Minute)}))
	got, err := mr.Get("gcrv:j1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got)

	mr.FastForward(2 * time.Hour)
	ok, err = store.Exists(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreSkipsExpired(t *testing.T) {
	store, mr := newRedisStore(t)

	require.NoError(t, store.Record(context.Background(), goCred.RevocationRecord{JTI: "old", ExpiresAt: time.Now().Add(-time.Second)}))
	assert.False(t, mr.Exists("gcrv:old"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Exists(context.Background(), "j1")
	assert.Error(t, err)
}

func TestNewRedisStoreNilClient(t *testing.T) {
	_, err := NewRedisStore(nil, "")
	assert.Error(t, err)
}
