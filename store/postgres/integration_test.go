//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/revocation"
	"github.com/MrEthical07/goCred/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) (*pgxpool.Pool, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("gocred"),
		tcpostgres.WithUsername("gocred"),
		tcpostgres.WithPassword("gocred"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, postgres.Migrate(ctx, sqlDB))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, sqlDB
}

func TestIntegrationPrincipalLifecycle(t *testing.T) {
	pool, sqlDB := setupPostgres(t)
	ctx := context.Background()
	s := postgres.New(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	p := goCred.Principal{
		ID:              "user-1",
		Email:           "a@example.com",
		Role:            goCred.RoleUser,
		Provider:        goCred.ProviderSystem,
		PasswordHash:    "$argon2id$h0",
		PasswordHistory: []string{"$argon2id$h0"},
		ConfirmEmailOTP: goCred.OTP{Hash: "$2a$otp", ExpiresAt: now.Add(15 * time.Minute)},
		CreatedAt:       now,
	}
	_, err := s.Create(ctx, p)
	require.NoError(t, err)

	_, err = s.Create(ctx, goCred.Principal{ID: "user-2", Email: "a@example.com", Role: goCred.RoleUser, Provider: goCred.ProviderSystem})
	assert.ErrorIs(t, err, goCred.ErrPrincipalExists)

	got, err := s.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ConfirmEmailOTP.Hash, got.ConfirmEmailOTP.Hash)
	assert.True(t, got.ConfirmEmailOTP.ExpiresAt.Equal(p.ConfirmEmailOTP.ExpiresAt))

	confirmed := true
	_, err = s.UpdateFields(ctx, "user-1",
		goCred.Condition{ConfirmEmailOTPHash: "$2a$wrong"},
		goCred.Patch{IsEmailConfirmed: &confirmed, ConfirmEmailOTP: &goCred.OTP{}},
	)
	assert.ErrorIs(t, err, goCred.ErrPrincipalConflict)

	got, err = s.UpdateFields(ctx, "user-1",
		goCred.Condition{ConfirmEmailOTPHash: "$2a$otp", EmailUnconfirmed: true},
		goCred.Patch{IsEmailConfirmed: &confirmed, ConfirmEmailOTP: &goCred.OTP{}},
	)
	require.NoError(t, err)
	assert.True(t, got.IsEmailConfirmed)
	assert.False(t, got.ConfirmEmailOTP.Present())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			current := "$argon2id$h0"
			next := "$argon2id$h" + string(rune('a'+i))
			if _, err := s.UpdateFields(ctx, "user-1",
				goCred.Condition{NotDeleted: true, PasswordHash: &current},
				goCred.Patch{PasswordHash: &next},
			); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	revs := revocation.NewSQLStore(sqlDB)
	require.NoError(t, revs.Record(ctx, goCred.RevocationRecord{JTI: "jti-1", PrincipalID: "user-1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, revs.Record(ctx, goCred.RevocationRecord{JTI: "jti-1", PrincipalID: "user-1", ExpiresAt: now.Add(time.Hour)}))
	exists, err := revs.Exists(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, exists)
}
