package goCred

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	env.seed(t, "a1", "admin@example.com", "Secret1", RoleAdmin)

	userPair := env.issue(t, "u1")
	if userPair.Scheme != LevelBearer {
		t.Fatalf("expected Bearer scheme for user, got %s", userPair.Scheme)
	}
	adminPair := env.issue(t, "a1")
	if adminPair.Scheme != LevelSystem {
		t.Fatalf("expected System scheme for admin, got %s", adminPair.Scheme)
	}

	res, err := env.engine.Verify(ctx, header(userPair, userPair.AccessToken), TokenAccess)
	if err != nil {
		t.Fatalf("Verify access failed: %v", err)
	}
	if res.PrincipalID() != "u1" || res.JTI() != userPair.JTI {
		t.Fatalf("unexpected result: id=%q jti=%q", res.PrincipalID(), res.JTI())
	}
	if res.Claims.IssuedAtMillis != env.clock.Now().UnixMilli() {
		t.Fatalf("expected iat_ms to be stamped, got %d", res.Claims.IssuedAtMillis)
	}

	if _, err := env.engine.Verify(ctx, header(userPair, userPair.RefreshToken), TokenRefresh); err != nil {
		t.Fatalf("Verify refresh failed: %v", err)
	}
	if _, err := env.engine.Verify(ctx, header(adminPair, adminPair.AccessToken), TokenAccess); err != nil {
		t.Fatalf("Verify admin access failed: %v", err)
	}

	if !userPair.AccessExpiresAt.Equal(env.clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("unexpected access expiry %v", userPair.AccessExpiresAt)
	}
}

func TestIssueRejectsDeletedPrincipal(t *testing.T) {
	env := newTestEnv(t)
	p := env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	p.DeletedAt = env.clock.Now()

	_, err := env.engine.Issue(context.Background(), p)
	expectErr(t, err, ErrPrincipalInactive)
}

func TestVerifyFailureOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")

	cases := []struct {
		name   string
		header string
		typ    TokenType
		want   error
		metric MetricID
	}{
		{"empty", "", TokenAccess, ErrUnauthenticated, MetricVerifyUnauthenticated},
		{"one part", "Bearer", TokenAccess, ErrUnauthenticated, MetricVerifyUnauthenticated},
		{"three parts", "Bearer a b", TokenAccess, ErrUnauthenticated, MetricVerifyUnauthenticated},
		{"unknown scheme", "Basic " + pair.AccessToken, TokenAccess, ErrInvalidToken, MetricVerifyBadScheme},
		{"garbage token", "Bearer not-a-jwt", TokenAccess, ErrInvalidToken, MetricVerifyMalformed},
		{"wrong level", "System " + pair.AccessToken, TokenAccess, ErrInvalidToken, MetricVerifyLevelMismatch},
		{"access as refresh", header(pair, pair.AccessToken), TokenRefresh, ErrInvalidToken, MetricVerifyBadSignature},
		{"refresh as access", header(pair, pair.RefreshToken), TokenAccess, ErrInvalidToken, MetricVerifyBadSignature},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := env.engine.metrics.Value(tc.metric)
			_, err := env.engine.Verify(ctx, tc.header, tc.typ)
			expectErr(t, err, tc.want)
			if got := env.engine.metrics.Value(tc.metric); got != before+1 {
				t.Fatalf("expected metric %d to increment, got %d -> %d", tc.metric, before, got)
			}
		})
	}
}

func TestVerifyPrincipalStates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")
	h := header(pair, pair.AccessToken)

	// Unknown subject.
	ghost := env.seed(t, "ghost", "ghost@example.com", "Secret1", RoleUser)
	ghostPair := env.issue(t, ghost.ID)
	env.store.mu.Lock()
	delete(env.store.byID, "ghost")
	env.store.mu.Unlock()
	_, err := env.engine.Verify(ctx, header(ghostPair, ghostPair.AccessToken), TokenAccess)
	expectErr(t, err, ErrPrincipalNotFound)

	// Role changed to admin after issue: Bearer no longer matches.
	p := env.store.get("u1")
	p.Role = RoleAdmin
	env.store.put(p)
	_, err = env.engine.Verify(ctx, h, TokenAccess)
	expectErr(t, err, ErrInvalidToken)

	// Soft deleted wins over the level mismatch.
	p.DeletedAt = env.clock.Now()
	env.store.put(p)
	_, err = env.engine.Verify(ctx, h, TokenAccess)
	expectErr(t, err, ErrPrincipalInactive)
}

func TestVerifyExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")

	env.clock.Advance(15*time.Minute + time.Second)
	_, err := env.engine.Verify(context.Background(), header(pair, pair.AccessToken), TokenAccess)
	expectErr(t, err, ErrInvalidToken)

	if _, err := env.engine.Verify(context.Background(), header(pair, pair.RefreshToken), TokenRefresh); err != nil {
		t.Fatalf("refresh token should outlive access token: %v", err)
	}
}

func TestRevocationOutlivesLeeway(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) { cfg.JWT.Leeway = time.Minute }))
	ctx := context.Background()
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")
	refresh := header(pair, pair.RefreshToken)

	res, err := env.engine.Verify(ctx, header(pair, pair.AccessToken), TokenAccess)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := env.engine.Logout(ctx, res, LogoutSignout); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// Past exp but inside the leeway the token still parses, so the record
	// must still be there.
	env.clock.Advance(7*24*time.Hour + 30*time.Second)
	_, err = env.engine.Refresh(ctx, refresh)
	expectErr(t, err, ErrTokenRevoked)

	env.clock.Advance(time.Minute)
	_, err = env.engine.Refresh(ctx, refresh)
	expectErr(t, err, ErrInvalidToken)
}

func TestRefreshRevocationOutlivesLeeway(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) { cfg.JWT.Leeway = 2 * time.Minute }))
	ctx := context.Background()
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")

	if _, err := env.engine.Refresh(ctx, header(pair, pair.RefreshToken)); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	rec := env.revoked.records[pair.JTI]
	want := pair.RefreshExpiresAt.Truncate(time.Second).Add(2 * time.Minute)
	if !rec.ExpiresAt.Equal(want) {
		t.Fatalf("expected record to last until exp+leeway %v, got %v", want, rec.ExpiresAt)
	}

	env.clock.Advance(7*24*time.Hour + time.Minute)
	_, err := env.engine.Refresh(ctx, header(pair, pair.RefreshToken))
	expectErr(t, err, ErrTokenRevoked)
}

func TestVerifyRevokedAndStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")
	h := header(pair, pair.AccessToken)

	// Equal watermark is not stale.
	p := env.store.get("u1")
	p.ChangeCredentialsAt = env.clock.Now()
	env.store.put(p)
	if _, err := env.engine.Verify(ctx, h, TokenAccess); err != nil {
		t.Fatalf("token issued at the watermark must verify: %v", err)
	}

	p.ChangeCredentialsAt = env.clock.Now().Add(time.Millisecond)
	env.store.put(p)
	_, err := env.engine.Verify(ctx, h, TokenAccess)
	expectErr(t, err, ErrTokenStale)

	// Revocation is checked before staleness.
	env.revoked.records[pair.JTI] = RevocationRecord{JTI: pair.JTI}
	_, err = env.engine.Verify(ctx, h, TokenAccess)
	expectErr(t, err, ErrTokenRevoked)
}

func TestVerifyFailsClosedOnBackendErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")
	h := header(pair, pair.AccessToken)

	env.revoked.err = errors.New("redis down")
	_, err := env.engine.Verify(ctx, h, TokenAccess)
	expectErr(t, err, ErrRevocationUnavailable)
	env.revoked.err = nil

	env.store.findErr = errors.New("db down")
	_, err = env.engine.Verify(ctx, h, TokenAccess)
	expectErr(t, err, ErrStoreUnavailable)
}

func TestVerifyDoesNotWrite(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Verify(context.Background(), header(pair, pair.AccessToken), TokenAccess); err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
	}
	if env.store.updateCall != 0 || len(env.revoked.records) != 0 {
		t.Fatal("Verify must not write")
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")

	env.clock.Advance(time.Second)
	next, err := env.engine.Refresh(ctx, header(pair, pair.RefreshToken))
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.JTI == pair.JTI {
		t.Fatal("expected a new jti")
	}
	rec, ok := env.revoked.records[pair.JTI]
	if !ok {
		t.Fatal("expected old jti to be revoked")
	}
	if !rec.ExpiresAt.Equal(pair.RefreshExpiresAt.Truncate(time.Second)) {
		t.Fatalf("expected revocation to last until refresh expiry, got %v", rec.ExpiresAt)
	}

	_, err = env.engine.Refresh(ctx, header(pair, pair.RefreshToken))
	expectErr(t, err, ErrTokenRevoked)
	_, err = env.engine.Verify(ctx, header(pair, pair.AccessToken), TokenAccess)
	expectErr(t, err, ErrTokenRevoked)

	if _, err := env.engine.Verify(ctx, header(next, next.AccessToken), TokenAccess); err != nil {
		t.Fatalf("new access token should verify: %v", err)
	}
}

func TestRefreshWithoutRotation(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.JWT.RevokeOnRefresh = false
	}))
	ctx := context.Background()
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Refresh(ctx, header(pair, pair.RefreshToken)); err != nil {
			t.Fatalf("Refresh %d failed: %v", i, err)
		}
	}
	if len(env.revoked.records) != 0 {
		t.Fatal("expected no revocations")
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")

	_, err := env.engine.Refresh(context.Background(), header(pair, pair.AccessToken))
	expectErr(t, err, ErrInvalidToken)
	if env.engine.metrics.Value(MetricRefreshFailure) != 1 {
		t.Fatal("expected refresh failure metric")
	}
}

func TestLogoutModes(t *testing.T) {
	ctx := context.Background()

	t.Run("signout", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
		pair := env.issue(t, "u1")
		res, err := env.engine.Verify(ctx, header(pair, pair.AccessToken), TokenAccess)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if err := env.engine.Logout(ctx, res, LogoutSignout); err != nil {
			t.Fatalf("Logout failed: %v", err)
		}
		rec := env.revoked.records[pair.JTI]
		if !rec.ExpiresAt.Equal(env.clock.Now().Truncate(time.Millisecond).Add(7 * 24 * time.Hour)) {
			t.Fatalf("expected expiry iat+RefreshTTL, got %v", rec.ExpiresAt)
		}
		_, err = env.engine.Verify(ctx, header(pair, pair.RefreshToken), TokenRefresh)
		expectErr(t, err, ErrTokenRevoked)
	})

	t.Run("everywhere", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
		first := env.issue(t, "u1")
		second := env.issue(t, "u1")
		res, err := env.engine.Verify(ctx, header(first, first.AccessToken), TokenAccess)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		env.clock.Advance(time.Millisecond)
		if err := env.engine.Logout(ctx, res, LogoutEverywhere); err != nil {
			t.Fatalf("Logout failed: %v", err)
		}
		_, err = env.engine.Verify(ctx, header(second, second.AccessToken), TokenAccess)
		expectErr(t, err, ErrTokenStale)

		fresh := env.issue(t, "u1")
		if _, err := env.engine.Verify(ctx, header(fresh, fresh.AccessToken), TokenAccess); err != nil {
			t.Fatalf("token issued after logout should verify: %v", err)
		}
	})

	t.Run("stay", func(t *testing.T) {
		env := newTestEnv(t)
		env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
		pair := env.issue(t, "u1")
		res, err := env.engine.Verify(ctx, header(pair, pair.AccessToken), TokenAccess)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if err := env.engine.Logout(ctx, res, LogoutStay); err != nil {
			t.Fatalf("Logout failed: %v", err)
		}
		if _, err := env.engine.Verify(ctx, header(pair, pair.AccessToken), TokenAccess); err != nil {
			t.Fatalf("token should stay valid: %v", err)
		}
	})

	t.Run("nil result", func(t *testing.T) {
		env := newTestEnv(t)
		expectErr(t, env.engine.Logout(ctx, nil, LogoutSignout), ErrUnauthenticated)
	})
}

func TestParseLogoutMode(t *testing.T) {
	cases := map[string]LogoutMode{
		"":           LogoutSignout,
		"signout":    LogoutSignout,
		"EVERYWHERE": LogoutEverywhere,
		" stay ":     LogoutStay,
	}
	for in, want := range cases {
		got, err := ParseLogoutMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseLogoutMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseLogoutMode("all"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestVerifyLatencyHistogram(t *testing.T) {
	env := newTestEnv(t, withConfig(func(cfg *Config) {
		cfg.Metrics.EnableLatencyHistograms = true
	}))
	env.seed(t, "u1", "user@example.com", "Secret1", RoleUser)
	pair := env.issue(t, "u1")
	if _, err := env.engine.Verify(context.Background(), header(pair, pair.AccessToken), TokenAccess); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	var total uint64
	for _, v := range snap.Histograms[MetricVerifyLatency] {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected one latency sample, got %d", total)
	}
}
