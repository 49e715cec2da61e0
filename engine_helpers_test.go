package goCred

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goCred/password"
	"github.com/MrEthical07/goCred/secret"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	// Half a millisecond past the second, so iat_ms truncation is exercised.
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, int(500*time.Microsecond), time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockPrincipalStore struct {
	mu         sync.Mutex
	byID       map[string]Principal
	findErr    error
	updateErr  error
	createErr  error
	beforeCAS  func(p *Principal)
	updateCall int
}

func newMockPrincipalStore() *mockPrincipalStore {
	return &mockPrincipalStore{byID: map[string]Principal{}}
}

func (m *mockPrincipalStore) put(p Principal) {
	m.mu.Lock()
	m.byID[p.ID] = p.Clone()
	m.mu.Unlock()
}

func (m *mockPrincipalStore) get(id string) Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Clone()
}

func (m *mockPrincipalStore) FindByID(_ context.Context, id string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return Principal{}, m.findErr
	}
	p, ok := m.byID[id]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return p.Clone(), nil
}

func (m *mockPrincipalStore) FindByEmail(_ context.Context, email string) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return Principal{}, m.findErr
	}
	for _, p := range m.byID {
		if p.Email == email {
			return p.Clone(), nil
		}
	}
	return Principal{}, ErrPrincipalNotFound
}

func (m *mockPrincipalStore) Create(_ context.Context, p Principal) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return Principal{}, m.createErr
	}
	for _, existing := range m.byID {
		if existing.Email == p.Email {
			return Principal{}, ErrPrincipalExists
		}
	}
	m.byID[p.ID] = p.Clone()
	return p.Clone(), nil
}

func (m *mockPrincipalStore) UpdateFields(_ context.Context, id string, cond Condition, patch Patch) (Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCall++
	if m.updateErr != nil {
		return Principal{}, m.updateErr
	}
	p, ok := m.byID[id]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	if m.beforeCAS != nil {
		m.beforeCAS(&p)
		m.byID[id] = p
	}
	if !p.Satisfies(cond) {
		return Principal{}, ErrPrincipalConflict
	}
	next := p.Apply(patch)
	m.byID[id] = next
	return next.Clone(), nil
}

// mockRevocationStore drops records once now passes their ExpiresAt, the
// way a Redis TTL would. Records without an expiry never lapse.
type mockRevocationStore struct {
	mu      sync.Mutex
	records map[string]RevocationRecord
	err     error
	now     func() time.Time
}

func newMockRevocationStore() *mockRevocationStore {
	return &mockRevocationStore{records: map[string]RevocationRecord{}}
}

func (m *mockRevocationStore) Record(_ context.Context, rec RevocationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.records[rec.JTI]; !ok {
		m.records[rec.JTI] = rec
	}
	return nil
}

func (m *mockRevocationStore) Exists(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	rec, ok := m.records[jti]
	if !ok {
		return false, nil
	}
	if m.now != nil && !rec.ExpiresAt.IsZero() && !m.now().Before(rec.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *captureNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *captureNotifier) last(t *testing.T) Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("expected a notification")
	}
	return n.sent[len(n.sent)-1]
}

type stubFederated struct {
	identity FederatedIdentity
	err      error
}

func (s stubFederated) VerifyIDToken(context.Context, string) (FederatedIdentity, error) {
	return s.identity, s.err
}

type testEnv struct {
	engine  *Engine
	store   *mockPrincipalStore
	revoked *mockRevocationStore
	notes   *captureNotifier
	clock   *testClock
	redis   *miniredis.Miniredis
}

type envOption func(b *Builder, cfg *Config)

func withRedis(mr *miniredis.Miniredis) envOption {
	return func(b *Builder, _ *Config) {
		b.WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	}
}

func withConfig(mutate func(cfg *Config)) envOption {
	return func(_ *Builder, cfg *Config) {
		mutate(cfg)
	}
}

func withBuilder(mutate func(b *Builder)) envOption {
	return func(b *Builder, _ *Config) {
		mutate(b)
	}
}

func testSecrets(t testing.TB) *secret.Resolver {
	t.Helper()
	r, err := secret.New(map[secret.Level]secret.Pair{
		secret.LevelBearer: {Access: "bearer-access-secret", Refresh: "bearer-refresh-secret"},
		secret.LevelSystem: {Access: "system-access-secret", Refresh: "system-refresh-secret"},
	})
	if err != nil {
		t.Fatalf("secret.New failed: %v", err)
	}
	return r
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t testing.TB, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		store:   newMockPrincipalStore(),
		revoked: newMockRevocationStore(),
		notes:   &captureNotifier{},
		clock:   newTestClock(),
	}
	env.revoked.now = env.clock.Now

	cfg := testConfig()
	b := New().
		WithSecrets(testSecrets(t)).
		WithPrincipalStore(env.store).
		WithRevocationStore(env.revoked).
		WithNotifier(env.notes).
		WithClock(env.clock.Now).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, opt := range opts {
		opt(b, &cfg)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// seed stores a confirmed local principal with the given password.
func (env *testEnv) seed(t testing.TB, id, email, plain string, role Role) Principal {
	t.Helper()
	hash, err := env.engine.passwords.Hash(plain)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	now := env.clock.Now()
	p := Principal{
		ID:               id,
		Email:            email,
		Role:             role,
		Provider:         ProviderSystem,
		PasswordHash:     hash,
		PasswordHistory:  []string{hash},
		IsEmailConfirmed: true,
		EmailConfirmedAt: now,
		CreatedAt:        now,
	}
	env.store.put(p)
	return p
}

func (env *testEnv) issue(t testing.TB, id string) TokenPair {
	t.Helper()
	pair, err := env.engine.Issue(context.Background(), env.store.get(id))
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return pair
}

func header(pair TokenPair, token string) string {
	return string(pair.Scheme) + " " + token
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func newLegacyHash(t *testing.T, plain string) string {
	t.Helper()
	b, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	hash, err := b.Hash(plain)
	if err != nil {
		t.Fatalf("bcrypt Hash failed: %v", err)
	}
	return hash
}
