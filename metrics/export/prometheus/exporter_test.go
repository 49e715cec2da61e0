package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/revocation"
	"github.com/MrEthical07/goCred/secret"
	"github.com/MrEthical07/goCred/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeSource struct {
	snapshot goCred.MetricsSnapshot
	audit    goCred.AuditStats
}

func (f fakeSource) MetricsSnapshot() goCred.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditStats() goCred.AuditStats          { return f.audit }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goCred.MetricsSnapshot{
			Counters:   map[goCred.MetricID]uint64{},
			Histograms: map[goCred.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goCred.MetricsSnapshot{
			Counters: map[goCred.MetricID]uint64{
				goCred.MetricSignInSuccess: 7,
				goCred.MetricVerifyStale:   4,
			},
			Histograms: map[goCred.MetricID][]uint64{
				goCred.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		audit: goCred.AuditStats{Delivered: 9, Dropped: 2},
	})

	out := exp.Render()
	if !strings.Contains(out, "gocred_signin_success_total 7") {
		t.Fatalf("expected signin_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "gocred_verify_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "gocred_verify_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	for _, want := range []string{
		"# TYPE gocred_verify_failures_total counter",
		`gocred_verify_failures_total{reason="stale"} 4`,
		`gocred_verify_failures_total{reason="signature"} 0`,
		`gocred_audit_events_total{outcome="delivered"} 9`,
		`gocred_audit_events_total{outcome="dropped"} 2`,
		"gocred_verify_latency_seconds_count 36",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "gocred_verify_stale_total") {
		t.Fatal("verify failures must only appear in the labeled family")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goCred.MetricsSnapshot{
			Counters:   map[goCred.MetricID]uint64{goCred.MetricSignInSuccess: 1},
			Histograms: map[goCred.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goCred.MetricsSnapshot{
			Counters: map[goCred.MetricID]uint64{
				goCred.MetricSignInSuccess:               1000,
				goCred.MetricSignInFailure:               40,
				goCred.MetricRefreshSuccess:              800,
				goCred.MetricRefreshFailure:              10,
				goCred.MetricVerifyRevoked:               20,
				goCred.MetricVerifyStale:                 5,
				goCred.MetricPasswordResetConfirmFailure: 3,
			},
			Histograms: map[goCred.MetricID][]uint64{
				goCred.MetricVerifyLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		audit: goCred.AuditStats{Delivered: 1000},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}

func TestRenderFromEngine(t *testing.T) {
	secrets, err := secret.New(map[secret.Level]secret.Pair{
		secret.LevelBearer: {Access: "access-user", Refresh: "refresh-user"},
		secret.LevelSystem: {Access: "access-admin", Refresh: "refresh-admin"},
	})
	if err != nil {
		t.Fatalf("secret.New: %v", err)
	}
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	revocations, err := revocation.NewRedisStore(rdb, revocation.DefaultRedisPrefix)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	principals := memory.New()

	engine, err := goCred.New().
		WithSecrets(secrets).
		WithPrincipalStore(principals).
		WithRevocationStore(revocations).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	p, err := principals.Create(context.Background(), goCred.Principal{
		ID: "user-1", Email: "a@example.com", Role: goCred.RoleUser, Provider: goCred.ProviderSystem,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	pair, err := engine.Issue(context.Background(), p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := engine.Verify(context.Background(), "Bearer "+pair.AccessToken, goCred.TokenAccess); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	_, _ = engine.Verify(context.Background(), "", goCred.TokenAccess)

	out := NewPrometheusExporter(engine).Render()
	for _, want := range []string{
		"gocred_token_issued_total 1",
		"gocred_verify_success_total 1",
		`gocred_verify_failures_total{reason="missing_header"} 1`,
		`gocred_audit_events_total{outcome="dropped"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}
