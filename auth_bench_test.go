package goCred

import (
	"context"
	"testing"
)

func BenchmarkIssue(b *testing.B) {
	env := newTestEnv(b)
	p := env.seed(b, "u1", "alice@example.com", "correct-password-123", RoleUser)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.Issue(context.Background(), p); err != nil {
			b.Fatalf("issue failed: %v", err)
		}
	}
}

func BenchmarkVerifyAccess(b *testing.B) {
	env := newTestEnv(b)
	env.seed(b, "u1", "alice@example.com", "correct-password-123", RoleUser)
	pair := env.issue(b, "u1")
	authorization := header(pair, pair.AccessToken)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.Verify(context.Background(), authorization, TokenAccess); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkVerifyRejectsScheme(b *testing.B) {
	env := newTestEnv(b)
	env.seed(b, "u1", "alice@example.com", "correct-password-123", RoleUser)
	pair := env.issue(b, "u1")
	authorization := "Basic " + pair.AccessToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.Verify(context.Background(), authorization, TokenAccess); err == nil {
			b.Fatal("expected rejection")
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	env := newTestEnv(b)
	env.seed(b, "u1", "alice@example.com", "correct-password-123", RoleUser)
	pair := env.issue(b, "u1")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := env.engine.Refresh(context.Background(), header(pair, pair.RefreshToken))
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		pair = next
	}
}

func BenchmarkSignIn(b *testing.B) {
	env := newTestEnv(b)
	env.seed(b, "u1", "alice@example.com", "correct-password-123", RoleUser)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-password-123"); err != nil {
			b.Fatalf("sign-in failed: %v", err)
		}
	}
}
