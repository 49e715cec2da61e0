package goCred

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	env := newTestEnv(t,
		withBuilder(func(b *Builder) { b.WithAuditSink(sink) }),
		withConfig(func(cfg *Config) { cfg.Audit.Enabled = false }),
	)
	env.seed(t, "u1", "alice@example.com", "correct-password", RoleUser)

	_, _, _ = env.engine.SignIn(WithClientIP(context.Background(), "203.0.113.1"), "alice@example.com", "wrong-password")
	env.engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEnabledSinkReceivesEventWithFields(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t,
		withBuilder(func(b *Builder) { b.WithAuditSink(sink) }),
		withConfig(func(cfg *Config) {
			cfg.Audit.Enabled = true
			cfg.Audit.BufferSize = 16
		}),
	)
	env.seed(t, "u1", "alice@example.com", "correct-password", RoleUser)

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	_, _, _ = env.engine.SignIn(ctx, "alice@example.com", "super-secret-password")

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditEventSignInFailure {
			t.Fatalf("expected %s, got %q", auditEventSignInFailure, ev.EventType)
		}
		if ev.IP != "198.51.100.33" {
			t.Fatalf("expected IP 198.51.100.33, got %q", ev.IP)
		}
		if ev.Principal != "u1" {
			t.Fatalf("expected principal u1, got %q", ev.Principal)
		}
		if ev.Error != string(auditErrInvalidCredentials) {
			t.Fatalf("expected error code %q, got %q", auditErrInvalidCredentials, ev.Error)
		}
		for _, v := range ev.Metadata {
			if v == "super-secret-password" {
				t.Fatal("sensitive password leaked in metadata")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventSignInSuccess,
		Principal: "u1",
		JTI:       "jti-1",
		IP:        "127.0.0.1",
		Success:   true,
	})

	if !buf.Contains("signin_success") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"principal_id":"u1"`) {
		t.Fatal("expected JSON log line to contain principal id")
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{})

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := NewChannelSink(32)
	env := newTestEnv(t,
		withBuilder(func(b *Builder) { b.WithAuditSink(sink) }),
		withConfig(func(cfg *Config) {
			cfg.Audit.Enabled = true
			cfg.Audit.BufferSize = 32
			cfg.Audit.DropIfFull = false
		}),
	)
	const sensitivePassword = "correct-password-123"
	p := env.seed(t, "u1", "alice@example.com", sensitivePassword, RoleUser)

	pair, _, err := env.engine.SignIn(context.Background(), "alice@example.com", sensitivePassword)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), header(pair, pair.RefreshToken)); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	_, _, _ = env.engine.SignIn(context.Background(), "alice@example.com", "wrong-"+sensitivePassword)
	env.engine.Close()

	needles := []string{sensitivePassword, pair.AccessToken, pair.RefreshToken, p.PasswordHash}

	var events []AuditEvent
	for len(sink.Events()) > 0 {
		events = append(events, <-sink.Events())
	}
	if len(events) == 0 {
		t.Fatal("expected at least one audit event")
	}

	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field of %s", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata of %s", ev.EventType)
				}
			}
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(string(b.buf), v)
}
