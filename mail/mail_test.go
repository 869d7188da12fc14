package mail

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLinks(t *testing.T) {
	l := Links{BaseURL: "https://app.example.com"}
	if got := l.Verify("a b"); got != "https://app.example.com/verify-email?token=a+b" {
		t.Fatalf("Verify = %q", got)
	}
	if got := l.Reset("t"); got != "https://app.example.com/reset-password?token=t" {
		t.Fatalf("Reset = %q", got)
	}
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	send := LogSender(zap.New(core))

	if err := send(context.Background(), New(KindResetPassword, "a@x.com", "https://l")); err != nil {
		t.Fatalf("send: %v", err)
	}
	entries := logs.FilterMessage("email").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["subject"] != "Reset your password" || fields["to"] != "a@x.com" {
		t.Fatalf("unexpected fields %v", fields)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := send(ctx, New(KindVerifyEmail, "a@x.com", "")); err == nil {
		t.Fatal("expected cancelled context to fail")
	}
}
