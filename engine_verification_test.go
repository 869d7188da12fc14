package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/mail"
	"github.com/MrEthical07/authcore/store"
)

func TestVerifyEmailFlow(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "alice@example.com")

	msg := f.mails.wait(t, mail.KindVerifyEmail, "alice@example.com", 1)
	if !strings.HasPrefix(msg.Link, "https://app.example.com/verify-email?token=") {
		t.Fatalf("unexpected link %q", msg.Link)
	}
	token := tokenFromLink(t, msg.Link)
	if len(token) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(token))
	}

	check, err := f.engine.CheckVerificationToken(context.Background(), token, store.VerificationEmail)
	if err != nil {
		t.Fatalf("CheckVerificationToken failed: %v", err)
	}
	if !check.Valid {
		t.Fatal("expected token to be valid before use")
	}

	if err := f.engine.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	u, err := f.engine.GetUser(context.Background(), res.User.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !u.EmailVerified {
		t.Fatal("expected email verified")
	}

	if err := f.engine.VerifyEmail(context.Background(), token); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected second use to fail, got %v", err)
	}
	if err := f.engine.ResendVerification(context.Background(), "alice@example.com"); !errors.Is(err, ErrEmailVerified) {
		t.Fatalf("expected ErrEmailVerified, got %v", err)
	}
}

func TestVerificationTokenRedeemsOnceUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	token := tokenFromLink(t, f.mails.wait(t, mail.KindVerifyEmail, "alice@example.com", 1).Link)

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			results <- f.engine.VerifyEmail(context.Background(), token)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
		} else if !errors.Is(err, ErrVerificationInvalid) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected one success, got %d", success)
	}
}

func TestVerificationTokenWrongTypeOrExpired(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	token := tokenFromLink(t, f.mails.wait(t, mail.KindVerifyEmail, "alice@example.com", 1).Link)

	check, err := f.engine.CheckVerificationToken(context.Background(), token, store.VerificationPasswordReset)
	if err != nil {
		t.Fatalf("CheckVerificationToken failed: %v", err)
	}
	if check.Valid {
		t.Fatal("token must not validate as another type")
	}
	if err := f.engine.ResetPassword(context.Background(), token, "brand-new-password"); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected ErrVerificationInvalid, got %v", err)
	}

	f.clock.Advance(25 * time.Hour)
	if err := f.engine.VerifyEmail(context.Background(), token); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}

	if _, err := f.engine.CheckVerificationToken(context.Background(), token, "BOGUS"); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestVerificationRateLimit(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	f.mails.wait(t, mail.KindVerifyEmail, "alice@example.com", 1)

	for i := 0; i < 2; i++ {
		if err := f.engine.ResendVerification(context.Background(), "alice@example.com"); err != nil {
			t.Fatalf("resend #%d failed: %v", i+1, err)
		}
	}
	status, err := f.engine.CheckRateLimit(context.Background(), "alice@example.com", store.VerificationEmail)
	if err != nil {
		t.Fatalf("CheckRateLimit failed: %v", err)
	}
	if !status.Limited || status.Remaining != 0 {
		t.Fatalf("expected limited, got %+v", status)
	}

	if err := f.engine.ResendVerification(context.Background(), "alice@example.com"); !errors.Is(err, ErrVerificationLimited) {
		t.Fatalf("expected ErrVerificationLimited, got %v", err)
	}

	f.clock.Advance(time.Hour + time.Second)
	if err := f.engine.ResendVerification(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("expected budget to recover after the window: %v", err)
	}

	status, err = f.engine.CheckRateLimit(context.Background(), "nobody@example.com", store.VerificationEmail)
	if err != nil {
		t.Fatalf("CheckRateLimit failed: %v", err)
	}
	if status.Limited || status.Remaining != 3 {
		t.Fatalf("unknown email must report the full budget, got %+v", status)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "alice@example.com")

	if err := f.engine.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown email must not be revealed: %v", err)
	}
	if err := f.engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	token := tokenFromLink(t, f.mails.wait(t, mail.KindResetPassword, "alice@example.com", 1).Link)

	if err := f.engine.ResetPassword(context.Background(), token, "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := f.engine.ResetPassword(context.Background(), token, "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := f.engine.Refresh(context.Background(), res.Session.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected sessions revoked after reset, got %v", err)
	}
	if _, err := f.engine.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := f.engine.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "brand-new-password"}); err != nil {
		t.Fatalf("new password login failed: %v", err)
	}
	if err := f.engine.ResetPassword(context.Background(), token, "another-password-1"); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected reset token to be single use, got %v", err)
	}
}

func TestChangeEmailFlow(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice@example.com")
	f.register(t, "bob@example.com")

	if err := f.engine.ChangeEmail(context.Background(), alice.User.ID, "bob@example.com"); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	if err := f.engine.ChangeEmail(context.Background(), alice.User.ID, "alice.new@example.com"); err != nil {
		t.Fatalf("ChangeEmail failed: %v", err)
	}
	token := tokenFromLink(t, f.mails.wait(t, mail.KindChangeEmail, "alice.new@example.com", 1).Link)

	u, err := f.engine.GetUser(context.Background(), alice.User.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Fatal("email must not change before confirmation")
	}

	other := f.register(t, "carol@example.com")
	if _, err := f.engine.VerifyEmailChange(context.Background(), other.User.ID, token); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("token of another user must be rejected, got %v", err)
	}

	view, err := f.engine.VerifyEmailChange(context.Background(), alice.User.ID, token)
	if err != nil {
		t.Fatalf("VerifyEmailChange failed: %v", err)
	}
	if view.Email != "alice.new@example.com" || !view.EmailVerified {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, err := f.engine.Login(context.Background(), LoginInput{Email: "alice.new@example.com", Password: testPassword}); err != nil {
		t.Fatalf("login with new email failed: %v", err)
	}
}

func TestLatestVerificationTokensMasked(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "alice@example.com")
	raw := tokenFromLink(t, f.mails.wait(t, mail.KindVerifyEmail, "alice@example.com", 1).Link)

	views, err := f.engine.LatestVerificationTokens(context.Background(), res.User.ID)
	if err != nil {
		t.Fatalf("LatestVerificationTokens failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 token, got %d", len(views))
	}
	if views[0].Token == raw || !strings.HasPrefix(views[0].Token, raw[:6]) || !strings.HasSuffix(views[0].Token, "*") {
		t.Fatalf("expected masked token, got %q", views[0].Token)
	}
}
