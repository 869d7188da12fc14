package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/mail"
	"github.com/MrEthical07/authcore/queue"
	"github.com/MrEthical07/authcore/store"
)

const (
	verificationTokenBytes = 32
	maskVisible            = 6
)

// issueVerification creates a token of type typ for u and emails it. The
// per-user per-type budget is counted from retained rows, used or not.
func (e *Engine) issueVerification(ctx context.Context, u *store.User, typ store.VerificationType, newEmail string) (*store.VerificationToken, error) {
	cfg := e.config.Verification
	now := e.now()

	n, err := e.store.VerificationTokens().CountSince(ctx, u.ID, typ, now.Add(-cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("issue verification: count: %w", err)
	}
	if n >= cfg.MaxPerWindow {
		e.metrics.Inc(MetricVerificationRateLimited)
		return nil, ErrVerificationLimited
	}

	raw, err := internal.RandomHex(verificationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("issue verification: random token: %w", err)
	}
	v, err := queue.Do(ctx, e.writes, "verification:create", func(ctx context.Context) (*store.VerificationToken, error) {
		return e.store.VerificationTokens().Create(ctx, store.VerificationToken{
			Token:     raw,
			Type:      typ,
			UserID:    u.ID,
			NewEmail:  newEmail,
			ExpiresAt: now.Add(e.config.tokenTTL(typ)),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("issue verification: create: %w", err)
	}

	switch typ {
	case store.VerificationPasswordReset:
		e.send(mail.New(mail.KindResetPassword, u.Email, e.links.Reset(raw)))
	case store.VerificationEmailChange:
		e.send(mail.New(mail.KindChangeEmail, newEmail, e.links.ChangeEmail(raw)))
	default:
		e.send(mail.New(mail.KindVerifyEmail, u.Email, e.links.Verify(raw)))
	}
	return v, nil
}

// redeem loads a usable token of type typ and marks it used. Of concurrent
// redeemers exactly one succeeds.
func (e *Engine) redeem(ctx context.Context, token string, typ store.VerificationType) (*store.VerificationToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrVerificationInvalid
	}
	v, err := e.store.VerificationTokens().FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrVerificationInvalid
		}
		return nil, fmt.Errorf("redeem token: %w", err)
	}
	now := e.now()
	if v.Type != typ || !v.Usable(now) {
		return nil, ErrVerificationInvalid
	}

	won, err := queue.Do(ctx, e.writes, "verification:use", func(ctx context.Context) (bool, error) {
		return e.store.VerificationTokens().MarkUsed(ctx, v.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("redeem token: %w", err)
	}
	if !won {
		return nil, ErrVerificationInvalid
	}
	v.UsedAt = &now
	return v, nil
}

// ResendVerification describes the resendverification operation and its observable behavior.
//
// ResendVerification mails a fresh email verification token. Accounts that
// are already verified fail with ErrEmailVerified.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("resend verification: %w", err)
	}
	if u.EmailVerified {
		return ErrEmailVerified
	}
	if _, err := e.issueVerification(ctx, u, store.VerificationEmail, ""); err != nil {
		return err
	}
	e.metrics.Inc(MetricEmailVerificationRequest)
	return nil
}

// VerifyEmail redeems an email verification token.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	v, err := e.redeem(ctx, token, store.VerificationEmail)
	if err != nil {
		return err
	}
	if err := e.users.MarkEmailVerified(ctx, v.UserID, *v.UsedAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("verify email: %w", err)
	}
	e.tokens.EvictUser(ctx, v.UserID)
	e.metrics.Inc(MetricEmailVerificationSuccess)
	return nil
}

// ForgotPassword describes the forgotpassword operation and its observable behavior.
//
// ForgotPassword mails a password reset token. It reports success for unknown
// emails so the endpoint cannot be used to discover accounts; only malformed
// input and exhausted budgets are surfaced.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	e.metrics.Inc(MetricPasswordResetRequest)

	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.log.Debug("password reset for unknown email")
			return nil
		}
		return fmt.Errorf("forgot password: %w", err)
	}
	if _, err := e.issueVerification(ctx, u, store.VerificationPasswordReset, ""); err != nil {
		return err
	}
	return nil
}

// ResetPassword redeems a password reset token, sets the new password and
// revokes every session of the user.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	v, err := e.redeem(ctx, token, store.VerificationPasswordReset)
	if err != nil {
		return err
	}
	if err := e.setPassword(ctx, v.UserID, newPassword); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrVerificationInvalid
		}
		return err
	}
	e.metrics.Inc(MetricPasswordResetSuccess)
	e.log.Info("password reset", zap.String("user_id", v.UserID))
	return nil
}

// ChangeEmail describes the changeemail operation and its observable behavior.
//
// ChangeEmail mails a confirmation token to newEmail. The account keeps its
// current email until VerifyEmailChange redeems the token.
func (e *Engine) ChangeEmail(ctx context.Context, userID, newEmail string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	email, err := normalizeEmail(newEmail)
	if err != nil {
		return err
	}
	u, err := e.user(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.emailAvailable(ctx, email, userID); err != nil {
		return err
	}
	_, err = e.issueVerification(ctx, u, store.VerificationEmailChange, email)
	return err
}

// VerifyEmailChange redeems an email change token issued to userID and moves
// the account to the new address, which counts as verified.
func (e *Engine) VerifyEmailChange(ctx context.Context, userID, token string) (*UserView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrVerificationInvalid
	}
	pending, err := e.store.VerificationTokens().FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrVerificationInvalid
		}
		return nil, fmt.Errorf("verify email change: %w", err)
	}
	if pending.UserID != userID || pending.NewEmail == "" {
		return nil, ErrVerificationInvalid
	}
	if err := e.emailAvailable(ctx, pending.NewEmail, userID); err != nil {
		return nil, err
	}

	v, err := e.redeem(ctx, token, store.VerificationEmailChange)
	if err != nil {
		return nil, err
	}
	u, err := e.users.Update(ctx, userID, store.UserUpdate{Email: &v.NewEmail})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, ErrEmailInUse
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("verify email change: %w", err)
	}
	if err := e.users.MarkEmailVerified(ctx, userID, *v.UsedAt); err != nil {
		return nil, fmt.Errorf("verify email change: mark verified: %w", err)
	}
	u.EmailVerified = true
	u.EmailVerifiedAt = v.UsedAt
	e.tokens.EvictUser(ctx, userID)

	view := NewUserView(u)
	return &view, nil
}

func (e *Engine) emailAvailable(ctx context.Context, email, userID string) error {
	other, err := e.users.FindByEmail(ctx, email)
	switch {
	case err == nil && other.ID != userID:
		return ErrEmailInUse
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return nil
	}
	return fmt.Errorf("lookup email: %w", err)
}

// CheckVerificationToken reports whether token is an unused, unexpired token
// of type typ. It does not consume the token.
func (e *Engine) CheckVerificationToken(ctx context.Context, token string, typ store.VerificationType) (*TokenCheck, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !typ.Valid() {
		return nil, ErrInvalidType
	}
	v, err := e.store.VerificationTokens().FindByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &TokenCheck{Valid: false}, nil
		}
		return nil, fmt.Errorf("check token: %w", err)
	}
	if v.Type != typ || !v.Usable(e.now()) {
		return &TokenCheck{Valid: false}, nil
	}
	exp := v.ExpiresAt
	return &TokenCheck{Valid: true, Type: v.Type, ExpiresAt: &exp}, nil
}

// LatestVerificationTokens lists the newest tokens issued to userID with
// their values masked.
func (e *Engine) LatestVerificationTokens(ctx context.Context, userID string) ([]VerificationView, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	rows, err := e.store.VerificationTokens().LatestByUser(ctx, userID, e.config.Verification.LatestLimit)
	if err != nil {
		return nil, fmt.Errorf("latest tokens: %w", err)
	}
	out := make([]VerificationView, 0, len(rows))
	for _, v := range rows {
		out = append(out, VerificationView{
			ID:        v.ID,
			Token:     internal.Mask(v.Token, maskVisible),
			Type:      v.Type,
			ExpiresAt: v.ExpiresAt,
			UsedAt:    v.UsedAt,
			CreatedAt: v.CreatedAt,
		})
	}
	return out, nil
}

// CheckRateLimit reports how many tokens of type typ the account behind email
// may still request in the current window. Unknown emails report the full
// budget.
func (e *Engine) CheckRateLimit(ctx context.Context, email string, typ store.VerificationType) (*RateLimitStatus, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !typ.Valid() {
		return nil, ErrInvalidType
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	budget := e.config.Verification.MaxPerWindow
	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &RateLimitStatus{Remaining: budget}, nil
		}
		return nil, fmt.Errorf("check rate limit: %w", err)
	}
	n, err := e.store.VerificationTokens().CountSince(ctx, u.ID, typ, e.now().Add(-e.config.Verification.Window))
	if err != nil {
		return nil, fmt.Errorf("check rate limit: %w", err)
	}
	remaining := max(budget-n, 0)
	return &RateLimitStatus{Limited: remaining == 0, Remaining: remaining}, nil
}
