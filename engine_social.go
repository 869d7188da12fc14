package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/apperr"
	"github.com/MrEthical07/authcore/oauth"
	"github.com/MrEthical07/authcore/queue"
	"github.com/MrEthical07/authcore/store"
)

// SocialLogin describes the sociallogin operation and its observable behavior.
//
// SocialLogin signs a user in with a provider access token. The identity is
// matched by (provider, provider id), then by email; when neither exists a
// verified passwordless VIEWER account is created. The identity is linked if
// it was missing and the email is marked verified.
func (e *Engine) SocialLogin(ctx context.Context, in SocialInput) (res *AuthResult, err error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	provider := oauth.Provider(strings.ToLower(strings.TrimSpace(in.Provider)))
	ctx, span := e.tracer.Start(ctx, "authcore.SocialLogin", trace.WithAttributes(attribute.String("provider", string(provider))))
	defer func() {
		if err != nil {
			e.metrics.Inc(MetricSocialLoginFailure)
		}
		endSpan(span, err)
	}()

	profile, err := e.fetchProfile(ctx, provider, in.AccessToken)
	if err != nil {
		return nil, err
	}

	ident, err := e.store.Socials().FindByProvider(ctx, string(profile.Provider), profile.ProviderID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("social login: find identity: %w", err)
	}

	var u *store.User
	if ident != nil {
		u, err = e.users.FindByID(ctx, ident.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("social login: load user: %w", err)
		}
	}
	if u == nil && profile.Email != "" {
		u, err = e.users.FindByEmail(ctx, profile.Email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("social login: lookup email: %w", err)
		}
	}
	if u == nil {
		if u, err = e.createSocialUser(ctx, profile); err != nil {
			return nil, err
		}
	}

	if ident == nil || ident.UserID != u.ID {
		if err := e.linkIdentity(ctx, u.ID, profile); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("social login: link identity: %w", err)
		}
	}
	if !u.EmailVerified {
		now := e.now()
		if err := e.users.MarkEmailVerified(ctx, u.ID, now); err != nil {
			return nil, fmt.Errorf("social login: verify email: %w", err)
		}
		u.EmailVerified = true
		u.EmailVerifiedAt = &now
	}

	sess, err := e.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricSocialLoginSuccess)
	return &AuthResult{User: NewUserView(u), Session: sess}, nil
}

func (e *Engine) createSocialUser(ctx context.Context, p *oauth.Profile) (*store.User, error) {
	if p.Email == "" {
		return nil, ErrSocialEmailMissing
	}
	role, err := e.defaultRole(ctx)
	if err != nil {
		return nil, err
	}
	name := p.Name
	if name == "" {
		name, _, _ = strings.Cut(p.Email, "@")
	}
	u, err := queue.Do(ctx, e.writes, "user:create", func(ctx context.Context) (*store.User, error) {
		return e.users.Create(ctx, store.NewUser{
			Email:         p.Email,
			Name:          name,
			RoleID:        role.ID,
			EmailVerified: true,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("social login: create user: %w", err)
	}
	e.log.Info("user registered via social login", zap.String("user_id", u.ID), zap.String("provider", string(p.Provider)))
	return u, nil
}

func (e *Engine) linkIdentity(ctx context.Context, userID string, p *oauth.Profile) error {
	_, err := queue.Do(ctx, e.writes, "social:create", func(ctx context.Context) (*store.SocialIdentity, error) {
		return e.store.Socials().Create(ctx, store.SocialIdentity{
			UserID:       userID,
			Provider:     string(p.Provider),
			ProviderID:   p.ProviderID,
			Email:        p.Email,
			ProviderData: p.ProviderData,
		})
	})
	if err == nil {
		e.users.Invalidate(ctx, userID)
	}
	return err
}

func (e *Engine) fetchProfile(ctx context.Context, provider oauth.Provider, accessToken string) (*oauth.Profile, error) {
	if provider == "" || strings.TrimSpace(accessToken) == "" {
		return nil, ErrSocialInput
	}
	if !provider.Valid() {
		return nil, ErrSocialProvider
	}
	profile, err := e.profiles.FetchProfile(ctx, provider, accessToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, ErrSocialProvider.Message, err)
	}
	if profile == nil || profile.ProviderID == "" {
		return nil, ErrSocialProvider
	}
	return profile, nil
}

// LinkSocial describes the linksocial operation and its observable behavior.
//
// LinkSocial attaches the identity behind in.AccessToken to userID. Linking
// an identity already owned by the same user is a no-op; one owned by another
// user fails with ErrSocialLinked.
func (e *Engine) LinkSocial(ctx context.Context, userID string, in SocialInput) error {
	if e == nil {
		return ErrEngineNotReady
	}
	provider := oauth.Provider(strings.ToLower(strings.TrimSpace(in.Provider)))
	profile, err := e.fetchProfile(ctx, provider, in.AccessToken)
	if err != nil {
		return err
	}

	existing, err := e.store.Socials().FindByProvider(ctx, string(profile.Provider), profile.ProviderID)
	switch {
	case err == nil && existing.UserID != userID:
		return ErrSocialLinked
	case err == nil:
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("link social: find identity: %w", err)
	}

	if err := e.linkIdentity(ctx, userID, profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrSocialLinked
		}
		return fmt.Errorf("link social: %w", err)
	}
	return nil
}

// UnlinkSocial removes userID's identity at provider. A passwordless account
// may not drop its last identity.
func (e *Engine) UnlinkSocial(ctx context.Context, userID, provider string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	u, err := e.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("unlink social: load user: %w", err)
	}
	idents, err := e.store.Socials().ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("unlink social: list identities: %w", err)
	}
	if len(idents) <= 1 && !u.HasPassword() {
		return ErrOnlyLoginMethod
	}

	if err := e.store.Socials().Delete(ctx, userID, strings.ToLower(provider)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("unlink social: %w", err)
	}
	e.users.Invalidate(ctx, userID)
	return nil
}

// UserSocials lists the providers linked to userID.
func (e *Engine) UserSocials(ctx context.Context, userID string) ([]SocialRef, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	idents, err := e.store.Socials().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user socials: %w", err)
	}
	out := make([]SocialRef, 0, len(idents))
	for _, s := range idents {
		out = append(out, SocialRef{Provider: s.Provider, Email: s.Email})
	}
	return out, nil
}

// OAuthCallback describes the oauthcallback operation and its observable behavior.
//
// OAuthCallback exchanges an authorization code for a provider access token
// and continues with SocialLogin.
func (e *Engine) OAuthCallback(ctx context.Context, provider, code string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || strings.TrimSpace(code) == "" {
		return nil, ErrCodeRequired
	}
	p := oauth.Provider(provider)
	if !p.Valid() || e.exchanger == nil {
		return nil, unsupportedProvider(provider)
	}

	token, err := e.exchanger.Exchange(ctx, p, code)
	if err != nil {
		if errors.Is(err, oauth.ErrUnsupportedProvider) {
			return nil, unsupportedProvider(provider)
		}
		e.log.Warn("oauth code exchange failed", zap.String("provider", provider), zap.Error(err))
		return nil, apperr.Wrap(apperr.KindValidation, ErrCodeExchange.Message, err)
	}
	return e.SocialLogin(ctx, SocialInput{Provider: provider, AccessToken: token})
}
