package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/apperr"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/queue"
	"github.com/MrEthical07/authcore/store"
)

// Register describes the register operation and its observable behavior.
//
// Register creates a VIEWER account, signs it in and queues a verification
// email. A taken email fails with ErrEmailRegistered.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	if _, err := e.users.FindByEmail(ctx, email); err == nil {
		e.metrics.Inc(MetricRegisterDuplicate)
		return nil, ErrEmailRegistered
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("register: lookup email: %w", err)
	}

	role, err := e.defaultRole(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	u, err := queue.Do(ctx, e.writes, "user:create", func(ctx context.Context) (*store.User, error) {
		return e.users.Create(ctx, store.NewUser{
			Email:        email,
			PasswordHash: hash,
			Name:         strings.TrimSpace(in.Name),
			RoleID:       role.ID,
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			e.metrics.Inc(MetricRegisterDuplicate)
			return nil, ErrEmailRegistered
		}
		return nil, fmt.Errorf("register: create user: %w", err)
	}

	sess, err := e.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricRegisterSuccess)
	e.log.Info("user registered", zap.String("user_id", u.ID))

	pending := *u
	e.background.Go("verification:register", func(ctx context.Context) error {
		_, err := e.issueVerification(ctx, &pending, store.VerificationEmail, "")
		return err
	})

	return &AuthResult{User: NewUserView(u), Session: sess}, nil
}

// Login describes the login operation and its observable behavior.
//
// Login signs a user in with email and password. Unknown emails, social-only
// accounts and wrong passwords fail alike with ErrInvalidCredentials. Failed
// attempts are counted per email and client IP (see WithClientIP).
func (e *Engine) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	return e.login(ctx, in, false)
}

// AdminLogin is Login restricted to ADMIN and PRO accounts. Other roles fail
// with ErrNeedPermission once the password has been verified.
func (e *Engine) AdminLogin(ctx context.Context, in LoginInput) (*AuthResult, error) {
	return e.login(ctx, in, true)
}

func (e *Engine) login(ctx context.Context, in LoginInput, privileged bool) (res *AuthResult, err error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.tracer.Start(ctx, "authcore.Login", trace.WithAttributes(attribute.Bool("privileged", privileged)))
	defer func() { endSpan(span, err) }()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	ip := clientIPFromContext(ctx)
	if email == "" || in.Password == "" {
		e.metrics.Inc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	if err := e.loginLimiter.Check(ctx, email, ip); err != nil {
		if errors.Is(err, limiters.ErrLoginRateLimited) {
			e.metrics.Inc(MetricLoginRateLimited)
			return nil, ErrLoginRateLimited
		}
		e.log.Warn("login limiter unavailable", zap.Error(err))
	}

	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.loginFailed(ctx, email, ip)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: lookup email: %w", err)
	}
	if !u.HasPassword() {
		e.loginFailed(ctx, email, ip)
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(in.Password, u.PasswordHash)
	if err != nil {
		e.log.Error("stored password hash unreadable", zap.String("user_id", u.ID), zap.Error(err))
	}
	if !ok {
		e.loginFailed(ctx, email, ip)
		return nil, ErrInvalidCredentials
	}
	if privileged && !u.Role.IsPrivileged() {
		e.metrics.Inc(MetricLoginFailure)
		return nil, ErrNeedPermission
	}

	if err := e.loginLimiter.Reset(ctx, email, ip); err != nil {
		e.log.Warn("login limiter reset failed", zap.Error(err))
	}
	e.maybeRehash(u, in.Password)

	sess, err := e.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricLoginSuccess)
	return &AuthResult{User: NewUserView(u), Session: sess}, nil
}

func (e *Engine) loginFailed(ctx context.Context, email, ip string) {
	e.metrics.Inc(MetricLoginFailure)
	if err := e.loginLimiter.Fail(ctx, email, ip); err != nil {
		e.log.Warn("login limiter record failed", zap.Error(err))
	}
}

// maybeRehash replaces a hash whose parameters drifted from the config. It
// runs in the background and never delays the login.
func (e *Engine) maybeRehash(u *store.User, plain string) {
	needs, err := e.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	userID := u.ID
	e.background.Go("password:rehash", func(ctx context.Context) error {
		hash, err := e.hasher.Hash(plain)
		if err != nil {
			return err
		}
		if err := e.users.UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		e.metrics.Inc(MetricPasswordRehash)
		return nil
	})
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh redeems a refresh token for a new pair. The token must verify, its
// row must exist, be unrevoked, unexpired, belong to the same user and hold
// exactly this token string. The row is then revoked conditionally; of two
// concurrent redemptions only one succeeds. Every failure is
// ErrInvalidRefreshToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (sess *Session, err error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.tracer.Start(ctx, "authcore.Refresh")
	defer func() {
		if err != nil {
			e.metrics.Inc(MetricRefreshFailure)
		}
		endSpan(span, err)
	}()

	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := e.jwt.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, ErrInvalidRefreshToken.Message, err)
	}

	row, err := e.store.RefreshTokens().FindByID(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("refresh: find token: %w", err)
	}
	if row.IsRevoked || !e.now().Before(row.ExpiresAt) || row.UserID != claims.UserID || row.Token != refreshToken {
		return nil, ErrInvalidRefreshToken
	}

	won, err := queue.Do(ctx, e.writes, "refresh:revoke", func(ctx context.Context) (bool, error) {
		return e.store.RefreshTokens().Revoke(ctx, row.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("refresh: revoke token: %w", err)
	}
	if !won {
		e.metrics.Inc(MetricRefreshRaceLost)
		return nil, ErrInvalidRefreshToken
	}

	u, err := e.users.FindByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("refresh: load user: %w", err)
	}

	next, err := e.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricRefreshSuccess)
	return &next, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout revokes refreshToken if it names a live row and evicts accessToken
// from the Token Cache. It is idempotent: unknown or already revoked tokens
// are not an error.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if refreshToken != "" {
		row, err := e.store.RefreshTokens().FindByToken(ctx, refreshToken)
		switch {
		case err == nil && !row.IsRevoked:
			if _, err := queue.Do(ctx, e.writes, "refresh:revoke", func(ctx context.Context) (bool, error) {
				return e.store.RefreshTokens().Revoke(ctx, row.ID)
			}); err != nil {
				e.log.Warn("logout: revoke failed", zap.String("token_id", row.ID), zap.Error(err))
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			e.log.Warn("logout: token lookup failed", zap.Error(err))
		}
	}
	e.tokens.Evict(ctx, accessToken)
	e.metrics.Inc(MetricLogout)
	return nil
}

// LogoutAll describes the logoutall operation and its observable behavior.
//
// LogoutAll revokes every refresh token of userID and evicts every cached
// access token of the user, including accessToken.
func (e *Engine) LogoutAll(ctx context.Context, userID, accessToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.revokeSessions(ctx, userID); err != nil {
		return err
	}
	e.tokens.Evict(ctx, accessToken)
	e.metrics.Inc(MetricLogoutAll)
	return nil
}

// revokeSessions revokes every refresh token of userID and drops the user's
// cached access tokens.
func (e *Engine) revokeSessions(ctx context.Context, userID string) error {
	n, err := queue.Do(ctx, e.writes, "refresh:revoke-all", func(ctx context.Context) (int, error) {
		return e.store.RefreshTokens().RevokeAllForUser(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	e.tokens.EvictUser(ctx, userID)
	e.log.Debug("sessions revoked", zap.String("user_id", userID), zap.Int("count", n))
	return nil
}

// issueSession signs an access token and creates a refresh token: the row is
// inserted first, then the token embedding the row id is signed and stamped.
func (e *Engine) issueSession(ctx context.Context, u *store.User) (Session, error) {
	access, accessExp, err := e.jwt.SignAccess(jwt.AccessPayload{
		UserID:   u.ID,
		RoleID:   u.RoleID,
		RoleName: u.Role.Name,
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}

	row, err := queue.Do(ctx, e.writes, "refresh:create", func(ctx context.Context) (*store.RefreshToken, error) {
		return e.store.RefreshTokens().Create(ctx, u.ID, e.now().Add(e.jwt.RefreshTTL()))
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue session: create refresh token: %w", err)
	}

	refresh, refreshExp, err := e.jwt.SignRefresh(jwt.RefreshPayload{TokenID: row.ID, UserID: u.ID})
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	if _, err := queue.Do(ctx, e.writes, "refresh:stamp", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.store.RefreshTokens().Stamp(ctx, row.ID, refresh)
	}); err != nil {
		return Session{}, fmt.Errorf("issue session: stamp refresh token: %w", err)
	}

	return Session{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *Engine) defaultRole(ctx context.Context) (*store.Role, error) {
	role, err := e.roles.FindByName(ctx, store.RoleViewer)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDefaultRoleMissing
		}
		return nil, fmt.Errorf("load default role: %w", err)
	}
	return role, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validatePassword(pw string) error {
	if len([]rune(pw)) < minPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
