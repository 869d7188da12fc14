// Package httpapi exposes the engine over JSON HTTP.
//
// Routes are declared in one table with their pipeline steps; the order of the
// steps on each route is the order they run in. Every route that takes a
// replay header checks it before authenticating.
//
// Endpoints:
//
//	POST   /api/auth/register               replay
//	POST   /api/auth/login                  replay
//	POST   /api/auth/admin/login            replay
//	POST   /api/auth/refresh                replay
//	POST   /api/auth/logout                 authenticate
//	POST   /api/auth/logout-all             authenticate
//	POST   /api/auth/verify-email
//	POST   /api/auth/resend-verification
//	GET    /api/auth/verification-tokens    authenticate
//	POST   /api/auth/check-token
//	POST   /api/auth/check-rate-limit
//	POST   /api/auth/forgot-password        replay
//	POST   /api/auth/reset-password         replay
//	POST   /api/auth/change-password        replay, authenticate
//	POST   /api/auth/change-email           authenticate
//	POST   /api/auth/verify-email-change    authenticate
//	POST   /api/user                        authenticate, admin
//	GET    /api/users                       authenticate, admin
//	GET    /api/users/search                authenticate, admin
//	GET    /api/users/:id                   authenticate, self or admin
//	PUT    /api/users/:id                   authenticate, self or admin
//	DELETE /api/users/:id                   authenticate, admin
//	PATCH  /api/users/:id/role              authenticate, admin
//	GET    /api/profile                     authenticate
//	PUT    /api/profile                     authenticate
//	POST   /api/profile/change-password     authenticate
//	GET    /api/roles                       authenticate
//	POST   /api/roles                       authenticate, admin
//	GET    /api/roles/:id                   authenticate, admin
//	PUT    /api/roles/:id                   authenticate, admin
//	DELETE /api/roles/:id                   authenticate, admin
//	GET    /api/roles/:id/users             authenticate, admin
//	POST   /api/auth/social/login
//	POST   /api/auth/social/link            authenticate
//	DELETE /api/auth/social/unlink/:provider authenticate
//	GET    /api/users/:userId/social-logins authenticate, self or admin
//	POST   /api/auth/social/callback
//	GET    /  /api/health-check  /hz
package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/router"
)

// Options tunes the global pipeline.
type Options struct {
	// ThrottleRPS and ThrottleBurst size the per-IP token bucket. Zero RPS
	// disables throttling.
	ThrottleRPS   float64
	ThrottleBurst int
}

// Routes builds the route table for e.
func Routes(e *authcore.Engine) *router.Table {
	var (
		t            = router.NewTable()
		replay       = middleware.Replay(e.ReplayGuard())
		authenticate = middleware.Authenticate(e)
		admin        = middleware.RequireAdmin()
		selfOrAdmin  = middleware.RequireSelfOrAdmin("id")
		ownerOrAdmin = middleware.RequireSelfOrAdmin("userId")
	)

	// ---------- health ----------
	t.GET("/", root)
	t.GET("/api/health-check", healthCheck(e))
	t.GET("/hz", liveness)

	// ---------- session ----------
	t.POST("/api/auth/register", register(e), replay)
	t.POST("/api/auth/login", login(e), replay)
	t.POST("/api/auth/admin/login", adminLogin(e), replay)
	t.POST("/api/auth/refresh", refresh(e), replay)
	t.POST("/api/auth/logout", logout(e), authenticate)
	t.POST("/api/auth/logout-all", logoutAll(e), authenticate)

	// ---------- verification ----------
	t.POST("/api/auth/verify-email", verifyEmail(e))
	t.POST("/api/auth/resend-verification", resendVerification(e))
	t.GET("/api/auth/verification-tokens", verificationTokens(e), authenticate)
	t.POST("/api/auth/check-token", checkToken(e))
	t.POST("/api/auth/check-rate-limit", checkRateLimit(e))
	t.POST("/api/auth/forgot-password", forgotPassword(e), replay)
	t.POST("/api/auth/reset-password", resetPassword(e), replay)
	t.POST("/api/auth/change-password", changePassword(e), replay, authenticate)
	t.POST("/api/auth/change-email", changeEmail(e), authenticate)
	t.POST("/api/auth/verify-email-change", verifyEmailChange(e), authenticate)

	// ---------- users ----------
	t.POST("/api/user", createUser(e), authenticate, admin)
	t.GET("/api/users", listUsers(e), authenticate, admin)
	t.GET("/api/users/search", searchUsers(e), authenticate, admin)
	t.GET("/api/users/:id", getUser(e), authenticate, selfOrAdmin)
	t.PUT("/api/users/:id", updateUser(e), authenticate, selfOrAdmin)
	t.DELETE("/api/users/:id", deleteUser(e), authenticate, admin)
	t.PATCH("/api/users/:id/role", changeRole(e), authenticate, admin)

	// ---------- profile ----------
	t.GET("/api/profile", getProfile(e), authenticate)
	t.PUT("/api/profile", updateProfile(e), authenticate)
	t.POST("/api/profile/change-password", changePassword(e), authenticate)

	// ---------- roles ----------
	t.GET("/api/roles", listRoles(e), authenticate)
	t.POST("/api/roles", createRole(e), authenticate, admin)
	t.GET("/api/roles/:id", getRole(e), authenticate, admin)
	t.PUT("/api/roles/:id", updateRole(e), authenticate, admin)
	t.DELETE("/api/roles/:id", deleteRole(e), authenticate, admin)
	t.GET("/api/roles/:id/users", roleUsers(e), authenticate, admin)

	// ---------- social ----------
	t.POST("/api/auth/social/login", socialLogin(e))
	t.POST("/api/auth/social/link", linkSocial(e), authenticate)
	t.DELETE("/api/auth/social/unlink/:provider", unlinkSocial(e), authenticate)
	t.GET("/api/users/:userId/social-logins", userSocials(e), authenticate, ownerOrAdmin)
	t.POST("/api/auth/social/callback", oauthCallback(e))

	return t
}

// NewHandler wraps the route table of e in a dispatcher with the global
// client IP and throttle steps.
func NewHandler(e *authcore.Engine, log *zap.Logger, opts Options) http.Handler {
	global := []router.Step{middleware.ClientIP()}
	if opts.ThrottleRPS > 0 {
		global = append(global, middleware.Throttle(opts.ThrottleRPS, opts.ThrottleBurst))
	}
	return router.NewDispatcher(Routes(e), log, global...)
}

// requestContext carries the client IP into the engine for per-address login
// limits.
func requestContext(r *router.Request) context.Context {
	return authcore.WithClientIP(r.Context(), r.ClientIP)
}
