package middleware

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/apperr"
	"github.com/MrEthical07/authcore/router"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

var (
	ErrAuthenticationRequired = apperr.Auth("Authentication required")
	ErrBearerRequired         = apperr.Auth("Bearer token required")
	ErrAccessDenied           = apperr.Forbidden("Access denied")
)

// Authenticator resolves an access token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*session.Principal, error)
}

// Authenticate attaches the principal for the bearer token. Failures carry
// their own kind, so an expired token answers 498 and anything else 401.
func Authenticate(auth Authenticator) router.Step {
	return func(r *router.Request) (*router.Response, error) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			return nil, ErrAuthenticationRequired
		}
		token, ok := r.BearerToken()
		if !ok {
			return nil, ErrBearerRequired
		}

		p, err := auth.Authenticate(r.Context(), token)
		if err != nil {
			return nil, err
		}
		r.Principal = p
		r.AccessToken = token
		if r.Logger != nil {
			r.Logger = r.Logger.With(zap.String("user_id", p.UserID()))
		}
		return nil, nil
	}
}

// RequireAdmin lets only ADMIN through.
func RequireAdmin() router.Step {
	return func(r *router.Request) (*router.Response, error) {
		if r.Principal == nil {
			return nil, ErrAuthenticationRequired
		}
		if !r.Principal.IsAdmin {
			return nil, ErrAccessDenied
		}
		return nil, nil
	}
}

// RequireAdminOrPro rejects VIEWER and any custom role.
func RequireAdminOrPro() router.Step {
	return func(r *router.Request) (*router.Response, error) {
		if r.Principal == nil {
			return nil, ErrAuthenticationRequired
		}
		if !r.Principal.HasRole(store.RoleAdmin, store.RolePro) {
			return nil, ErrAccessDenied
		}
		return nil, nil
	}
}

// RequireRoles lets through principals holding one of names.
func RequireRoles(names ...string) router.Step {
	denied := apperr.Forbidden("Required roles: " + strings.Join(names, ", "))
	return func(r *router.Request) (*router.Response, error) {
		if r.Principal == nil {
			return nil, ErrAuthenticationRequired
		}
		if !r.Principal.HasRole(names...) {
			return nil, denied
		}
		return nil, nil
	}
}

// RequireSelfOrAdmin lets through admins and the user named by path
// parameter param.
func RequireSelfOrAdmin(param string) router.Step {
	missing := apperr.Validation("Missing parameter: " + param)
	return func(r *router.Request) (*router.Response, error) {
		if r.Principal == nil {
			return nil, ErrAuthenticationRequired
		}
		id := r.Param(param)
		if id == "" {
			return nil, missing
		}
		if id != r.Principal.UserID() && !r.Principal.IsAdmin {
			return nil, ErrAccessDenied
		}
		return nil, nil
	}
}
