package authcore

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/apperr"
)

// Client-facing failures. Each carries its HTTP status through apperr so the
// dispatcher can answer without knowing the engine.
var (
	// ErrEmailRegistered is returned by Register for a taken email.
	ErrEmailRegistered = apperr.Validation("Email already registered")
	// ErrInvalidCredentials covers unknown email, social-only accounts and wrong passwords alike.
	ErrInvalidCredentials = apperr.Validation("Incorrect Username Or Password")
	// ErrNeedPermission is returned by AdminLogin for VIEWER and custom roles.
	ErrNeedPermission = apperr.Validation("Need Permission")
	// ErrInvalidRefreshToken covers every refresh failure, including losing a rotation race.
	ErrInvalidRefreshToken = apperr.Auth("Invalid refresh token")
	// ErrInvalidToken is returned for access tokens that fail verification.
	ErrInvalidToken = apperr.Auth("Invalid token")
	// ErrTokenExpired asks the client to run the refresh flow.
	ErrTokenExpired = apperr.New(apperr.KindTokenExpired, "Token expired")
	// ErrPrincipalNotFound is returned when a valid access token names a deleted user.
	ErrPrincipalNotFound = apperr.Auth("User not found")
	// ErrLoginRateLimited is returned once an email+IP pair exhausts its login budget.
	ErrLoginRateLimited = apperr.New(apperr.KindRateLimited, "Too many login attempts")

	ErrUserNotFound        = apperr.NotFound("User not found")
	ErrEmailInUse          = apperr.Validation("Email already in use")
	ErrNoPassword          = apperr.Validation("Not found passsword")
	ErrCurrentPassword     = apperr.Validation("Current password is incorrect")
	ErrRoleRequired        = apperr.Validation("Role is required")
	ErrRoleNotFound        = apperr.NotFound("Role not found")
	ErrRoleExists          = apperr.Conflict("Role with this name already exists")
	ErrDefaultRoleModify   = apperr.Forbidden("Cannot modify default role")
	ErrDefaultRoleDelete   = apperr.Forbidden("Cannot delete default role")
	ErrDefaultRoleMissing  = apperr.Validation("Please Try Again Later")
	ErrSocialProvider      = apperr.Auth("Unsupported social provider")
	ErrSocialInput         = apperr.Validation("Provider and access token are required")
	ErrSocialEmailMissing  = apperr.Validation("Social account has no email address")
	ErrSocialLinked        = apperr.Validation("This social account is already linked to another user")
	ErrOnlyLoginMethod     = apperr.Validation("Cannot remove the only login method. Please set a password first.")
	ErrCodeRequired        = apperr.Validation("Code and provider are required")
	ErrCodeExchange        = apperr.Validation("Failed to exchange authorization code")
	ErrVerificationInvalid = apperr.Validation("Invalid or expired token")
	ErrEmailVerified       = apperr.Validation("Email already verified")
	ErrVerificationLimited = apperr.New(apperr.KindRateLimited, "Too many requests, try again later")

	// ErrEngineNotReady is returned by methods called on a nil or half-built engine.
	ErrEngineNotReady = errors.New("authcore: engine not initialized")
)

// Validation failures for request input.
var (
	ErrInvalidEmail     = apperr.Validation("Invalid email")
	ErrPasswordTooShort = apperr.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	ErrInvalidType      = apperr.Validation("Invalid token type")
	ErrRefreshRequired  = apperr.Validation("Refresh token is required")
)

// roleNotFound names the missing role, as ChangeUserRole reports it.
func roleNotFound(name string) error {
	return apperr.NotFound(fmt.Sprintf("Role %s not found", name))
}

// roleInUse reports how many users still hold a role.
func roleInUse(n int) error {
	return apperr.Forbidden(fmt.Sprintf("Cannot delete role with assigned users (%d)", n))
}

// unsupportedProvider is returned by OAuthCallback for unknown providers.
func unsupportedProvider(p string) error {
	return apperr.Validation("Unsupported provider: " + p)
}
