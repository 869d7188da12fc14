// Package authcore is the authentication and session core: registration,
// password and social login, refresh-token rotation, logout, access-token
// authentication and the account services built on them (users, profile,
// roles, social identities, email verification).
//
// An [Engine] is assembled once with [New] and [Builder.Build] and is safe for
// concurrent use afterwards. It owns the Redis-backed Token Cache and Entity
// Cache, the background and write queues, and the login limiter; the
// repository is supplied by the caller.
//
// # Session lifecycle
//
// A session is issued as a short-lived access token and a refresh token bound
// to a persisted row. The row is created first and the signed token is stamped
// onto it afterwards. [Engine.Refresh] redeems a refresh token exactly once:
// the row is revoked with a conditional update, so of two concurrent
// redemptions only one receives a new pair.
//
// # Errors
//
// Every client-facing failure is an apperr value declared in errors.go; the
// HTTP layer maps it to a status once. Unexpected failures are plain wrapped
// errors and surface as 500.
package authcore
