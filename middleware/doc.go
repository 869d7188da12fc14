// Package middleware provides the router.Step values that make up request
// pipelines: client IP extraction, per-IP throttling, replay protection,
// authentication and authorization.
//
// Steps are ordered by the route table. Replay protection must come before
// authentication so a replayed request never reaches the token check.
// Authorization steps are pure predicates over the principal that
// [Authenticate] attached; they answer 401 when it is missing.
package middleware
