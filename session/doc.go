// Package session holds the authenticated principal and the token cache.
//
// A [Principal] is the snapshot of a user taken when an access token was
// verified. [TokenCache] keeps principals keyed by sha256 of the raw token so
// the hot path can skip signature verification and the user lookup.
//
// # Lifetime
//
// An entry lives for the configured TTL or until the token itself expires,
// whichever is sooner. Each user has an index set of cached keys so that
// logout-all, password change, role change and deletion can evict every
// cached session of that user at once.
//
// # What this package must NOT do
//
//   - Verify tokens or load users; the engine does that on a miss.
//   - Put raw tokens or password hashes into Redis.
package session
