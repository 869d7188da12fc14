// Package limiters holds the fixed-window counters guarding credential
// endpoints.
//
// [LoginLimiter] counts failed logins per email and per email+IP on top of
// cache.Store. Counters start their window on the first failure and are
// cleared by a successful login. A nil limiter allows everything.
package limiters
