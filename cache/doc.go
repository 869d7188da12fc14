// Package cache is the Redis-backed key-value layer shared by every other
// component: TTL'd values, atomic set-if-absent, bulk deletion by key prefix,
// small index sets and fixed-window counters.
//
// Every Redis failure is wrapped with [ErrUnavailable]. Callers above this
// package treat the cache as an accelerator and decide locally whether a
// failure is fatal (the replay guard) or only logged (the entity cache).
package cache
