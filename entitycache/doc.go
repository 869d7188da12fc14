// Package entitycache puts a cache-first read path in front of the user and
// role repositories.
//
// Reads try the cache, fall back to the repository on a miss and populate the
// entry. Writes go to the repository, then invalidate the affected keys: the
// direct keys synchronously, and every list, search and per-role page by
// prefix. A second, delayed invalidation pass runs on the background queue to
// evict entries that a concurrent reader populated from pre-write data.
//
// Cache failures never fail a call; they are logged and the repository
// answers.
package entitycache
