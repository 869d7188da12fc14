// Package queue runs work off the request path.
//
// [Background] is fire-and-forget: tasks are named, bounded by a semaphore,
// and their failures are logged rather than returned. It carries emails,
// delayed cache invalidation and hash upgrades.
//
// [WriteQueue] bounds concurrent persistence writes. Submissions are admitted
// strictly in arrival order; a saturated queue makes callers wait instead of
// failing. Each submission returns a [Future] the caller may await.
package queue
