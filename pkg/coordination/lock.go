// Package coordination provides the distributed lock and job queue
// contracts the Scheduler (spec §4.H) is built on, plus a Redis-backed
// implementation of each and an in-process fake for tests that shouldn't
// need a live Redis server.
package coordination

import (
	"context"
	"time"
)

// LockBackend is the minimal key-value contract master election needs:
// SET key value NX PX ttl, GET, PEXPIRE (spec §6).
type LockBackend interface {
	// Acquire sets key=value with the given TTL only if key is unset.
	// Returns true if this call won the lock.
	Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Value returns the value currently held at key, or ("", false) if unset.
	Value(ctx context.Context, key string) (string, bool, error)
	// Refresh extends key's TTL, but only while it is still held by value —
	// guards against refreshing a lock a different node has since acquired.
	Refresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Release clears key, but only if it is still held by value.
	Release(ctx context.Context, key, value string) error
}
