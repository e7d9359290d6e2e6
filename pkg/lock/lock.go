// Package lock serializes mutations to a single workflow instance. Every
// engine operation that changes an instance runs inside WithLock for that
// instance's key, which keeps approval quorums and step advancement atomic.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired before the
// context deadline.
var ErrLockTimeout = errors.New("timed out acquiring instance lock")

// DefaultTTL bounds how long a crashed holder can keep a distributed lock.
const DefaultTTL = 30 * time.Second

type contextKey string

// Locker runs a function while holding an exclusive lock on a key. Calls are
// reentrant within the context returned to the callback.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// InstanceKey builds the lock key for a workflow instance.
func InstanceKey(instanceID string) string {
	return "caseflow:instance:" + instanceID
}
