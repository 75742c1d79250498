// Package lock provides the coarse-grained mutual exclusion protecting the
// durable transaction log.
//
// Two scopes exist: the global lock guards cross-transaction enumeration and
// structural operations on the storage root; a per-transaction lock guards
// everything scoped to one transaction identifier, including computing the
// next savepoint version.
//
// Locks are not re-entrant. Call paths that ever need both scopes must
// acquire the global lock before a transaction lock; nesting in the other
// direction can deadlock against a holder of the global lock waiting on the
// same transaction.
package lock

import (
	"context"
	"fmt"
	"time"
)

// Manager hands out scoped critical sections. The lock is held for the
// duration of fn and released on every exit path.
type Manager interface {
	// WithGlobal runs fn under the global lock.
	WithGlobal(ctx context.Context, fn func() error) error
	// WithTransaction runs fn under the lock for one transaction identifier.
	WithTransaction(ctx context.Context, transactionID string, fn func() error) error
}

// TimeoutError is returned when a bounded wait was configured and the lock
// could not be acquired within it. Callers should retry with backoff.
type TimeoutError struct {
	Scope         string
	TransactionID string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	if e.TransactionID == "" {
		return fmt.Sprintf("lock timeout: %s lock not acquired within %s", e.Scope, e.Timeout)
	}
	return fmt.Sprintf("lock timeout: %s lock for %q not acquired within %s", e.Scope, e.TransactionID, e.Timeout)
}

const (
	scopeGlobal      = "global"
	scopeTransaction = "transaction"
)

// retryInterval is the poll interval for bounded-wait acquisition.
const retryInterval = 5 * time.Millisecond
