package txlog

import (
	"github.com/hupe1980/txlog/adapter"
	"github.com/hupe1980/txlog/entry"
	"github.com/hupe1980/txlog/lock"
)

// The error taxonomy lives next to the packages that raise it; the aliases
// below re-export it so callers can match every engine error from the root
// package with errors.As.
//
// All of these are recoverable by the caller: retry, split the work, abandon
// the transaction, or surface to the user. None is fatal to the process.
type (
	// InvalidEntryError indicates a malformed log entry construction.
	InvalidEntryError = entry.InvalidEntryError

	// MixedTransactionError indicates the persist queue spanned more than
	// one transaction; the flush is aborted with the queue untouched.
	MixedTransactionError = adapter.MixedTransactionError

	// StorageIOError indicates a durable-write or read failure; entries
	// written before the failure stay persisted, the rest stays queued.
	StorageIOError = adapter.StorageIOError

	// DecodeError indicates a stored record was unreadable or
	// schema-invalid on load.
	DecodeError = adapter.DecodeError

	// LockTimeoutError indicates a bounded lock wait expired; retry with
	// backoff.
	LockTimeoutError = lock.TimeoutError
)
