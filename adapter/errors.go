package adapter

import (
	"fmt"
	"strings"
)

// MixedTransactionError indicates the pending queue held entries from more
// than one transaction when Persist was called. The flush is aborted and the
// queue left untouched; the caller must split the work and retry.
type MixedTransactionError struct {
	Identifiers []string
}

func (e *MixedTransactionError) Error() string {
	return fmt.Sprintf("persist queue spans transactions: [%s]", strings.Join(e.Identifiers, ", "))
}

// StorageIOError indicates an underlying durable-write or read failure.
// Entries durably written before the failure stay persisted; the remainder
// stays queued for a later retry.
//
// The original underlying error can be accessed via errors.Unwrap.
type StorageIOError struct {
	Op    string
	Path  string
	cause error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s failed: %s: %v", e.Op, e.Path, e.cause)
}

func (e *StorageIOError) Unwrap() error { return e.cause }

// NewStorageIOError wraps a backend failure with the operation and location
// it occurred at.
func NewStorageIOError(op, path string, cause error) *StorageIOError {
	return &StorageIOError{Op: op, Path: path, cause: cause}
}

// DecodeError indicates a stored entry or descriptor was unreadable or
// schema-invalid on load. It is surfaced instead of silently reporting an
// empty log, so data loss cannot be masked.
//
// The original underlying error can be accessed via errors.Unwrap.
type DecodeError struct {
	Path  string
	cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable log record: %s: %v", e.Path, e.cause)
}

func (e *DecodeError) Unwrap() error { return e.cause }

// NewDecodeError wraps a decode failure with the record it occurred at.
func NewDecodeError(path string, cause error) *DecodeError {
	return &DecodeError{Path: path, cause: cause}
}
