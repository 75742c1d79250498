package lock

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// FileManager implements Manager with advisory file locks, giving mutual
// exclusion across threads and across processes sharing one storage root.
//
// Every acquisition opens its own descriptor on the lock file, so two
// goroutines of the same process exclude each other the same way two
// processes do.
type FileManager struct {
	root    string
	timeout time.Duration
}

// FileManagerOptions contains configuration for a FileManager.
type FileManagerOptions struct {
	// Timeout bounds each acquisition. Zero means block until available,
	// which is the base contract.
	Timeout time.Duration
}

// DefaultFileManagerOptions returns the default FileManager options.
var DefaultFileManagerOptions = FileManagerOptions{
	Timeout: 0,
}

// NewFileManager creates a file-backed lock manager rooted at the given
// directory. The directory is created on first use.
func NewFileManager(root string, optFns ...func(o *FileManagerOptions)) *FileManager {
	opts := DefaultFileManagerOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	return &FileManager{root: root, timeout: opts.Timeout}
}

// WithGlobal runs fn under the global lock.
func (m *FileManager) WithGlobal(ctx context.Context, fn func() error) error {
	return m.withLock(ctx, filepath.Join(m.root, "global.lock"), scopeGlobal, "", fn)
}

// WithTransaction runs fn under the lock for one transaction identifier.
func (m *FileManager) WithTransaction(ctx context.Context, transactionID string, fn func() error) error {
	name := url.PathEscape(transactionID) + ".lock"
	return m.withLock(ctx, filepath.Join(m.root, "tx", name), scopeTransaction, transactionID, fn)
}

func (m *FileManager) withLock(ctx context.Context, path, scope, transactionID string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // G304: Path is configurable
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer f.Close()

	if err := m.acquire(ctx, f, scope, transactionID); err != nil {
		return err
	}
	defer flockUnlock(f) //nolint:errcheck // Close releases the lock regardless.

	return fn()
}

func (m *FileManager) acquire(ctx context.Context, f *os.File, scope, transactionID string) error {
	if m.timeout <= 0 {
		if err := flockBlock(f); err != nil {
			return fmt.Errorf("failed to acquire %s lock: %w", scope, err)
		}
		return nil
	}

	deadline := time.Now().Add(m.timeout)
	for {
		ok, err := flockTry(f)
		if err != nil {
			return fmt.Errorf("failed to acquire %s lock: %w", scope, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Scope: scope, TransactionID: transactionID, Timeout: m.timeout}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}
