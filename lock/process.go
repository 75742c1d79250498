package lock

import (
	"context"
	"sync"
	"time"
)

// ProcessManager implements Manager with in-process mutexes. It is suitable
// for the in-memory adapter and for tests; it provides no cross-process
// exclusion.
type ProcessManager struct {
	mu      sync.Mutex
	global  sync.Mutex
	perTx   map[string]*sync.Mutex
	timeout time.Duration
}

// NewProcessManager creates an in-process lock manager. A non-zero timeout
// bounds each acquisition; zero blocks until available.
func NewProcessManager(timeout time.Duration) *ProcessManager {
	return &ProcessManager{
		perTx:   make(map[string]*sync.Mutex),
		timeout: timeout,
	}
}

// WithGlobal runs fn under the global lock.
func (m *ProcessManager) WithGlobal(ctx context.Context, fn func() error) error {
	if err := m.acquire(ctx, &m.global, scopeGlobal, ""); err != nil {
		return err
	}
	defer m.global.Unlock()
	return fn()
}

// WithTransaction runs fn under the lock for one transaction identifier.
func (m *ProcessManager) WithTransaction(ctx context.Context, transactionID string, fn func() error) error {
	m.mu.Lock()
	mu, ok := m.perTx[transactionID]
	if !ok {
		mu = new(sync.Mutex)
		m.perTx[transactionID] = mu
	}
	m.mu.Unlock()

	if err := m.acquire(ctx, mu, scopeTransaction, transactionID); err != nil {
		return err
	}
	defer mu.Unlock()
	return fn()
}

func (m *ProcessManager) acquire(ctx context.Context, mu *sync.Mutex, scope, transactionID string) error {
	if m.timeout <= 0 {
		mu.Lock()
		return nil
	}

	deadline := time.Now().Add(m.timeout)
	for {
		if mu.TryLock() {
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
