// Package adapter defines the persistence boundary of the transaction log:
// the contract every durable backend implements, and the shared pending
// queue entries pass through on their way to storage.
package adapter

import (
	"context"
	"sync"

	"github.com/hupe1980/txlog/entry"
)

// SavepointInfo describes one durably stored savepoint.
type SavepointInfo struct {
	TransactionID string
	Savepoint     string
	Version       int
}

// Adapter durably stores log entries belonging to one transaction at a time
// and reconstructs them on demand.
//
// Persist drains the pending queue under the lock for the single transaction
// the queued entries belong to. Queued entries spanning more than one
// transaction abort the flush with MixedTransactionError and leave the queue
// untouched. A storage failure mid-flush leaves already-written entries
// persisted and the remainder queued; Pending tells the caller what is left.
type Adapter interface {
	// Enqueue adds entries to the pending queue. Entries already queued or
	// already persisted are skipped.
	Enqueue(entries ...*entry.Entry)
	// Persist durably stores all queued entries, marking each as persisted.
	// An empty queue is an immediate success.
	Persist(ctx context.Context) error
	// Pending returns the number of entries still queued.
	Pending() int
	// TransactionIdentifiers enumerates durably known transactions.
	TransactionIdentifiers(ctx context.Context) ([]string, error)
	// Savepoints enumerates a transaction's known savepoints in version
	// order. Unknown transactions yield an empty sequence, not an error.
	Savepoints(ctx context.Context, transactionID string) ([]SavepointInfo, error)
	// LogEntries reconstructs the durable entries of exactly one section in
	// original write order. A never-persisted section yields an empty
	// sequence, not an error.
	LogEntries(ctx context.Context, transactionID string, version int) ([]*entry.Entry, error)
	// Discard abandons every savepoint of the transaction above the given
	// version. Discarded savepoints disappear from Savepoints and LogEntries
	// but their entries are retained by the backend.
	Discard(ctx context.Context, transactionID string, aboveVersion int) error
}

// Queue is the pending-entry queue shared by adapter implementations. It
// preserves enqueue order and deduplicates by entry identity.
type Queue struct {
	mu      sync.Mutex
	entries []*entry.Entry
	queued  map[*entry.Entry]struct{}
}

// Enqueue appends entries not yet queued and not yet persisted.
func (q *Queue) Enqueue(entries ...*entry.Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queued == nil {
		q.queued = make(map[*entry.Entry]struct{})
	}
	for _, e := range entries {
		if e == nil || e.Persisted() {
			continue
		}
		if _, ok := q.queued[e]; ok {
			continue
		}
		q.queued[e] = struct{}{}
		q.entries = append(q.entries, e)
	}
}

// Snapshot returns the queued entries in order.
func (q *Queue) Snapshot() []*entry.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*entry.Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Remove drops one entry from the queue after it was durably written.
func (q *Queue) Remove(e *entry.Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, queued := range q.entries {
		if queued == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			delete(q.queued, e)
			return
		}
	}
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// SingleTransaction returns the one transaction identifier all entries share,
// or MixedTransactionError if they span more than one.
func SingleTransaction(entries []*entry.Entry) (string, error) {
	var ids []string
	seen := make(map[string]struct{})
	for _, e := range entries {
		id := e.TransactionID()
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) != 1 {
		return "", &MixedTransactionError{Identifiers: ids}
	}
	return ids[0], nil
}
