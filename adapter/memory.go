package adapter

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/txlog/entry"
)

// MemoryAdapter is an in-memory Adapter implementation for tests and
// single-process embedding. It stores entry records, not entry pointers, so
// replay reconstructs fresh entries exactly like a durable backend would.
// Thread-safe; its internal mutex doubles as the transaction lock the
// contract requires.
type MemoryAdapter struct {
	mu           sync.Mutex
	transactions map[string]map[int]*memorySavepoint
	queue        Queue
}

type memorySavepoint struct {
	info      SavepointInfo
	records   []entry.Record
	discarded bool
}

// Compile time check to ensure MemoryAdapter satisfies the Adapter interface.
var _ Adapter = (*MemoryAdapter)(nil)

// NewMemoryAdapter creates a new in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		transactions: make(map[string]map[int]*memorySavepoint),
	}
}

// Enqueue adds entries to the pending queue.
func (a *MemoryAdapter) Enqueue(entries ...*entry.Entry) { a.queue.Enqueue(entries...) }

// Pending returns the number of entries still queued.
func (a *MemoryAdapter) Pending() int { return a.queue.Len() }

// Persist stores all queued entries and marks each as persisted.
func (a *MemoryAdapter) Persist(_ context.Context) error {
	pending := a.queue.Snapshot()
	if len(pending) == 0 {
		return nil
	}

	transactionID, err := SingleTransaction(pending)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range pending {
		version, err := savepointVersion(e.Savepoint())
		if err != nil {
			return err
		}

		savepoints, ok := a.transactions[transactionID]
		if !ok {
			savepoints = make(map[int]*memorySavepoint)
			a.transactions[transactionID] = savepoints
		}
		sp, ok := savepoints[version]
		if !ok || sp.discarded {
			sp = &memorySavepoint{info: SavepointInfo{
				TransactionID: transactionID,
				Savepoint:     e.Savepoint(),
				Version:       version,
			}}
			savepoints[version] = sp
		}

		e.MarkPersisted()
		sp.records = append(sp.records, e.Record())
		a.queue.Remove(e)
	}
	return nil
}

// TransactionIdentifiers enumerates known transactions.
func (a *MemoryAdapter) TransactionIdentifiers(_ context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.transactions))
	for id := range a.transactions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Savepoints enumerates a transaction's savepoints in version order.
func (a *MemoryAdapter) Savepoints(_ context.Context, transactionID string) ([]SavepointInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var infos []SavepointInfo
	for _, sp := range a.transactions[transactionID] {
		if sp.discarded {
			continue
		}
		infos = append(infos, sp.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Version < infos[j].Version })
	return infos, nil
}

// LogEntries reconstructs the stored entries of one section in write order.
func (a *MemoryAdapter) LogEntries(_ context.Context, transactionID string, version int) ([]*entry.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sp, ok := a.transactions[transactionID][version]
	if !ok || sp.discarded {
		return nil, nil
	}

	entries := make([]*entry.Entry, 0, len(sp.records))
	for _, rec := range sp.records {
		e, err := entry.FromRecord(rec)
		if err != nil {
			return nil, NewDecodeError(sp.info.Savepoint, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Discard abandons every savepoint above the given version. Records are
// retained but disappear from Savepoints and LogEntries.
func (a *MemoryAdapter) Discard(_ context.Context, transactionID string, aboveVersion int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for version, sp := range a.transactions[transactionID] {
		if version > aboveVersion {
			sp.discarded = true
		}
	}
	return nil
}
