package txlog

import (
	"context"
	"reflect"
	"strconv"

	"github.com/hupe1980/txlog/adapter"
	"github.com/hupe1980/txlog/entry"
)

// Section is one savepoint: the authoritative, append-only record of the
// state transitions logged since the previous savepoint, plus the write-set
// derived from them.
//
// A Section is owned exclusively by the in-process Transaction that created
// it; concurrent mutation requires external synchronization. Cross-process
// consistency comes solely from the adapter's transaction-scoped lock.
type Section struct {
	transactionID string
	savepoint     string
	version       int
	adapter       adapter.Adapter

	writeSet  map[string]any
	entries   []*entry.Entry
	persisted bool
}

func newSection(transactionID string, version int, ad adapter.Adapter) *Section {
	return &Section{
		transactionID: transactionID,
		savepoint:     savepointName(transactionID, version),
		version:       version,
		adapter:       ad,
		writeSet:      make(map[string]any),
	}
}

// resumeSection loads a previously persisted savepoint: stored entries are
// replayed into the write-set (latest entry per attribute key wins, in
// stored order) and the persisted flag reflects whether any entry existed.
func resumeSection(ctx context.Context, transactionID string, version int, ad adapter.Adapter) (*Section, error) {
	s := newSection(transactionID, version, ad)

	entries, err := ad.LogEntries(ctx, transactionID, version)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.IsAttributeChange() {
			s.writeSet[e.AttributeKey()] = e.NewValue()
		}
	}
	s.entries = entries
	s.persisted = len(entries) > 0
	return s, nil
}

// Savepoint returns the "<transaction_identifier>/<version>" key.
func (s *Section) Savepoint() string { return s.savepoint }

// Version returns the savepoint version within the transaction.
func (s *Section) Version() int { return s.version }

// Persisted reports whether this savepoint was durably recorded before the
// section was loaded or created.
func (s *Section) Persisted() bool { return s.persisted }

// Entries returns the section's log entries in creation order.
func (s *Section) Entries() []*entry.Entry {
	out := make([]*entry.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ValueFor returns the latest value written for the attribute within this
// section. It never consults ancestor sections; callers needing inherited
// values walk the transaction's section list.
func (s *Section) ValueFor(object entry.ObjectKey, attribute string) (any, bool) {
	v, ok := s.writeSet[attributeKey(object, attribute)]
	return v, ok
}

// LogAttributeChange records one attribute transition. Equal old and new
// values produce no entry and no write-set mutation. Within the section the
// last write wins.
func (s *Section) LogAttributeChange(object entry.ObjectKey, attribute string, oldValue, newValue any, method string) error {
	if reflect.DeepEqual(oldValue, newValue) {
		return nil
	}

	e, err := entry.NewAttributeChange(s.transactionID, s.savepoint, object, attribute, oldValue, newValue, method, s.persisted)
	if err != nil {
		return err
	}

	s.entries = append(s.entries, e)
	s.writeSet[attributeKey(object, attribute)] = newValue
	return nil
}

// LogObjectPersistence records that the object was flushed to its own store:
// every prior entry in this section targeting the object is marked object
// persisted, then a persistence event is appended.
func (s *Section) LogObjectPersistence(object entry.ObjectKey, method string) error {
	for _, e := range s.entries {
		if e.Targets(object) {
			e.MarkObjectPersisted()
		}
	}

	e, err := entry.NewObjectPersistence(s.transactionID, s.savepoint, object, method, s.persisted)
	if err != nil {
		return err
	}
	s.entries = append(s.entries, e)
	return nil
}

// EnqueueForPersisting hands every log entry of this section to the
// adapter's pending queue. Idempotent per entry: already-queued and
// already-persisted entries are not re-queued.
func (s *Section) EnqueueForPersisting() {
	s.adapter.Enqueue(s.entries...)
}

// containsPersistenceOf reports whether the section holds an
// object-persistence entry targeting the object.
func (s *Section) containsPersistenceOf(object entry.ObjectKey) bool {
	for _, e := range s.entries {
		if e.IsObjectPersistence() && e.Targets(object) {
			return true
		}
	}
	return false
}

func savepointName(transactionID string, version int) string {
	return transactionID + "/" + strconv.Itoa(version)
}

func attributeKey(object entry.ObjectKey, attribute string) string {
	return object.String() + "/" + attribute
}
