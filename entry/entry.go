// Package entry defines the immutable log entry recorded for every state
// transition within a transaction section.
//
// An Entry is append-only: once persisted, its content fields never change.
// The only mutations allowed after creation are the monotonic status flags
// (persisted, object persisted), which transition to true exactly once and
// never back.
package entry

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Kind discriminates the two entry flavors.
type Kind string

const (
	// KindAttributeChange records a single attribute transition on an object.
	KindAttributeChange Kind = "attribute_change"
	// KindObjectPersistence records that the target object was flushed to its
	// own durable store. It carries no attribute or values.
	KindObjectPersistence Kind = "object_persistence"
)

// ObjectKey identifies the target object of an entry (class + id).
type ObjectKey struct {
	Class string
	ID    string
}

// String returns the canonical "<class>/<id>" form.
func (k ObjectKey) String() string { return k.Class + "/" + k.ID }

// ParseObjectKey parses the canonical "<class>/<id>" form.
func ParseObjectKey(s string) (ObjectKey, error) {
	class, id, ok := strings.Cut(s, "/")
	if !ok || class == "" || id == "" {
		return ObjectKey{}, &InvalidEntryError{Reason: fmt.Sprintf("malformed object key %q", s)}
	}
	return ObjectKey{Class: class, ID: id}, nil
}

// Entry is one immutable record of an attribute change or a persistence
// event. Entries refer to their owning section by savepoint key only; the
// section owns the entry, never the other way around.
type Entry struct {
	transactionID string
	savepoint     string
	kind          Kind
	object        ObjectKey
	attribute     string
	oldValue      any
	newValue      any
	method        string

	persisted            atomic.Bool
	objectPersisted      atomic.Bool
	transactionPersisted bool
}

// NewAttributeChange creates an attribute-change entry.
//
// sectionPersisted snapshots the owning section's persisted flag at creation
// time. Old and new values may be nil (absent); an empty attribute or object
// key is a caller contract violation.
func NewAttributeChange(transactionID, savepoint string, object ObjectKey, attribute string, oldValue, newValue any, method string, sectionPersisted bool) (*Entry, error) {
	if object.Class == "" || object.ID == "" {
		return nil, &InvalidEntryError{Reason: "attribute change requires an object key"}
	}
	if attribute == "" {
		return nil, &InvalidEntryError{Reason: "attribute change requires an attribute"}
	}
	return &Entry{
		transactionID:        transactionID,
		savepoint:            savepoint,
		kind:                 KindAttributeChange,
		object:               object,
		attribute:            attribute,
		oldValue:             oldValue,
		newValue:             newValue,
		method:               method,
		transactionPersisted: sectionPersisted,
	}, nil
}

// NewObjectPersistence creates an object-persistence entry.
func NewObjectPersistence(transactionID, savepoint string, object ObjectKey, method string, sectionPersisted bool) (*Entry, error) {
	if object.Class == "" || object.ID == "" {
		return nil, &InvalidEntryError{Reason: "object persistence requires an object key"}
	}
	return &Entry{
		transactionID:        transactionID,
		savepoint:            savepoint,
		kind:                 KindObjectPersistence,
		object:               object,
		method:               method,
		transactionPersisted: sectionPersisted,
	}, nil
}

// TransactionID returns the identifier of the owning transaction.
func (e *Entry) TransactionID() string { return e.transactionID }

// Savepoint returns the "<txid>/<version>" key of the owning section.
func (e *Entry) Savepoint() string { return e.savepoint }

// Kind returns the entry kind.
func (e *Entry) Kind() Kind { return e.kind }

// Object returns the target object key.
func (e *Entry) Object() ObjectKey { return e.object }

// Attribute returns the attribute name; empty for object-persistence entries.
func (e *Entry) Attribute() string { return e.attribute }

// AttributeKey returns the "<class>/<id>/<attribute>" key used by write-sets.
// Empty for object-persistence entries.
func (e *Entry) AttributeKey() string {
	if e.kind != KindAttributeChange {
		return ""
	}
	return e.object.String() + "/" + e.attribute
}

// OldValue returns the value before the change.
func (e *Entry) OldValue() any { return e.oldValue }

// NewValue returns the value after the change.
func (e *Entry) NewValue() any { return e.newValue }

// Method returns the name of the operation that caused the entry.
func (e *Entry) Method() string { return e.method }

// IsAttributeChange reports whether the entry records an attribute change.
func (e *Entry) IsAttributeChange() bool { return e.kind == KindAttributeChange }

// IsObjectPersistence reports whether the entry records a persistence event.
func (e *Entry) IsObjectPersistence() bool { return e.kind == KindObjectPersistence }

// Targets reports whether the entry targets the given object.
func (e *Entry) Targets(object ObjectKey) bool { return e.object == object }

// Persisted reports whether the entry has been durably stored.
func (e *Entry) Persisted() bool { return e.persisted.Load() }

// ObjectPersisted reports whether the target object was flushed to its own
// store after this entry was created.
func (e *Entry) ObjectPersisted() bool { return e.objectPersisted.Load() }

// TransactionPersisted reports the owning section's persisted flag as
// snapshotted at creation time.
func (e *Entry) TransactionPersisted() bool { return e.transactionPersisted }

// MarkPersisted marks the entry as durably stored. Idempotent.
func (e *Entry) MarkPersisted() { e.persisted.Store(true) }

// MarkObjectPersisted marks the entry as superseded by a flush of the target
// object. Idempotent.
func (e *Entry) MarkObjectPersisted() { e.objectPersisted.Store(true) }
