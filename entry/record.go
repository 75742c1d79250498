package entry

import "fmt"

// Record is the structured, codec-neutral dump of an Entry. It is the unit
// every persistence adapter stores and loads; round-tripping through it must
// be exact, status flags included.
type Record struct {
	TransactionID        string `json:"transaction_identifier"`
	Savepoint            string `json:"savepoint"`
	Kind                 string `json:"kind"`
	ObjectKey            string `json:"object_key"`
	Attribute            string `json:"attribute_key,omitempty"`
	OldValue             any    `json:"old_value"`
	NewValue             any    `json:"new_value"`
	Method               string `json:"method,omitempty"`
	Persisted            bool   `json:"persisted"`
	ObjectPersisted      bool   `json:"object_persisted"`
	TransactionPersisted bool   `json:"transaction_persisted"`
}

// Record returns the structured dump of the entry.
func (e *Entry) Record() Record {
	return Record{
		TransactionID:        e.transactionID,
		Savepoint:            e.savepoint,
		Kind:                 string(e.kind),
		ObjectKey:            e.object.String(),
		Attribute:            e.attribute,
		OldValue:             e.oldValue,
		NewValue:             e.newValue,
		Method:               e.method,
		Persisted:            e.persisted.Load(),
		ObjectPersisted:      e.objectPersisted.Load(),
		TransactionPersisted: e.transactionPersisted,
	}
}

// FromRecord reconstructs an entry from its structured dump, validating the
// kind/field pairing the same way the constructors do.
func FromRecord(rec Record) (*Entry, error) {
	object, err := ParseObjectKey(rec.ObjectKey)
	if err != nil {
		return nil, err
	}

	var e *Entry
	switch Kind(rec.Kind) {
	case KindAttributeChange:
		e, err = NewAttributeChange(rec.TransactionID, rec.Savepoint, object, rec.Attribute, rec.OldValue, rec.NewValue, rec.Method, rec.TransactionPersisted)
	case KindObjectPersistence:
		if rec.Attribute != "" || rec.OldValue != nil || rec.NewValue != nil {
			return nil, &InvalidEntryError{Reason: "object persistence entry carries attribute fields"}
		}
		e, err = NewObjectPersistence(rec.TransactionID, rec.Savepoint, object, rec.Method, rec.TransactionPersisted)
	default:
		return nil, &InvalidEntryError{Reason: fmt.Sprintf("unknown entry kind %q", rec.Kind)}
	}
	if err != nil {
		return nil, err
	}

	if rec.Persisted {
		e.MarkPersisted()
	}
	if rec.ObjectPersisted {
		e.MarkObjectPersisted()
	}
	return e, nil
}
