package txlog

import (
	"context"
	"fmt"

	"github.com/hupe1980/txlog/entry"
)

// Transaction is a thin aggregate: one stable identifier plus its ordered
// sections. Creating a Transaction acquires no lock; individual section and
// adapter operations lock as needed.
//
// A Transaction and its sections are owned by one in-process user at a time;
// concurrent use requires external synchronization.
type Transaction struct {
	id       string
	manager  *Manager
	sections []*Section
}

// Compile time check to ensure Transaction satisfies AttributeSink.
var _ AttributeSink = (*Transaction)(nil)

// Identifier returns the transaction's opaque, immutable identifier.
func (t *Transaction) Identifier() string { return t.id }

// Sections returns the ordered sections in discovery order.
func (t *Transaction) Sections() []*Section {
	out := make([]*Section, len(t.sections))
	copy(out, t.sections)
	return out
}

// LastSection returns the most recent section, or nil if none exist.
func (t *Transaction) LastSection() *Section {
	if len(t.sections) == 0 {
		return nil
	}
	return t.sections[len(t.sections)-1]
}

// RecordAttributeChange logs an attribute transition into the active
// section, implicitly opening the transaction's first section if none
// exists.
func (t *Transaction) RecordAttributeChange(ctx context.Context, object entry.ObjectKey, attribute string, oldValue, newValue any, method string) error {
	s, err := t.activeSection(ctx)
	if err != nil {
		return err
	}
	return s.LogAttributeChange(object, attribute, oldValue, newValue, method)
}

// RecordObjectPersistence logs a persistence event into the active section,
// implicitly opening the transaction's first section if none exists.
func (t *Transaction) RecordObjectPersistence(ctx context.Context, object entry.ObjectKey, method string) error {
	s, err := t.activeSection(ctx)
	if err != nil {
		return err
	}
	return s.LogObjectPersistence(object, method)
}

// CurrentValue resolves the attribute across the transaction's sections,
// newest first. The second return reports whether any section wrote it.
func (t *Transaction) CurrentValue(object entry.ObjectKey, attribute string) (any, bool) {
	for i := len(t.sections) - 1; i >= 0; i-- {
		if v, ok := t.sections[i].ValueFor(object, attribute); ok {
			return v, true
		}
	}
	return nil, false
}

// IsNewObject reports whether no section of the transaction has recorded a
// persistence event for the object yet.
func (t *Transaction) IsNewObject(object entry.ObjectKey) bool {
	for _, s := range t.sections {
		if s.containsPersistenceOf(object) {
			return false
		}
	}
	return true
}

// EnqueueForPersisting hands every section's entries to the adapter's
// pending queue.
func (t *Transaction) EnqueueForPersisting() {
	for _, s := range t.sections {
		s.EnqueueForPersisting()
	}
}

// RollbackTo abandons every section above the target version: durably
// discarded through the adapter, then dropped from the in-memory sequence.
// The next opened section receives version target+1.
func (t *Transaction) RollbackTo(ctx context.Context, version int) error {
	if version < 0 {
		return fmt.Errorf("invalid rollback target version %d", version)
	}

	if err := t.manager.adapter.Discard(ctx, t.id, version); err != nil {
		return err
	}

	kept := t.sections[:0]
	for _, s := range t.sections {
		if s.Version() <= version {
			kept = append(kept, s)
		}
	}
	t.sections = kept

	t.manager.logger.LogRollback(ctx, t.id, version, nil)
	return nil
}

func (t *Transaction) activeSection(ctx context.Context) (*Section, error) {
	if s := t.LastSection(); s != nil {
		return s, nil
	}
	return t.manager.OpenSection(ctx, t)
}

func (t *Transaction) appendSection(s *Section) {
	t.sections = append(t.sections, s)
}

// nextVersion derives the next savepoint version from the last section.
// Must run under the transaction's lock.
func (t *Transaction) nextVersion() int {
	if s := t.LastSection(); s != nil {
		return s.Version() + 1
	}
	return 1
}
