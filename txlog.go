package txlog

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/txlog/adapter"
	"github.com/hupe1980/txlog/entry"
	"github.com/hupe1980/txlog/lock"
)

// AttributeSink is the surface the interception layer records into. The
// engine never depends on host-object internals; whatever detects attribute
// writes and persistence calls forwards them here.
type AttributeSink interface {
	// RecordAttributeChange records one attribute transition on an object.
	RecordAttributeChange(ctx context.Context, object entry.ObjectKey, attribute string, oldValue, newValue any, method string) error
	// RecordObjectPersistence records that an object was flushed to its own
	// durable store.
	RecordObjectPersistence(ctx context.Context, object entry.ObjectKey, method string) error
}

// Registry holds the transactions known to this process, keyed by
// identifier. It is an explicit value threaded through the Manager, not an
// ambient global; independent managers can run side by side with separate
// registries.
type Registry struct {
	mu           sync.Mutex
	transactions map[string]*Transaction
}

// NewRegistry creates an empty transaction registry.
func NewRegistry() *Registry {
	return &Registry{transactions: make(map[string]*Transaction)}
}

// Lookup returns the registered transaction for the identifier, if any.
func (r *Registry) Lookup(id string) (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.transactions[id]
	return tx, ok
}

// Identifiers returns the identifiers of all registered transactions.
func (r *Registry) Identifiers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.transactions))
	for id := range r.transactions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) register(tx *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[tx.id] = tx
}

// Manager wires the persistence adapter, the lock manager and the registry
// into the transaction lifecycle API.
type Manager struct {
	adapter  adapter.Adapter
	locks    lock.Manager
	registry *Registry
	logger   *Logger
}

// Open creates a Manager. Without options it stores the log in a file-backed
// adapter under DefaultOptions.Path with file locks alongside it.
func Open(ctx context.Context, optFns ...func(o *Options)) (*Manager, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	if opts.Adapter == nil {
		fa, err := adapter.NewFileAdapter(opts.Path, func(o *adapter.FileOptions) {
			o.Codec = opts.Codec
			o.Compress = opts.Compress
			o.Locks = opts.Locks
		})
		if err != nil {
			return nil, err
		}
		opts.Adapter = fa
		if opts.Locks == nil {
			opts.Locks = fa.Locks()
		}
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewProcessManager(0)
	}

	return &Manager{
		adapter:  opts.Adapter,
		locks:    opts.Locks,
		registry: opts.Registry,
		logger:   opts.Logger,
	}, nil
}

// Adapter returns the persistence adapter the manager writes through.
func (m *Manager) Adapter() adapter.Adapter { return m.adapter }

// Registry returns the manager's transaction registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Begin returns the transaction for the identifier, creating and
// registering it on first use. An empty identifier is replaced with a
// generated one.
func (m *Manager) Begin(_ context.Context, id string) (*Transaction, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tx, ok := m.registry.Lookup(id); ok {
		return tx, nil
	}

	tx := &Transaction{id: id, manager: m}
	m.registry.register(tx)
	return tx, nil
}

// Resume rebuilds a transaction from its durably stored savepoints. Unknown
// identifiers yield a transaction with no sections, not an error.
func (m *Manager) Resume(ctx context.Context, id string) (*Transaction, error) {
	if tx, ok := m.registry.Lookup(id); ok {
		return tx, nil
	}

	tx := &Transaction{id: id, manager: m}

	infos, err := m.adapter.Savepoints(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		s, err := m.resumeSection(ctx, tx, info.Version)
		if err != nil {
			return nil, err
		}
		tx.appendSection(s)
	}

	m.registry.register(tx)
	return tx, nil
}

// OpenSection opens the next savepoint of the transaction. The version is
// derived under the transaction's lock, so concurrently opened sections
// cannot claim the same version.
func (m *Manager) OpenSection(ctx context.Context, tx *Transaction) (*Section, error) {
	var s *Section
	err := m.locks.WithTransaction(ctx, tx.id, func() error {
		s = newSection(tx.id, tx.nextVersion(), m.adapter)
		tx.appendSection(s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithTransaction(tx.id).WithSavepoint(s.Savepoint()).DebugContext(ctx, "section opened")
	return s, nil
}

// ResumeSection loads a previously persisted savepoint of the transaction
// and appends it to the section sequence.
func (m *Manager) ResumeSection(ctx context.Context, tx *Transaction, version int) (*Section, error) {
	s, err := m.resumeSection(ctx, tx, version)
	if err != nil {
		return nil, err
	}
	tx.appendSection(s)
	return s, nil
}

func (m *Manager) resumeSection(ctx context.Context, tx *Transaction, version int) (*Section, error) {
	s, err := resumeSection(ctx, tx.id, version, m.adapter)
	replayed := 0
	if s != nil {
		replayed = len(s.entries)
	}
	m.logger.LogReplay(ctx, savepointName(tx.id, version), replayed, err)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Persist durably stores all queued entries through the adapter.
func (m *Manager) Persist(ctx context.Context) error {
	before := m.adapter.Pending()
	err := m.adapter.Persist(ctx)
	m.logger.LogPersist(ctx, before-m.adapter.Pending(), m.adapter.Pending(), err)
	return err
}

// TransactionIdentifiers enumerates durably known transactions.
func (m *Manager) TransactionIdentifiers(ctx context.Context) ([]string, error) {
	return m.adapter.TransactionIdentifiers(ctx)
}
