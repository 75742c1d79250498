package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/txlog/adapter"
	"github.com/hupe1980/txlog/codec"
	"github.com/hupe1980/txlog/entry"
	"github.com/hupe1980/txlog/lock"
)

const (
	transactionsPrefix = "transactions"
	descriptorObject   = "descriptor.json"
	entrySuffix        = ".entry"
	discardedMarker    = "discarded"
)

// Options contains configuration for the MinIO adapter.
type Options struct {
	// Codec encodes descriptors and entry records. Defaults to JSON.
	Codec codec.Codec

	// Locks provides the global and per-transaction locks. Defaults to an
	// in-process manager; see the package documentation for multi-process
	// deployments.
	Locks lock.Manager

	// FetchConcurrency bounds parallel entry downloads during replay.
	FetchConcurrency int
}

// DefaultOptions returns default MinIO adapter options.
var DefaultOptions = Options{
	FetchConcurrency: 8,
}

// Adapter implements the persistence contract on top of an S3-compatible
// object store.
type Adapter struct {
	client *minio.Client
	bucket string
	prefix string
	codec  codec.Codec
	locks  lock.Manager
	fetch  int

	queue adapter.Queue
}

// Compile time check to ensure Adapter satisfies the adapter contract.
var _ adapter.Adapter = (*Adapter)(nil)

// New creates a MinIO-backed adapter.
// bucket is the bucket name; rootPrefix is prepended to all keys.
func New(client *minio.Client, bucket, rootPrefix string, optFns ...func(o *Options)) *Adapter {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewProcessManager(0)
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = DefaultOptions.FetchConcurrency
	}

	return &Adapter{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		codec:  opts.Codec,
		locks:  opts.Locks,
		fetch:  opts.FetchConcurrency,
	}
}

// Enqueue adds entries to the pending queue.
func (a *Adapter) Enqueue(entries ...*entry.Entry) { a.queue.Enqueue(entries...) }

// Pending returns the number of entries still queued.
func (a *Adapter) Pending() int { return a.queue.Len() }

// Persist durably stores all queued entries under the owning transaction's
// lock, marking each as persisted as it lands in the bucket.
func (a *Adapter) Persist(ctx context.Context) error {
	pending := a.queue.Snapshot()
	if len(pending) == 0 {
		return nil
	}

	transactionID, err := adapter.SingleTransaction(pending)
	if err != nil {
		return err
	}

	return a.locks.WithTransaction(ctx, transactionID, func() error {
		nextSeq := make(map[string]int)

		for _, e := range pending {
			if err := a.persistEntry(ctx, e, nextSeq); err != nil {
				return err
			}
			e.MarkPersisted()
			a.queue.Remove(e)
		}
		return nil
	})
}

func (a *Adapter) persistEntry(ctx context.Context, e *entry.Entry, nextSeq map[string]int) error {
	version, ok := splitSavepoint(e.Savepoint())
	if !ok {
		return adapter.NewDecodeError(e.Savepoint(), fmt.Errorf("malformed savepoint key"))
	}
	spPrefix := a.savepointPrefix(e.TransactionID(), version)

	if _, seen := nextSeq[spPrefix]; !seen {
		if err := a.ensureDescriptor(ctx, spPrefix, e.TransactionID(), e.Savepoint(), version); err != nil {
			return err
		}
		seq, err := a.highestSequence(ctx, spPrefix)
		if err != nil {
			return err
		}
		nextSeq[spPrefix] = seq + 1
	}

	// Stored as already persisted: the flag is true from the moment the
	// object exists, and replay must reproduce it.
	rec := e.Record()
	rec.Persisted = true

	data, err := a.codec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode log entry: %w", err)
	}

	key := spPrefix + fmt.Sprintf("%08d%s", nextSeq[spPrefix], entrySuffix)
	if err := a.put(ctx, key, data); err != nil {
		return err
	}
	nextSeq[spPrefix]++
	return nil
}

func (a *Adapter) ensureDescriptor(ctx context.Context, spPrefix, transactionID, savepoint string, version int) error {
	key := spPrefix + descriptorObject
	if _, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{}); err == nil {
		return nil
	} else if !isNotFound(err) {
		return adapter.NewStorageIOError("stat", key, err)
	}

	data, err := a.codec.Marshal(descriptorRecord{
		TransactionID: transactionID,
		Savepoint:     savepoint,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("failed to encode savepoint descriptor: %w", err)
	}
	return a.put(ctx, key, data)
}

func (a *Adapter) highestSequence(ctx context.Context, spPrefix string) (int, error) {
	highest := 0
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    spPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return 0, adapter.NewStorageIOError("list", spPrefix, obj.Err)
		}
		if seq, ok := entrySequence(path.Base(obj.Key)); ok && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

// TransactionIdentifiers enumerates durably known transactions under the
// global lock.
func (a *Adapter) TransactionIdentifiers(ctx context.Context) ([]string, error) {
	var ids []string
	err := a.locks.WithGlobal(ctx, func() error {
		prefix := a.key(transactionsPrefix) + "/"
		for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: false,
		}) {
			if obj.Err != nil {
				return adapter.NewStorageIOError("list", prefix, obj.Err)
			}
			name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/")
			if name == "" || name == obj.Key {
				continue
			}
			id, err := url.PathUnescape(name)
			if err != nil {
				return adapter.NewDecodeError(obj.Key, err)
			}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Savepoints enumerates a transaction's known savepoints in version order
// under the transaction lock. Discarded savepoints are skipped.
func (a *Adapter) Savepoints(ctx context.Context, transactionID string) ([]adapter.SavepointInfo, error) {
	var infos []adapter.SavepointInfo
	err := a.locks.WithTransaction(ctx, transactionID, func() error {
		versions, err := a.listVersions(ctx, transactionID)
		if err != nil {
			return err
		}

		for _, version := range versions {
			spPrefix := a.savepointPrefix(transactionID, version)

			discarded, err := a.isDiscarded(ctx, spPrefix)
			if err != nil {
				return err
			}
			if discarded {
				continue
			}

			key := spPrefix + descriptorObject
			data, err := a.get(ctx, key)
			if err != nil {
				if isNotFound(err) {
					infos = append(infos, adapter.SavepointInfo{
						TransactionID: transactionID,
						Savepoint:     fmt.Sprintf("%s/%d", transactionID, version),
						Version:       version,
					})
					continue
				}
				return adapter.NewStorageIOError("get", key, err)
			}

			var rec descriptorRecord
			if err := a.codec.Unmarshal(data, &rec); err != nil {
				return adapter.NewDecodeError(key, err)
			}
			infos = append(infos, adapter.SavepointInfo{
				TransactionID: rec.TransactionID,
				Savepoint:     rec.Savepoint,
				Version:       rec.Version,
			})
		}

		sort.Slice(infos, func(i, j int) bool { return infos[i].Version < infos[j].Version })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// LogEntries reconstructs the durable entries of one section in original
// write order under the transaction lock. Entry objects are fetched with
// bounded concurrency; ordering is restored by sequence number.
func (a *Adapter) LogEntries(ctx context.Context, transactionID string, version int) ([]*entry.Entry, error) {
	var entries []*entry.Entry
	err := a.locks.WithTransaction(ctx, transactionID, func() error {
		spPrefix := a.savepointPrefix(transactionID, version)

		discarded, err := a.isDiscarded(ctx, spPrefix)
		if err != nil {
			return err
		}
		if discarded {
			return nil
		}

		var keys []string
		for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
			Prefix:    spPrefix,
			Recursive: true,
		}) {
			if obj.Err != nil {
				return adapter.NewStorageIOError("list", spPrefix, obj.Err)
			}
			if _, ok := entrySequence(path.Base(obj.Key)); ok {
				keys = append(keys, obj.Key)
			}
		}
		sort.Strings(keys)

		entries = make([]*entry.Entry, len(keys))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.fetch)
		for i, key := range keys {
			i, key := i, key
			g.Go(func() error {
				data, err := a.get(gctx, key)
				if err != nil {
					return adapter.NewStorageIOError("get", key, err)
				}
				var rec entry.Record
				if err := a.codec.Unmarshal(data, &rec); err != nil {
					return adapter.NewDecodeError(key, err)
				}
				e, err := entry.FromRecord(rec)
				if err != nil {
					return adapter.NewDecodeError(key, err)
				}
				entries[i] = e
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Discard abandons every savepoint above the given version by writing a
// marker object into its prefix; nothing is deleted.
func (a *Adapter) Discard(ctx context.Context, transactionID string, aboveVersion int) error {
	return a.locks.WithTransaction(ctx, transactionID, func() error {
		versions, err := a.listVersions(ctx, transactionID)
		if err != nil {
			return err
		}

		for _, version := range versions {
			if version <= aboveVersion {
				continue
			}
			key := a.savepointPrefix(transactionID, version) + discardedMarker
			if err := a.put(ctx, key, []byte("{}")); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Adapter) listVersions(ctx context.Context, transactionID string) ([]int, error) {
	prefix := a.transactionPrefix(transactionID)

	var versions []int
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, adapter.NewStorageIOError("list", prefix, obj.Err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/")
		if name == "" || name == obj.Key {
			continue
		}
		version, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		versions = append(versions, version)
	}
	sort.Ints(versions)
	return versions, nil
}

func (a *Adapter) isDiscarded(ctx context.Context, spPrefix string) (bool, error) {
	key := spPrefix + discardedMarker
	_, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, adapter.NewStorageIOError("stat", key, err)
}

func (a *Adapter) put(ctx context.Context, key string, data []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return adapter.NewStorageIOError("put", key, err)
	}
	return nil
}

func (a *Adapter) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (a *Adapter) key(name string) string {
	return path.Join(a.prefix, name)
}

func (a *Adapter) transactionPrefix(transactionID string) string {
	return a.key(path.Join(transactionsPrefix, url.PathEscape(transactionID))) + "/"
}

func (a *Adapter) savepointPrefix(transactionID string, version int) string {
	return a.transactionPrefix(transactionID) + strconv.Itoa(version) + "/"
}

type descriptorRecord struct {
	TransactionID string `json:"transaction_identifier"`
	Savepoint     string `json:"savepoint"`
	Version       int    `json:"savepoint_version"`
}

func splitSavepoint(savepoint string) (int, bool) {
	idx := strings.LastIndex(savepoint, "/")
	if idx < 0 {
		return 0, false
	}
	version, err := strconv.Atoi(savepoint[idx+1:])
	if err != nil {
		return 0, false
	}
	return version, true
}

func entrySequence(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, entrySuffix)
	if !ok {
		return 0, false
	}
	seq, err := strconv.Atoi(base)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func isNotFound(err error) bool {
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
}
