package adapter

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/txlog/codec"
	"github.com/hupe1980/txlog/entry"
	"github.com/hupe1980/txlog/internal/fs"
	"github.com/hupe1980/txlog/lock"
)

const (
	transactionsDir = "transactions"
	descriptorFile  = "descriptor.json"
	entrySuffix     = ".entry"
	compressSuffix  = ".entry.zst"
	discardedSuffix = ".discarded"
)

// FileOptions contains configuration for the file-backed adapter.
type FileOptions struct {
	// FileSystem abstracts storage access; defaults to the local file system.
	FileSystem fs.FileSystem

	// Codec encodes descriptors and entry records. Defaults to JSON.
	Codec codec.Codec

	// Locks provides the global and per-transaction locks. Defaults to a
	// file-backed manager under <root>/locks, giving cross-process safety.
	Locks lock.Manager

	// Compress enables zstd compression of entry files.
	Compress bool

	// CompressionLevel sets the zstd compression level (1-22). Default 3.
	CompressionLevel int
}

// DefaultFileOptions returns default file adapter options.
var DefaultFileOptions = FileOptions{
	CompressionLevel: 3,
}

// FileAdapter durably stores log entries on a shared file system.
//
// Layout: <root>/transactions/<transaction_identifier>/<savepoint_version>/
// holds one descriptor record plus one file per entry. Entry files carry a
// strictly monotonic per-section sequence number, so a lexicographic
// directory listing equals original write order.
type FileAdapter struct {
	fs    fs.FileSystem
	root  string
	codec codec.Codec
	locks lock.Manager

	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder

	queue Queue
}

// Compile time check to ensure FileAdapter satisfies the Adapter interface.
var _ Adapter = (*FileAdapter)(nil)

// NewFileAdapter creates a file-backed adapter rooted at the given directory.
func NewFileAdapter(root string, optFns ...func(o *FileOptions)) (*FileAdapter, error) {
	opts := DefaultFileOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.FileSystem == nil {
		opts.FileSystem = fs.Default
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewFileManager(filepath.Join(root, "locks"))
	}

	a := &FileAdapter{
		fs:       opts.FileSystem,
		root:     root,
		codec:    opts.Codec,
		locks:    opts.Locks,
		compress: opts.Compress,
	}

	if opts.Compress {
		level := zstd.EncoderLevelFromZstd(opts.CompressionLevel)
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, fmt.Errorf("failed to create compressor: %w", err)
		}
		a.enc = enc
	}
	// The decoder handles both compressed and uncompressed trees, so a
	// reconfigured adapter can still read existing entries.
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	a.dec = dec

	if err := opts.FileSystem.MkdirAll(filepath.Join(root, transactionsDir), 0o750); err != nil {
		return nil, NewStorageIOError("mkdir", root, err)
	}

	return a, nil
}

// Locks returns the lock manager the adapter drains its queue under.
func (a *FileAdapter) Locks() lock.Manager { return a.locks }

// Enqueue adds entries to the pending queue.
func (a *FileAdapter) Enqueue(entries ...*entry.Entry) { a.queue.Enqueue(entries...) }

// Pending returns the number of entries still queued.
func (a *FileAdapter) Pending() int { return a.queue.Len() }

// Persist durably stores all queued entries under the owning transaction's
// lock, marking each as persisted as it lands on disk.
func (a *FileAdapter) Persist(ctx context.Context) error {
	pending := a.queue.Snapshot()
	if len(pending) == 0 {
		return nil
	}

	transactionID, err := SingleTransaction(pending)
	if err != nil {
		return err
	}

	return a.locks.WithTransaction(ctx, transactionID, func() error {
		// Next sequence number per savepoint directory, derived once from
		// the highest existing entry file.
		nextSeq := make(map[string]int)

		for _, e := range pending {
			if err := a.persistEntry(e, nextSeq); err != nil {
				return err
			}
			e.MarkPersisted()
			a.queue.Remove(e)
		}
		return nil
	})
}

func (a *FileAdapter) persistEntry(e *entry.Entry, nextSeq map[string]int) error {
	version, err := savepointVersion(e.Savepoint())
	if err != nil {
		return err
	}
	dir := a.savepointDir(e.TransactionID(), version)

	if _, ok := nextSeq[dir]; !ok {
		if err := a.ensureSavepointDir(dir, e.TransactionID(), e.Savepoint(), version); err != nil {
			return err
		}
		seq, err := a.highestSequence(dir)
		if err != nil {
			return err
		}
		nextSeq[dir] = seq + 1
	}

	// The record is written as already persisted: the flag is true from the
	// moment the file durably exists, and replay must reproduce it.
	rec := e.Record()
	rec.Persisted = true

	data, err := a.codec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode log entry: %w", err)
	}

	suffix := entrySuffix
	if a.compress {
		data = a.enc.EncodeAll(data, nil)
		suffix = compressSuffix
	}

	path := filepath.Join(dir, fmt.Sprintf("%08d%s", nextSeq[dir], suffix))
	if err := fs.WriteFile(a.fs, path, data, 0o600); err != nil {
		return NewStorageIOError("write", path, err)
	}
	nextSeq[dir]++
	return nil
}

func (a *FileAdapter) ensureSavepointDir(dir, transactionID, savepoint string, version int) error {
	if err := a.fs.MkdirAll(dir, 0o750); err != nil {
		return NewStorageIOError("mkdir", dir, err)
	}

	descPath := filepath.Join(dir, descriptorFile)
	if _, err := a.fs.Stat(descPath); err == nil {
		return nil
	}

	data, err := a.codec.Marshal(descriptorRecord{
		TransactionID: transactionID,
		Savepoint:     savepoint,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("failed to encode savepoint descriptor: %w", err)
	}
	if err := fs.WriteFile(a.fs, descPath, data, 0o600); err != nil {
		return NewStorageIOError("write", descPath, err)
	}
	return nil
}

func (a *FileAdapter) highestSequence(dir string) (int, error) {
	names, err := a.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, NewStorageIOError("readdir", dir, err)
	}

	highest := 0
	for _, de := range names {
		seq, ok := entrySequence(de.Name())
		if ok && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

// TransactionIdentifiers enumerates durably known transactions under the
// global lock.
func (a *FileAdapter) TransactionIdentifiers(ctx context.Context) ([]string, error) {
	var ids []string
	err := a.locks.WithGlobal(ctx, func() error {
		dir := filepath.Join(a.root, transactionsDir)
		des, err := a.fs.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return NewStorageIOError("readdir", dir, err)
		}
		for _, de := range des {
			if !de.IsDir() {
				continue
			}
			id, err := url.PathUnescape(de.Name())
			if err != nil {
				return NewDecodeError(filepath.Join(dir, de.Name()), err)
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
func (a *FileAdapter) Savepoints(ctx context.Context, transactionID string) ([]SavepointInfo, error) {
	var infos []SavepointInfo
	err := a.locks.WithTransaction(ctx, transactionID, func() error {
		dir := a.transactionDir(transactionID)
		des, err := a.fs.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return NewStorageIOError("readdir", dir, err)
		}

		for _, de := range des {
			if !de.IsDir() {
				continue
			}
			version, err := strconv.Atoi(de.Name())
			if err != nil {
				// Discarded savepoints and foreign files.
				continue
			}

			descPath := filepath.Join(dir, de.Name(), descriptorFile)
			data, err := fs.ReadFile(a.fs, descPath)
			if err != nil {
				if os.IsNotExist(err) {
					// Entries without a descriptor are a partial write;
					// synthesize the descriptor from the directory name.
					infos = append(infos, SavepointInfo{
						TransactionID: transactionID,
						Savepoint:     fmt.Sprintf("%s/%d", transactionID, version),
						Version:       version,
					})
					continue
				}
				return NewStorageIOError("read", descPath, err)
			}

			var rec descriptorRecord
			if err := a.codec.Unmarshal(data, &rec); err != nil {
				return NewDecodeError(descPath, err)
			}
			infos = append(infos, SavepointInfo{
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
// write order under the transaction lock.
func (a *FileAdapter) LogEntries(ctx context.Context, transactionID string, version int) ([]*entry.Entry, error) {
	var entries []*entry.Entry
	err := a.locks.WithTransaction(ctx, transactionID, func() error {
		dir := a.savepointDir(transactionID, version)
		des, err := a.fs.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return NewStorageIOError("readdir", dir, err)
		}

		var names []string
		for _, de := range des {
			if _, ok := entrySequence(de.Name()); ok {
				names = append(names, de.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			e, err := a.loadEntry(path)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (a *FileAdapter) loadEntry(path string) (*entry.Entry, error) {
	data, err := fs.ReadFile(a.fs, path)
	if err != nil {
		return nil, NewStorageIOError("read", path, err)
	}

	if strings.HasSuffix(path, compressSuffix) {
		data, err = a.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, NewDecodeError(path, err)
		}
	}

	var rec entry.Record
	if err := a.codec.Unmarshal(data, &rec); err != nil {
		return nil, NewDecodeError(path, err)
	}
	e, err := entry.FromRecord(rec)
	if err != nil {
		return nil, NewDecodeError(path, err)
	}
	return e, nil
}

// Discard abandons every savepoint above the given version by renaming its
// directory to "<version>.discarded"; nothing is deleted.
func (a *FileAdapter) Discard(ctx context.Context, transactionID string, aboveVersion int) error {
	return a.locks.WithTransaction(ctx, transactionID, func() error {
		dir := a.transactionDir(transactionID)
		des, err := a.fs.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return NewStorageIOError("readdir", dir, err)
		}

		for _, de := range des {
			if !de.IsDir() {
				continue
			}
			version, err := strconv.Atoi(de.Name())
			if err != nil || version <= aboveVersion {
				continue
			}

			src := filepath.Join(dir, de.Name())
			dst := filepath.Join(dir, de.Name()+discardedSuffix)
			for n := 2; ; n++ {
				if _, err := a.fs.Stat(dst); os.IsNotExist(err) {
					break
				}
				dst = filepath.Join(dir, fmt.Sprintf("%s%s-%d", de.Name(), discardedSuffix, n))
			}
			if err := a.fs.Rename(src, dst); err != nil {
				return NewStorageIOError("rename", src, err)
			}
		}
		return nil
	})
}

func (a *FileAdapter) transactionDir(transactionID string) string {
	return filepath.Join(a.root, transactionsDir, url.PathEscape(transactionID))
}

func (a *FileAdapter) savepointDir(transactionID string, version int) string {
	return filepath.Join(a.transactionDir(transactionID), strconv.Itoa(version))
}

type descriptorRecord struct {
	TransactionID string `json:"transaction_identifier"`
	Savepoint     string `json:"savepoint"`
	Version       int    `json:"savepoint_version"`
}

// savepointVersion extracts the numeric version from a "<txid>/<version>"
// savepoint key.
func savepointVersion(savepoint string) (int, error) {
	idx := strings.LastIndex(savepoint, "/")
	if idx < 0 {
		return 0, NewDecodeError(savepoint, fmt.Errorf("malformed savepoint key"))
	}
	version, err := strconv.Atoi(savepoint[idx+1:])
	if err != nil {
		return 0, NewDecodeError(savepoint, fmt.Errorf("malformed savepoint version: %w", err))
	}
	return version, nil
}

// entrySequence parses the sequence number from an entry file name.
func entrySequence(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, compressSuffix)
	if !ok {
		base, ok = strings.CutSuffix(name, entrySuffix)
		if !ok {
			return 0, false
		}
	}
	seq, err := strconv.Atoi(base)
	if err != nil {
		return 0, false
	}
	return seq, true
}
