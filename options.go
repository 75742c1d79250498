package txlog

import (
	"github.com/hupe1980/txlog/adapter"
	"github.com/hupe1980/txlog/codec"
	"github.com/hupe1980/txlog/lock"
)

// Options contains configuration for a Manager.
type Options struct {
	// Path is the storage root for the default file-backed adapter. Ignored
	// when Adapter is set.
	Path string

	// Adapter is the persistence backend. Defaults to a file-backed adapter
	// under Path.
	Adapter adapter.Adapter

	// Locks provides the global and per-transaction locks. Defaults to the
	// default adapter's file-backed manager, or an in-process manager when a
	// custom adapter is supplied.
	Locks lock.Manager

	// Codec encodes stored records for the default file-backed adapter.
	Codec codec.Codec

	// Compress enables zstd compression of entry files in the default
	// file-backed adapter.
	Compress bool

	// Registry holds this manager's transactions. Defaults to a fresh one.
	Registry *Registry

	// Logger receives structured operational logs. Defaults to a no-op
	// logger.
	Logger *Logger
}

// DefaultOptions returns default Manager options.
var DefaultOptions = Options{
	Path: "txlog-data",
}
