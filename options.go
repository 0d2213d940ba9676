package blobdir

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aweris/blobdir/internal/store"
)

// ReadMode selects how GetFileHandle serves reads.
type ReadMode string

const (
	// ReadStreaming reads each requested range straight from the row.
	ReadStreaming ReadMode = "streaming"
	// ReadBuffered loads the whole file when the handle is opened.
	ReadBuffered ReadMode = "buffered"
)

const (
	DefaultMetaName = "meta.json"
	DefaultPoolSize = 8
	DefaultTable    = store.DefaultTable
)

// Options configures a Dir.
type Options struct {
	Table            string
	MetaName         string
	ReadMode         ReadMode
	Cache            bool
	Compression      bool
	CompressionLevel int
	PoolSize         int
	Registerer       prometheus.Registerer
}

// Option is a functional option for configuring Open and New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Table:    DefaultTable,
		MetaName: DefaultMetaName,
		ReadMode: ReadStreaming,
		Cache:    true,
		PoolSize: DefaultPoolSize,
	}
}

// WithTable sets the backing table name.
func WithTable(table string) Option {
	return func(o *Options) { o.Table = table }
}

// WithMetaName sets the file whose writes notify watchers.
func WithMetaName(name string) Option {
	return func(o *Options) { o.MetaName = name }
}

// WithReadMode selects streaming or buffered file handles.
func WithReadMode(mode ReadMode) Option {
	return func(o *Options) { o.ReadMode = mode }
}

// WithCache enables or disables the file cache used by buffered handles.
func WithCache(enabled bool) Option {
	return func(o *Options) { o.Cache = enabled }
}

// WithCompression stores content zstd-compressed at the given level (1-4).
// Compressed directories always serve buffered handles.
func WithCompression(level int) Option {
	return func(o *Options) {
		o.Compression = true
		o.CompressionLevel = level
	}
}

// WithPoolSize bounds the number of open connections. Only used by Open.
func WithPoolSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

// WithRegisterer registers the directory metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) { o.Registerer = reg }
}
