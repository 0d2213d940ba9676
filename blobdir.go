package blobdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/sirupsen/logrus"

	"github.com/aweris/blobdir/internal/compression"
	"github.com/aweris/blobdir/internal/metrics"
	"github.com/aweris/blobdir/internal/store"
)

var log = logrus.WithField("logger", "blobdir")

// Dir is a file directory stored in one SQLite table.
//
// It owns the state shared by its handles: the file cache, the watch
// registry and the write epochs. Handles keep a reference to their Dir.
type Dir struct {
	db         *sqlx.DB
	ownsDB     bool
	store      *store.SQLiteStore
	compressor *compression.Compressor
	metrics    *metrics.Metrics
	registerer prometheus.Registerer // nil when metrics are not exported

	metaName string
	readMode ReadMode
	cache    *store.FileCache // nil when disabled

	watchers *watchRegistry
	epochs   *epochs
}

var _ Directory = (*Dir)(nil)

// Open opens (creating if needed) the SQLite database at path and returns a
// Dir that owns its connection pool.
func Open(path string, opts ...Option) (*Dir, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", FileDSN(path))
	if err != nil {
		log.WithField("path", path).WithError(err).Error("Couldn't open db")
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(options.PoolSize)
	db.SetMaxIdleConns(options.PoolSize)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		log.WithField("path", path).WithError(err).Error("Couldn't ping db")
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d, err := newDir(db, options)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	d.ownsDB = true
	return d, nil
}

// FileDSN returns the go-sqlite3 data source name Open uses for path.
func FileDSN(path string) string {
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}

// New creates a Dir on an existing pool, which stays owned by the caller.
// The table is created if missing; any failure there is fatal.
func New(db *sqlx.DB, opts ...Option) (*Dir, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return newDir(db, options)
}

func newDir(db *sqlx.DB, o *Options) (*Dir, error) {
	// registered once the table is ready
	m, err := metrics.New(nil)
	if err != nil {
		return nil, err
	}

	compressor, err := compression.NewCompressor(o.CompressionLevel, o.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: create compressor: %w", ErrInitialization, err)
	}

	st, err := store.NewSQLiteStore(db, o.Table, compressor, m)
	if err != nil {
		compressor.Close()
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	if err := st.Init(context.Background()); err != nil {
		compressor.Close()
		return nil, err
	}

	mode := o.ReadMode
	if mode != ReadBuffered && mode != ReadStreaming {
		compressor.Close()
		return nil, fmt.Errorf("%w: unknown read mode %q", ErrInitialization, mode)
	}
	if o.Registerer != nil {
		if err := m.Register(o.Registerer); err != nil {
			compressor.Close()
			return nil, fmt.Errorf("%w: register metrics: %w", ErrInitialization, err)
		}
	}
	if compressor.Enabled() && mode == ReadStreaming {
		log.WithField("table", st.Table()).Debug("Compression enabled, serving buffered file handles")
		mode = ReadBuffered
	}

	d := &Dir{
		db:         db,
		store:      st,
		compressor: compressor,
		metrics:    m,
		registerer: o.Registerer,
		metaName:   o.MetaName,
		readMode:   mode,
		watchers:   &watchRegistry{metrics: m},
		epochs:     newEpochs(),
	}
	if o.Cache {
		d.cache = store.NewFileCache()
	}

	log.WithField("table", st.Table()).WithField("read_mode", mode).Info("Opened blob directory")
	return d, nil
}

// ReadMode returns the effective read mode.
func (d *Dir) ReadMode() ReadMode {
	return d.readMode
}

func (d *Dir) String() string {
	return "blobdir.Dir(" + d.store.Table() + ")"
}

// Exists reports whether name has a row.
func (d *Dir) Exists(ctx context.Context, name string) (bool, error) {
	if err := validName("exists", name); err != nil {
		return false, err
	}
	ok, err := d.store.Exists(ctx, name)
	if err != nil {
		return false, pathError("exists", name, err)
	}
	return ok, nil
}

// Delete removes name. Returns ErrNotFound if it does not exist.
func (d *Dir) Delete(ctx context.Context, name string) error {
	if err := validName("delete", name); err != nil {
		return err
	}
	done := d.epochs.begin(name)
	err := d.store.Delete(ctx, name)
	done()
	return pathError("delete", name, err)
}

// OpenWrite creates name empty and returns a handle that stores its content
// on Flush and Close. It fails with ErrAlreadyExists if name exists.
func (d *Dir) OpenWrite(ctx context.Context, name string) (WriteHandle, error) {
	if err := validName("open_write", name); err != nil {
		return nil, err
	}
	done := d.epochs.begin(name)
	err := d.store.CreateEmpty(ctx, name)
	done()
	if err != nil {
		return nil, pathError("open_write", name, err)
	}
	return newWriter(ctx, d, name), nil
}

// AtomicRead returns the whole content of name.
func (d *Dir) AtomicRead(ctx context.Context, name string) ([]byte, error) {
	if err := validName("atomic_read", name); err != nil {
		return nil, err
	}
	data, err := d.store.Read(ctx, name)
	if err != nil {
		return nil, pathError("atomic_read", name, err)
	}
	return data, nil
}

// AtomicWrite replaces the content of name. Writing the metadata file
// notifies watchers before returning.
func (d *Dir) AtomicWrite(ctx context.Context, name string, data []byte) error {
	if err := validName("atomic_write", name); err != nil {
		return err
	}
	done := d.epochs.begin(name)
	err := d.store.Write(ctx, name, data)
	done()
	if err != nil {
		return pathError("atomic_write", name, err)
	}

	if name == d.metaName {
		d.watchers.broadcast()
	}
	return nil
}

// GetFileHandle opens name for random-access reads.
func (d *Dir) GetFileHandle(ctx context.Context, name string) (FileHandle, error) {
	if err := validName("open", name); err != nil {
		return nil, err
	}
	if d.readMode == ReadBuffered {
		return d.openCached(ctx, name)
	}

	before := d.epochs.acquire(name)
	r, err := d.store.OpenReader(ctx, name)
	if err != nil {
		d.epochs.release(name)
		return nil, pathError("open", name, err)
	}
	if !before.stable() || d.epochs.get(name) != before {
		// a mutation raced the rowid lookup
		_ = r.Close()
		d.epochs.release(name)
		log.WithField("name", name).Debug("File rewritten while opening, serving buffered handle")
		return d.openBuffered(ctx, name)
	}
	return newStreamFile(d, name, r, before), nil
}

func (d *Dir) openCached(ctx context.Context, name string) (FileHandle, error) {
	if d.cache == nil {
		return d.openBuffered(ctx, name)
	}

	if b, ok := d.cache.Get(name); ok {
		d.metrics.CacheHit()
		return newBufferedFile(name, b), nil
	}
	d.metrics.CacheMiss()

	data, err := d.store.Read(ctx, name)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	return newBufferedFile(name, d.cache.Store(name, data)), nil
}

func (d *Dir) openBuffered(ctx context.Context, name string) (FileHandle, error) {
	data, err := d.store.Read(ctx, name)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	return newBufferedFile(name, store.NewBuffer(data)), nil
}

// SyncDirectory is a no-op: every write is committed by the store.
func (d *Dir) SyncDirectory(ctx context.Context) error {
	return nil
}

// Watch subscribes cb to writes of the metadata file.
func (d *Dir) Watch(cb WatchCallback) *WatchHandle {
	return d.watchers.subscribe(cb)
}

// Stat returns the current length of name.
func (d *Dir) Stat(ctx context.Context, name string) (FileInfo, error) {
	if err := validName("stat", name); err != nil {
		return FileInfo{}, err
	}
	row, err := d.store.Stat(ctx, name)
	if err != nil {
		return FileInfo{}, pathError("stat", name, err)
	}
	return FileInfo{Name: name, Size: row.Size}, nil
}

// List returns the files whose name starts with prefix, ordered by name.
func (d *Dir) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	entries, err := d.store.List(ctx, prefix)
	if err != nil {
		return nil, pathError("list", prefix, err)
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, FileInfo{Name: e.Name, Size: e.Size})
	}
	return infos, nil
}

// Close releases the compressor, unregisters the metrics and, for directories
// created by Open, closes the pool. Open handles must be closed first.
func (d *Dir) Close() error {
	d.compressor.Close()
	if d.registerer != nil {
		d.metrics.Unregister(d.registerer)
	}
	if d.ownsDB {
		return d.db.Close()
	}
	return nil
}
