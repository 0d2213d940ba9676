package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"

	"github.com/aweris/blobdir/internal/compression"
	"github.com/aweris/blobdir/internal/metrics"
)

var log = logrus.WithField("logger", "sqlite_store")

// SQLiteStore implements Store on a single SQLite table.
//
// The pool is owned by the caller. With an enabled compressor every content
// value is stored encoded, which rules out positioned reads.
type SQLiteStore struct {
	db         *sqlx.DB
	table      string
	compressor *compression.Compressor
	metrics    *metrics.Metrics
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store on db. A nil compressor stores content verbatim.
func NewSQLiteStore(db *sqlx.DB, table string, compressor *compression.Compressor, m *metrics.Metrics) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("blobdir: nil database pool")
	}
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	if compressor == nil {
		compressor, _ = compression.NewCompressor(0, false)
	}

	log.WithField("table", table).WithField("compression", compressor.Enabled()).Debug("Creating SQLite blob store")
	return &SQLiteStore{
		db:         db,
		table:      table,
		compressor: compressor,
		metrics:    m,
	}, nil
}

// Table returns the name of the backing table.
func (s *SQLiteStore) Table() string {
	return s.table
}

// Compressed reports whether content is stored encoded.
func (s *SQLiteStore) Compressed() bool {
	return s.compressor.Enabled()
}

// Exists implements Store.
func (s *SQLiteStore) Exists(ctx context.Context, name string) (ok bool, err error) {
	defer s.observe(ctx, "exists", &err)()

	conn, err := s.conn(ctx, "exists", name)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var one int
	err = conn.GetContext(ctx, &one, "SELECT 1 FROM "+s.table+" WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.fail("exists", name, err)
	}
	return true, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, name string) (err error) {
	defer s.observe(ctx, "delete", &err)()

	conn, err := s.conn(ctx, "delete", name)
	if err != nil {
		return err
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE name = ?", name)
	if err != nil {
		return s.fail("delete", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("delete", name, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateEmpty implements Store.
func (s *SQLiteStore) CreateEmpty(ctx context.Context, name string) (err error) {
	defer s.observe(ctx, "create_empty", &err)()

	conn, err := s.conn(ctx, "create_empty", name)
	if err != nil {
		return err
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+s.table+" (name, content) VALUES (?, ?)",
		name, s.compressor.Encode([]byte{}))
	if err != nil {
		return s.fail("create_empty", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("create_empty", name, err)
	}
	if n != 1 {
		return ErrAlreadyExists
	}
	return nil
}

// Write implements Store.
func (s *SQLiteStore) Write(ctx context.Context, name string, data []byte) (err error) {
	defer s.observe(ctx, "write", &err)()

	// a nil slice binds as NULL
	if data == nil {
		data = []byte{}
	}

	conn, err := s.conn(ctx, "write", name)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO "+s.table+" (name, content) VALUES (?, ?)",
		name, s.compressor.Encode(data))
	if err != nil {
		log.WithField("name", name).WithField("blob_length", len(data)).WithError(err).Error("Error writing blob")
		return s.fail("write", name, err)
	}
	return nil
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, name string) (data []byte, err error) {
	defer s.observe(ctx, "read", &err)()

	conn, err := s.conn(ctx, "read", name)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return s.readOn(ctx, conn, name)
}

func (s *SQLiteStore) readOn(ctx context.Context, q sqlx.QueryerContext, name string) ([]byte, error) {
	var content []byte
	err := sqlx.GetContext(ctx, q, &content, "SELECT content FROM "+s.table+" WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.fail("read", name, err)
	}

	data, err := s.compressor.Decode(content)
	if err != nil {
		return nil, s.fail("read", name, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Stat implements Store.
func (s *SQLiteStore) Stat(ctx context.Context, name string) (row Row, err error) {
	defer s.observe(ctx, "stat", &err)()

	conn, err := s.conn(ctx, "stat", name)
	if err != nil {
		return Row{}, err
	}
	defer conn.Close()

	return s.statOn(ctx, conn, name)
}

func (s *SQLiteStore) statOn(ctx context.Context, q sqlx.QueryerContext, name string) (Row, error) {
	if s.compressor.Enabled() {
		// stored length is the encoded one
		var rec struct {
			ID      int64  `db:"id"`
			Content []byte `db:"content"`
		}
		err := sqlx.GetContext(ctx, q, &rec, "SELECT rowid AS id, content FROM "+s.table+" WHERE name = ?", name)
		if errors.Is(err, sql.ErrNoRows) {
			return Row{}, ErrNotFound
		}
		if err != nil {
			return Row{}, s.fail("stat", name, err)
		}
		data, err := s.compressor.Decode(rec.Content)
		if err != nil {
			return Row{}, s.fail("stat", name, err)
		}
		return Row{ID: rec.ID, Size: int64(len(data))}, nil
	}

	var row Row
	err := sqlx.GetContext(ctx, q, &row, "SELECT rowid AS id, length(content) AS size FROM "+s.table+" WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, s.fail("stat", name, err)
	}
	return row, nil
}

// OpenReader implements Store.
func (s *SQLiteStore) OpenReader(ctx context.Context, name string) (r *RowReader, err error) {
	defer s.observe(ctx, "open_reader", &err)()

	if s.compressor.Enabled() {
		return nil, fmt.Errorf("%w: positioned reads are unavailable on compressed content", ErrStoreFailure)
	}

	conn, err := s.conn(ctx, "open_reader", name)
	if err != nil {
		return nil, err
	}

	row, err := s.statOn(ctx, conn, name)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &RowReader{
		store: s,
		conn:  conn,
		name:  name,
		row:   row,
	}, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, prefix string) (entries []Entry, err error) {
	defer s.observe(ctx, "list", &err)()

	conn, err := s.conn(ctx, "list", prefix)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if !s.compressor.Enabled() {
		err = conn.SelectContext(ctx, &entries,
			"SELECT name, length(content) AS size FROM "+s.table+" WHERE substr(name, 1, length(?)) = ? ORDER BY name",
			prefix, prefix)
		if err != nil {
			return nil, s.fail("list", prefix, err)
		}
		return entries, nil
	}

	rows, err := conn.QueryxContext(ctx,
		"SELECT name, content FROM "+s.table+" WHERE substr(name, 1, length(?)) = ? ORDER BY name",
		prefix, prefix)
	if err != nil {
		return nil, s.fail("list", prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name    string
			content []byte
		)
		if err := rows.Scan(&name, &content); err != nil {
			return nil, s.fail("list", prefix, err)
		}
		data, err := s.compressor.Decode(content)
		if err != nil {
			return nil, s.fail("list", name, err)
		}
		entries = append(entries, Entry{Name: name, Size: int64(len(data))})
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list", prefix, err)
	}
	return entries, nil
}

func (s *SQLiteStore) conn(ctx context.Context, op, name string) (*sqlx.Conn, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, s.fail(op, name, fmt.Errorf("acquire connection: %w", err))
	}
	return conn, nil
}

func (s *SQLiteStore) fail(op, name string, err error) error {
	log.WithField("op", op).WithField("name", name).WithError(err).Error("Blob table statement failed")
	return fmt.Errorf("%w: %s %s: %w", ErrStoreFailure, op, name, err)
}

// observe starts a span and a timer for op and returns the func that ends them.
func (s *SQLiteStore) observe(ctx context.Context, op string, errp *error) func() {
	span, _ := opentracing.StartSpanFromContext(ctx, "sqlite_"+op)
	span.SetTag("db.table", s.table)
	start := time.Now()

	return func() {
		res := Result(*errp)
		if res == ResultError {
			ext.Error.Set(span, true)
		}
		span.Finish()
		s.metrics.ObserveOp(op, res, time.Since(start))
	}
}

// Operation outcomes, as reported to metrics.
const (
	ResultOK            = "ok"
	ResultNotFound      = "not_found"
	ResultAlreadyExists = "already_exists"
	ResultError         = "error"
)

// Result classifies err into one of the Result constants.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrNotFound):
		return ResultNotFound
	case errors.Is(err, ErrAlreadyExists):
		return ResultAlreadyExists
	default:
		return ResultError
	}
}
