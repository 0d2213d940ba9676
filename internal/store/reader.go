package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
)

// ErrRowChanged is returned when the row behind a reader is gone or no longer
// has the length it had when the reader was opened.
var ErrRowChanged = errors.New("blobdir: row changed since it was resolved")

// RowReader serves positioned reads of one row, addressed by rowid.
//
// It keeps its pooled connection until Close. The rowid is resolved once;
// callers must not rely on it after the name has been rewritten. A RowReader
// is not safe for concurrent use.
type RowReader struct {
	store *SQLiteStore
	conn  *sqlx.Conn
	name  string
	row   Row
}

// Row returns the rowid and length resolved at open time.
func (r *RowReader) Row() Row {
	return r.row
}

// ReadAt fills p with the content starting at off. Only the requested range
// leaves the database.
func (r *RowReader) ReadAt(ctx context.Context, p []byte, off int64) (err error) {
	defer r.store.observe(ctx, "read_at", &err)()

	if r.conn == nil {
		return fmt.Errorf("%w: reader closed", ErrStoreFailure)
	}

	var rec struct {
		Size int64  `db:"size"`
		Data []byte `db:"data"`
	}
	err = r.conn.GetContext(ctx, &rec,
		"SELECT length(content) AS size, substr(content, ?+1, ?) AS data FROM "+r.store.table+" WHERE rowid = ?",
		off, len(p), r.row.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = ErrRowChanged
	case err != nil:
	case rec.Size != r.row.Size:
		err = ErrRowChanged
	case len(rec.Data) < len(p):
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return r.store.fail("read_at", r.name, err)
	}

	copy(p, rec.Data)
	return nil
}

// Close returns the connection to the pool.
func (r *RowReader) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
