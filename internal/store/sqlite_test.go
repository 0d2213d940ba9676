package store

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/blobdir/internal/compression"
	"github.com/aweris/blobdir/internal/metrics"
)

func TestShouldCreateTableIdempotently(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "a", []byte("data")))

		require.NoError(t, s.Init(ctx))

		data, err := s.Read(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), data)
	})
}

func TestShouldRejectInvalidTableName(t *testing.T) {
	db := openTestDB(t)

	_, err := NewSQLiteStore(db, "blobs; DROP TABLE x", nil, nil)
	assert.Error(t, err)
}

func TestShouldCreateEmptyFile(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.CreateEmpty(ctx, "empty"))

		data, err := s.Read(ctx, "empty")
		require.NoError(t, err)
		assert.NotNil(t, data)
		assert.Empty(t, data)
	})
}

func TestShouldFailCreatingExistingFile(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "a", []byte("data")))

		err := s.CreateEmpty(ctx, "a")
		assert.ErrorIs(t, err, ErrAlreadyExists)

		data, err := s.Read(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), data, "existing content must be kept")
	})
}

func TestShouldReplaceContentOnWrite(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "a", []byte("first version")))
		require.NoError(t, s.Write(ctx, "a", []byte("second")))

		data, err := s.Read(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), data)
	})
}

func TestShouldStoreNilAsEmpty(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "a", nil))

		data, err := s.Read(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, data)
	})
}

func TestShouldFailWithUnknownFile(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()

		data, err := s.Read(ctx, "missing")
		assert.Nil(t, data)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Stat(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.OpenReader(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)
	})
}

func TestShouldDeleteFile(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "a", []byte("data")))

		ok, err := s.Exists(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.Delete(ctx, "a"))

		ok, err = s.Exists(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestShouldMoveRowOnReplace(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "a", []byte("aaaa")))
		require.NoError(t, s.Write(ctx, "b", []byte("bb")))

		before, err := s.Stat(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(4), before.Size)

		require.NoError(t, s.Write(ctx, "a", []byte("aaaaaa")))

		after, err := s.Stat(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(6), after.Size)
		assert.NotEqual(t, before.ID, after.ID, "replace is delete+insert")
	})
}

func TestShouldReadRanges(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "some/file/path.txt", []byte("hello, world!")))

		r, err := s.OpenReader(ctx, "some/file/path.txt")
		require.NoError(t, err)
		defer r.Close()

		assert.Equal(t, int64(13), r.Row().Size)

		buf := make([]byte, 4)
		require.NoError(t, r.ReadAt(ctx, buf, 3))
		assert.Equal(t, "lo, ", string(buf))

		buf = make([]byte, 6)
		require.NoError(t, r.ReadAt(ctx, buf, 7))
		assert.Equal(t, "world!", string(buf))

		err = r.ReadAt(ctx, make([]byte, 4), 12)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "read past the end")

		require.NoError(t, r.ReadAt(ctx, nil, 13))
	})
}

func TestShouldFailReadingReplacedRow(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "a", []byte("aaaa")))
		require.NoError(t, s.Write(ctx, "b", []byte("bbbb")))

		r, err := s.OpenReader(ctx, "a")
		require.NoError(t, err)
		defer r.Close()

		require.NoError(t, s.Write(ctx, "a", []byte("AAAA")))

		err = r.ReadAt(ctx, make([]byte, 4), 0)
		assert.ErrorIs(t, err, ErrStoreFailure)
		assert.ErrorIs(t, err, ErrRowChanged)
	})
}

func TestShouldFailReadingDeletedRow(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "a", []byte("aaaa")))

		r, err := s.OpenReader(ctx, "a")
		require.NoError(t, err)
		defer r.Close()

		require.NoError(t, s.Delete(ctx, "a"))

		err = r.ReadAt(ctx, make([]byte, 2), 0)
		assert.ErrorIs(t, err, ErrRowChanged)
	})
}

func TestShouldFailReadingClosedReader(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		require.NoError(t, s.Write(ctx, "a", []byte("aaaa")))

		r, err := s.OpenReader(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, r.Close())
		require.NoError(t, r.Close())

		assert.ErrorIs(t, r.ReadAt(ctx, make([]byte, 2), 0), ErrStoreFailure)
	})
}

func TestShouldListByPrefix(t *testing.T) {
	withStore(t, func(s *SQLiteStore) {
		ctx := context.Background()
		for name, data := range map[string]string{
			"seg/b.idx": "bb",
			"seg/a.idx": "a",
			"meta.json": "{}",
			"segment":   "xyz",
		} {
			require.NoError(t, s.Write(ctx, name, []byte(data)))
		}

		got, err := s.List(ctx, "seg/")
		require.NoError(t, err)
		want := []Entry{{Name: "seg/a.idx", Size: 1}, {Name: "seg/b.idx", Size: 2}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("List(seg/) mismatch (-want +got):\n%s", diff)
		}

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestShouldCompressContent(t *testing.T) {
	c, err := compression.NewCompressor(2, true)
	require.NoError(t, err)
	defer c.Close()

	db := openTestDB(t)
	s, err := NewSQLiteStore(db, "", c, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	data := bytes.Repeat([]byte("segment data "), 400)
	require.NoError(t, s.Write(ctx, "big", data))
	require.NoError(t, s.CreateEmpty(ctx, "empty"))

	got, err := s.Read(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	row, err := s.Stat(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), row.Size)

	var stored int64
	require.NoError(t, db.Get(&stored, "SELECT length(content) FROM "+DefaultTable+" WHERE name = ?", "big"))
	assert.Less(t, stored, int64(len(data)))

	entries, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "big", Size: int64(len(data))}, {Name: "empty", Size: 0}}, entries)

	_, err = s.OpenReader(ctx, "big")
	assert.ErrorIs(t, err, ErrStoreFailure)
}

func TestShouldCountOperations(t *testing.T) {
	m, err := metrics.New(nil)
	require.NoError(t, err)

	db := openTestDB(t)
	s, err := NewSQLiteStore(db, "", nil, m)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	require.NoError(t, s.Write(ctx, "a", []byte("x")))
	_, _ = s.Read(ctx, "missing")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("write", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("read", ResultNotFound)))
}

func TestShouldFailInitOnClosedPool(t *testing.T) {
	db := openTestDB(t)
	s, err := NewSQLiteStore(db, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = s.Init(context.Background())
	assert.ErrorIs(t, err, ErrInitialization)
}

func withStore(t *testing.T, testFunc func(s *SQLiteStore)) {
	db := openTestDB(t)

	s, err := NewSQLiteStore(db, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	testFunc(s)
}

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := sqlx.Open("sqlite3", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { db.Close() })
	return db
}
