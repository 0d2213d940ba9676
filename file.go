package blobdir

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"sync"

	"github.com/aweris/blobdir/internal/store"
)

// streamFile reads ranges from the row resolved at open time. It pins the
// epoch entry of its name until Close.
//
// Reads are serialized on the connection held by the reader. Every read checks the write epoch of the name on both sides of
// the positioned read and fails with ErrStaleHandle once the name has been
// rewritten or deleted, since the rowid may then point to another row.
type streamFile struct {
	dir   *Dir
	name  string
	epoch epoch
	size  int64

	mu     sync.Mutex
	reader *store.RowReader // nil after Close
}

func newStreamFile(d *Dir, name string, r *store.RowReader, ep epoch) *streamFile {
	return &streamFile{
		dir:    d,
		name:   name,
		epoch:  ep,
		size:   r.Row().Size,
		reader: r,
	}
}

func (f *streamFile) Len() int64 {
	return f.size
}

func (f *streamFile) ReadBytes(ctx context.Context, start, end int64) ([]byte, error) {
	if !validRange(start, end, f.size) {
		return nil, pathError("read", f.name, ErrInvalidRange)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader == nil {
		return nil, pathError("read", f.name, fs.ErrClosed)
	}
	if f.stale() {
		return nil, pathError("read", f.name, ErrStaleHandle)
	}

	buf := make([]byte, end-start)
	err := f.reader.ReadAt(ctx, buf, start)
	if f.stale() {
		return nil, pathError("read", f.name, ErrStaleHandle)
	}
	if err != nil {
		return nil, pathError("read", f.name, err)
	}
	return buf, nil
}

func (f *streamFile) stale() bool {
	return f.dir.epochs.get(f.name) != f.epoch
}

func (f *streamFile) ReadAt(p []byte, off int64) (int, error) {
	return readAt(f, f.name, p, off)
}

func (f *streamFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader == nil {
		return nil
	}
	err := f.reader.Close()
	f.reader = nil
	f.dir.epochs.release(f.name)
	return err
}

// bufferedFile serves reads from content loaded at open time.
type bufferedFile struct {
	name string
	size int64

	mu  sync.RWMutex
	buf *store.Buffer // strong reference keeping the cache entry alive; nil after Close
}

func newBufferedFile(name string, b *store.Buffer) *bufferedFile {
	return &bufferedFile{name: name, size: b.Len(), buf: b}
}

func (f *bufferedFile) Len() int64 {
	return f.size
}

func (f *bufferedFile) ReadBytes(_ context.Context, start, end int64) ([]byte, error) {
	if !validRange(start, end, f.size) {
		return nil, pathError("read", f.name, ErrInvalidRange)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.buf == nil {
		return nil, pathError("read", f.name, fs.ErrClosed)
	}
	return bytes.Clone(f.buf.Bytes()[start:end]), nil
}

func (f *bufferedFile) ReadAt(p []byte, off int64) (int, error) {
	return readAt(f, f.name, p, off)
}

func (f *bufferedFile) Close() error {
	f.mu.Lock()
	f.buf = nil
	f.mu.Unlock()
	return nil
}

func validRange(start, end, size int64) bool {
	return start >= 0 && start <= end && end <= size
}

// readAt implements io.ReaderAt on top of ReadBytes.
func readAt(h FileHandle, name string, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, pathError("read", name, ErrInvalidRange)
	}
	size := h.Len()
	if off >= size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	end := min(off+int64(len(p)), size)
	data, err := h.ReadBytes(context.Background(), off, end)
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
