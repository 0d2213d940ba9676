package blobdir

import (
	"bytes"
	"context"
	"io/fs"
	"sync"
)

// Writer buffers a file in memory. Nothing reaches the store until Flush or
// Close, each of which replaces the stored content with the whole buffer in
// one AtomicWrite, so readers never see a partial file.
//
// Flush and Close run with the values of the OpenWrite context but not its
// cancellation or deadline.
type Writer struct {
	dir  *Dir
	ctx  context.Context // detached from the caller's cancellation
	name string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

var _ WriteHandle = (*Writer)(nil)

func newWriter(ctx context.Context, d *Dir, name string) *Writer {
	return &Writer{
		dir:  d,
		ctx:  context.WithoutCancel(ctx),
		name: name,
	}
}

// Name returns the file the writer stores to.
func (w *Writer) Name() string {
	return w.name
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, &fs.PathError{Op: "write", Path: w.name, Err: fs.ErrClosed}
	}
	return w.buf.Write(p)
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &fs.PathError{Op: "flush", Path: w.name, Err: fs.ErrClosed}
	}
	return w.dir.AtomicWrite(w.ctx, w.name, w.buf.Bytes())
}

// Close stores the buffer and releases it. The writer is unusable afterwards,
// even if storing failed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &fs.PathError{Op: "close", Path: w.name, Err: fs.ErrClosed}
	}
	w.closed = true
	err := w.dir.AtomicWrite(w.ctx, w.name, w.buf.Bytes())
	w.buf = bytes.Buffer{}
	return err
}
