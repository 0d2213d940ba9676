package blobdir

import (
	"context"
	"io"
)

// Directory is the storage contract of the index engine.
type Directory interface {
	GetFileHandle(ctx context.Context, name string) (FileHandle, error)
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	OpenWrite(ctx context.Context, name string) (WriteHandle, error)
	AtomicRead(ctx context.Context, name string) ([]byte, error)
	AtomicWrite(ctx context.Context, name string, data []byte) error
	SyncDirectory(ctx context.Context) error // no-op, durability is the store's
	Watch(cb WatchCallback) *WatchHandle     // notified on metadata writes
}

// FileHandle is a random-access view of one file with a fixed length.
type FileHandle interface {
	io.ReaderAt
	io.Closer

	// Len returns the length resolved when the handle was opened.
	Len() int64

	// ReadBytes returns exactly the bytes in [start, end).
	ReadBytes(ctx context.Context, start, end int64) ([]byte, error)
}

// WriteHandle buffers a file in memory until Flush or Close.
type WriteHandle interface {
	io.WriteCloser

	// Flush replaces the stored content with everything written so far.
	Flush() error
}

// FileInfo describes a stored file.
type FileInfo struct {
	Name string
	Size int64
}
