// Package store implements the blob table underneath a blobdir directory.
//
// Every file is one row of a single SQLite table:
//
//	CREATE TABLE index_blobs (
//	  name    TEXT UNIQUE NOT NULL,
//	  content BLOB NOT NULL
//	)
//
// Each operation borrows exactly one connection from the pool and runs a
// single statement, so operations are atomic in isolation but never share a
// transaction. Positioned reads select a substr of the row keyed by rowid,
// which does not survive a replace of the row.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// ErrNotFound and ErrAlreadyExists match fs.ErrNotExist and fs.ErrExist.
var (
	ErrNotFound       = fmt.Errorf("blobdir: %w", fs.ErrNotExist)
	ErrAlreadyExists  = fmt.Errorf("blobdir: %w", fs.ErrExist)
	ErrStoreFailure   = errors.New("blobdir: store failure")
	ErrInitialization = errors.New("blobdir: schema initialization failed")
)

// Row identifies the physical row behind a name at the time it was resolved.
type Row struct {
	ID   int64 `db:"id"`
	Size int64 `db:"size"`
}

// Entry is a name and its content length, as returned by List.
type Entry struct {
	Name string `db:"name"`
	Size int64  `db:"size"`
}

// Store handles the blob table.
type Store interface {
	// Init creates the table if it does not exist.
	Init(ctx context.Context) error

	// Exists reports whether a row exists for name.
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes the row for name. Returns ErrNotFound if there was none.
	Delete(ctx context.Context, name string) error

	// CreateEmpty inserts an empty row unless one exists (ErrAlreadyExists).
	CreateEmpty(ctx context.Context, name string) error

	// Write replaces the whole content of name, creating the row if needed.
	Write(ctx context.Context, name string, data []byte) error

	// Read returns the whole content of name.
	Read(ctx context.Context, name string) ([]byte, error)

	// Stat resolves name to its current rowid and content length.
	Stat(ctx context.Context, name string) (Row, error)

	// OpenReader resolves name on a dedicated connection kept until Close.
	OpenReader(ctx context.Context, name string) (*RowReader, error)

	// List returns the entries whose name starts with prefix, ordered by name.
	List(ctx context.Context, prefix string) ([]Entry, error)
}
