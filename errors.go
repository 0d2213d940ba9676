package blobdir

import (
	"errors"
	"io/fs"

	"github.com/aweris/blobdir/internal/store"
)

var (
	ErrNotFound       = store.ErrNotFound
	ErrAlreadyExists  = store.ErrAlreadyExists
	ErrStoreFailure   = store.ErrStoreFailure
	ErrInitialization = store.ErrInitialization

	ErrStaleHandle  = errors.New("blobdir: file was rewritten after the handle was opened")
	ErrInvalidRange = errors.New("blobdir: invalid byte range")
)

// pathError wraps err for op on name. Errors outside the taxonomy are
// reported as store failures.
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrStoreFailure),
		errors.Is(err, ErrInitialization),
		errors.Is(err, ErrStaleHandle),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, fs.ErrInvalid),
		errors.Is(err, fs.ErrClosed):
	default:
		err = errors.Join(ErrStoreFailure, err)
	}
	return &fs.PathError{Op: op, Path: name, Err: err}
}

func validName(op, name string) error {
	if name == "." || !fs.ValidPath(name) {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return nil
}
