// Package blobdir provides the file directory of a full-text index engine on
// top of a single SQLite table.
//
// Every file is one row (name, content). Writes replace the whole row in one
// statement, reads are either whole-file or positioned reads of a byte
// range of the row, and writes of the metadata file ("meta.json" by default) notify
// watchers synchronously.
//
// Basic usage:
//
//	dir, _ := blobdir.Open("index.db")
//	defer dir.Close()
//
//	// Replace content
//	dir.AtomicWrite(ctx, "meta.json", data)
//
//	// Whole-file read
//	data, _ := dir.AtomicRead(ctx, "meta.json")
//
//	// Streamed write, stored on Close
//	w, _ := dir.OpenWrite(ctx, "segment.idx")
//	w.Write(chunk)
//	w.Close()
//
//	// Random access
//	f, _ := dir.GetFileHandle(ctx, "segment.idx")
//	defer f.Close()
//	head, _ := f.ReadBytes(ctx, 0, 16)
//
//	// Change notification
//	h := dir.Watch(func() { reload() })
//	defer h.Close()
//
// Operations are atomic one by one; nothing spans two calls. A streaming file
// handle fails with ErrStaleHandle once its file is rewritten through the same
// Dir. Buffered handles keep the content they loaded. See Options for the
// read mode, the file cache and compression.
package blobdir
