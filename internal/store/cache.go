package store

import (
	"runtime"
	"sync"
	"weak"
)

// Buffer is an immutable file content shared between the cache and its readers.
// The cache only keeps a weak pointer: the entry lives as long as some caller
// holds the *Buffer.
type Buffer struct {
	data []byte
}

// NewBuffer wraps data without copying it.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the content. Callers must not modify it.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Len() int64 {
	return int64(len(b.data))
}

// FileCache memoizes file contents by name behind weak pointers.
//
// Entries are never invalidated by writes or deletes: a lookup after a write
// returns the old content for as long as a reader from before the write still
// holds it.
type FileCache struct {
	mu      sync.RWMutex
	entries map[string]weak.Pointer[Buffer]
}

func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[string]weak.Pointer[Buffer])}
}

// Get returns the cached buffer for name if it is still alive.
func (c *FileCache) Get(name string) (*Buffer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wp, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	b := wp.Value()
	return b, b != nil
}

// Store caches data under name and returns the strong reference to it.
func (c *FileCache) Store(name string, data []byte) *Buffer {
	b := NewBuffer(data)
	wp := weak.Make(b)

	c.mu.Lock()
	c.entries[name] = wp
	c.mu.Unlock()

	runtime.AddCleanup(b, c.drop, cacheSlot{name: name, wp: wp})
	return b
}

// Len returns the number of entries, dead ones included.
func (c *FileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

type cacheSlot struct {
	name string
	wp   weak.Pointer[Buffer]
}

// drop removes a collected entry unless it was replaced in the meantime.
func (c *FileCache) drop(slot cacheSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[slot.name] == slot.wp {
		delete(c.entries, slot.name)
	}
}
