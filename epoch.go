package blobdir

import "sync"

// epoch is the write generation of one name.
//
// seq moves on every start and end of a mutation; writers counts mutations in
// flight. A reader that saw {seq, 0} before resolving a row and sees the same
// value after reading has read a row no mutation touched in between.
type epoch struct {
	seq     uint64
	writers int
}

func (e epoch) stable() bool {
	return e.writers == 0
}

type epochSlot struct {
	epoch
	readers int
}

// epochs tracks mutations made through one Dir. Writes from other processes
// are not seen.
//
// A name has an entry only while a mutation is in flight or a streaming
// handle pins it. Every seq is drawn from clock, so an entry that is dropped
// and created again never repeats a value a reader may hold.
type epochs struct {
	mu    sync.RWMutex
	clock uint64
	names map[string]epochSlot
}

func newEpochs() *epochs {
	return &epochs{names: make(map[string]epochSlot)}
}

func (e *epochs) get(name string) epoch {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.names[name].epoch
}

// acquire pins name until release and returns its current epoch.
func (e *epochs) acquire(name string) epoch {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.names[name]
	if !ok {
		s.seq = e.clock
	}
	s.readers++
	e.names[name] = s
	return s.epoch
}

func (e *epochs) release(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.names[name]
	s.readers--
	e.put(name, s)
}

// begin marks a mutation of name as started and returns the func ending it.
func (e *epochs) begin(name string) func() {
	e.mu.Lock()
	s := e.names[name]
	e.clock++
	s.seq = e.clock
	s.writers++
	e.names[name] = s
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		s := e.names[name]
		e.clock++
		s.seq = e.clock
		s.writers--
		e.put(name, s)
	}
}

func (e *epochs) put(name string, s epochSlot) {
	if s.readers <= 0 && s.writers <= 0 {
		delete(e.names, name)
		return
	}
	e.names[name] = s
}

func (e *epochs) len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.names)
}
