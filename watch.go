package blobdir

import (
	"runtime"
	"slices"
	"sync"

	"github.com/aweris/blobdir/internal/metrics"
)

// WatchCallback is called after the metadata file has been written.
// It runs on the writing goroutine before the write returns, so it must be fast.
type WatchCallback func()

// WatchHandle keeps a subscription alive. The callback is removed by Close,
// or once the handle is no longer referenced.
type WatchHandle struct {
	registry *watchRegistry
	id       uint64
	once     sync.Once
}

// Close removes the subscription. Broadcasts already in progress may still
// deliver to it.
func (h *WatchHandle) Close() error {
	h.once.Do(func() { h.registry.unsubscribe(h.id) })
	return nil
}

type subscription struct {
	id uint64
	cb WatchCallback
}

// watchRegistry holds subscribers in registration order.
type watchRegistry struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    []subscription
	metrics *metrics.Metrics
}

func (r *watchRegistry) subscribe(cb WatchCallback) *WatchHandle {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs = append(r.subs, subscription{id: id, cb: cb})
	r.mu.Unlock()

	h := &WatchHandle{registry: r, id: id}
	runtime.AddCleanup(h, r.unsubscribe, id)
	return h
}

func (r *watchRegistry) unsubscribe(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = slices.DeleteFunc(r.subs, func(s subscription) bool { return s.id == id })
}

func (r *watchRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// broadcast calls every subscriber live at its start, in order.
func (r *watchRegistry) broadcast() {
	r.mu.RLock()
	subs := slices.Clone(r.subs)
	r.mu.RUnlock()

	r.metrics.Broadcast()
	for _, s := range subs {
		r.notify(s)
	}
}

func (r *watchRegistry) notify(s subscription) {
	defer func() {
		if p := recover(); p != nil {
			log.WithField("subscription", s.id).WithField("panic", p).Error("Watch callback panicked")
		}
	}()
	s.cb()
}
