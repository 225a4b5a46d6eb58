// Package events provides a small typed publish/subscribe hub used by the
// timeline model and the playback engine.
package events

import (
	"sort"
	"sync"
)

// Subscription is returned by Hub.Subscribe. Calling Unsubscribe more than
// once is safe.
type Subscription struct {
	hub  unsubscriber
	id   uint64
	once sync.Once
}

type unsubscriber interface {
	remove(id uint64)
}

// Unsubscribe removes the listener from its hub.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() { s.hub.remove(s.id) })
}

// Hub delivers values of type T to registered listeners in registration
// order. Listeners are called synchronously on the publishing goroutine.
type Hub[T any] struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]func(T)
	closed    bool
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{listeners: make(map[uint64]func(T))}
}

// Subscribe registers fn. After Close it returns an inert subscription.
func (h *Hub[T]) Subscribe(fn func(T)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || fn == nil {
		return &Subscription{}
	}
	h.next++
	h.listeners[h.next] = fn
	return &Subscription{hub: h, id: h.next}
}

func (h *Hub[T]) remove(id uint64) {
	h.mu.Lock()
	delete(h.listeners, id)
	h.mu.Unlock()
}

// Publish sends v to every listener. The listener set is copied first so a
// listener may unsubscribe itself while being called.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	if h.closed || len(h.listeners) == 0 {
		h.mu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.listeners[id])
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports the number of live listeners.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Close drops all listeners; later Publish calls are no-ops.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	h.closed = true
	h.listeners = make(map[uint64]func(T))
	h.mu.Unlock()
}
