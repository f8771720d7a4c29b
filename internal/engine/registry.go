package engine

import "sync"

// registry maps handles to live instances. Handles are never reused.
type registry[T any] struct {
	mu    sync.Mutex
	last  uint64
	items map[Handle]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{items: make(map[Handle]T)}
}

func (r *registry[T]) add(v T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	h := Handle(r.last)
	r.items[h] = v
	return h
}

func (r *registry[T]) get(h Handle) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[h]
	return v, ok
}

func (r *registry[T]) remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, h)
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// drain removes and returns every live instance
func (r *registry[T]) drain() map[Handle]T {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.items
	r.items = make(map[Handle]T)
	return items
}
