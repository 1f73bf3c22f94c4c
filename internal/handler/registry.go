package handler

import (
	"fmt"
	"sync"
)

// Registry provides a shared key -> handler registry. Keys are unique.
type Registry[K comparable, T any] struct {
	handlers map[K]T
	order    []K
	mu       sync.RWMutex
}

func NewRegistry[K comparable, T any]() *Registry[K, T] {
	return &Registry[K, T]{
		handlers: make(map[K]T),
	}
}

func (r *Registry[K, T]) Register(key K, handler T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%v already registered", key)
	}
	r.handlers[key] = handler
	r.order = append(r.order, key)
	return nil
}

func (r *Registry[K, T]) Get(key K) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[key]
	return h, ok
}

// Keys returns keys in registration order.
func (r *Registry[K, T]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]K, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry[K, T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Snapshot copies the current bindings into a plain map.
func (r *Registry[K, T]) Snapshot() map[K]T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[K]T, len(r.handlers))
	for k, v := range r.handlers {
		out[k] = v
	}
	return out
}
