// Package widget provides observable values for UI controls. Observers run
// synchronously on the goroutine that changed the value, outside any lock.
package widget

import (
	"sort"
	"sync"
)

// Value is an observable value. Set notifies observers only when the value
// actually changes.
type Value[T comparable] struct {
	mu        sync.Mutex
	value     T
	nextID    int
	observers map[int]func(old, new T)
}

// NewValue creates a Value holding initial.
func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{value: initial, observers: make(map[int]func(old, new T))}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set stores x and notifies observers in registration order. It reports
// whether the value changed.
func (v *Value[T]) Set(x T) bool {
	v.mu.Lock()
	old := v.value
	if old == x {
		v.mu.Unlock()
		return false
	}
	v.value = x
	fns := v.snapshot()
	v.mu.Unlock()

	for _, fn := range fns {
		fn(old, x)
	}
	return true
}

// Observe registers fn and returns a function that removes it.
func (v *Value[T]) Observe(fn func(old, new T)) (cancel func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.observers == nil {
		v.observers = make(map[int]func(old, new T))
	}
	id := v.nextID
	v.nextID++
	v.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.observers, id)
			v.mu.Unlock()
		})
	}
}

// Observers returns the number of registered observers.
func (v *Value[T]) Observers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.observers)
}

func (v *Value[T]) snapshot() []func(old, new T) {
	ids := make([]int, 0, len(v.observers))
	for id := range v.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func(old, new T), len(ids))
	for i, id := range ids {
		fns[i] = v.observers[id]
	}
	return fns
}
