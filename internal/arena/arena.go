// Package arena provides a generational slot map: values live in slots and are
// addressed by Handles that carry the slot generation. Freeing a slot bumps its
// generation, so handles to the old value stop resolving instead of aliasing
// whatever is stored there next.
package arena

import "fmt"

// Handle is a weak, copyable reference into an Arena. The zero Handle never
// resolves.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.generation == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.index, h.generation)
}

type slot[T any] struct {
	generation uint32
	occupied   bool
	value      T
}

// Arena owns values of type T. It is not safe for concurrent mutation.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	len   int
}

// New returns an empty arena with room for capacity values.
func New[T any](capacity int) *Arena[T] {
	return &Arena[T]{slots: make([]slot[T], 0, capacity)}
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.len++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.occupied = true
		s.value = v
		return Handle{index: idx, generation: s.generation}
	}
	// Generations start at 1 so that the zero Handle stays invalid.
	a.slots = append(a.slots, slot[T]{generation: 1, occupied: true, value: v})
	return Handle{index: uint32(len(a.slots) - 1), generation: 1}
}

// Get returns a pointer to the value behind h, or nil when h is stale.
// The pointer is invalidated by the next Insert.
func (a *Arena[T]) Get(h Handle) *T {
	if int(h.index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.index]
	if !s.occupied || s.generation != h.generation {
		return nil
	}
	return &s.value
}

// Contains reports whether h resolves.
func (a *Arena[T]) Contains(h Handle) bool {
	return a.Get(h) != nil
}

// Remove frees the slot behind h and returns its value.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	if a.Get(h) == nil {
		return zero, false
	}
	s := &a.slots[h.index]
	v := s.value
	s.value = zero
	s.occupied = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	a.free = append(a.free, h.index)
	a.len--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int { return a.len }

// All calls fn for every live value in slot order until fn returns false.
func (a *Arena[T]) All(fn func(Handle, *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(Handle{index: uint32(i), generation: s.generation}, &s.value) {
			return
		}
	}
}
