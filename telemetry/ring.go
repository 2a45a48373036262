package telemetry

// Ring is a fixed-capacity FIFO buffer. Pushing onto a full ring evicts the
// oldest element.
type Ring[T any] struct {
	items []T
	idx   int // next write position
	full  bool
}

// NewRing creates a ring holding at most capacity elements.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	r.items[r.idx] = v
	r.idx = (r.idx + 1) % len(r.items)
	if r.idx == 0 {
		r.full = true
	}
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	if r.full {
		return len(r.items)
	}
	return r.idx
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// At returns the i-th element, oldest first.
func (r *Ring[T]) At(i int) T {
	if r.full {
		return r.items[(r.idx+i)%len(r.items)]
	}
	return r.items[i]
}

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	n := r.Len()
	if n == 0 {
		return zero, false
	}
	return r.At(n - 1), true
}

// Tail returns a copy of the newest n elements, oldest first.
func (r *Ring[T]) Tail(n int) []T {
	size := r.Len()
	if n > size || n < 0 {
		n = size
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.At(size - n + i)
	}
	return out
}

// Slice returns a copy of all elements, oldest first.
func (r *Ring[T]) Slice() []T {
	return r.Tail(r.Len())
}

// Reset empties the ring.
func (r *Ring[T]) Reset() {
	clear(r.items)
	r.idx = 0
	r.full = false
}
