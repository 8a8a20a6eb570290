// Package window implements the fixed-capacity sliding window ring
// used by every channel variant: a slot for sequence s lives at
// s mod capacity. The window has no notion of staleness by itself;
// callers combine it with a sequence watermark (see pkg/seqnum) to
// decide whether a slot's contents are current.
package window

// Window is a fixed-capacity ring indexed by sequence number modulo
// its capacity. Old entries are silently overwritten when a new
// sequence reuses the slot.
type Window[T any] struct {
	slots []T
	cap   uint16
}

// New creates a window of the given capacity. Capacity must be
// positive; a zero-capacity window panics on first use, same as
// indexing an empty slice would.
func New[T any](capacity uint16) *Window[T] {
	return &Window[T]{
		slots: make([]T, capacity),
		cap:   capacity,
	}
}

// Index returns the slot a sequence maps to.
func (w *Window[T]) Index(seq uint16) uint16 {
	return seq % w.cap
}

// Get returns the value stored at seq's slot.
func (w *Window[T]) Get(seq uint16) T {
	return w.slots[w.Index(seq)]
}

// Set stores a value at seq's slot, overwriting whatever was there.
func (w *Window[T]) Set(seq uint16, value T) {
	w.slots[w.Index(seq)] = value
}

// Capacity returns the window's slot count.
func (w *Window[T]) Capacity() uint16 {
	return w.cap
}

// Release resets every slot to its zero value.
func (w *Window[T]) Release() {
	var zero T
	for i := range w.slots {
		w.slots[i] = zero
	}
}

// Each calls fn once per slot, in index order. Used by callers that
// need to release resources held in every slot before Release zeroes
// them (e.g. pooled buffers retained by a receive window).
func (w *Window[T]) Each(fn func(value T)) {
	for _, v := range w.slots {
		fn(v)
	}
}
