// Package ringchan provides a bounded channel with overwrite-oldest
// semantics, used to fan discovery events out to observers without ever
// blocking the platform callback goroutines that produce them.
package ringchan

// Ring wraps a buffered channel. Producers never block: when the buffer
// is full the oldest element is discarded to make room.
type Ring[T any] struct {
	ch chan T
}

// New creates a Ring with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Consumers can range over it until Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts v, dropping the oldest buffered element if the ring is
// full. It reports whether an element was dropped.
func (r *Ring[T]) Send(v T) bool {
	select {
	case r.ch <- v:
		return false
	default:
	}

	// Full: evict one and retry. Both sides stay non-blocking, since a
	// concurrent producer may steal the freed slot and a concurrent
	// reader may have drained the ring already.
	dropped := false
	for {
		select {
		case <-r.ch:
			dropped = true
		default:
		}
		select {
		case r.ch <- v:
			return dropped
		default:
		}
	}
}

// TrySend inserts v only if there is room, reporting success.
func (r *Ring[T]) TrySend(v T) bool {
	select {
	case r.ch <- v:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Close closes the ring. Sending after Close panics.
func (r *Ring[T]) Close() {
	close(r.ch)
}
