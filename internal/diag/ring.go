package diag

// ring is a fixed-capacity FIFO of edge diagnostics.
// Not safe for concurrent use; the caller must synchronize.
type ring struct {
	buf      []Edge
	capacity int
	head     int // next write position
	count    int
	dropped  int // entries overwritten since last drain
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{
		buf:      make([]Edge, capacity),
		capacity: capacity,
	}
}

func (r *ring) push(e Edge) {
	if r.count == r.capacity {
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = e
		r.head = (r.head + 1) % r.capacity
		r.dropped++
		return
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// drainAll returns buffered entries oldest first and the number dropped
// since the previous drain.
func (r *ring) drainAll() ([]Edge, int) {
	dropped := r.dropped
	r.dropped = 0
	if r.count == 0 {
		return nil, dropped
	}

	result := make([]Edge, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	return result, dropped
}

func (r *ring) len() int {
	return r.count
}
