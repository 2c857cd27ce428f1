package telemetry

// ring is a fixed-capacity FIFO of events. Once full, each add overwrites
// the oldest entry. Not safe for concurrent use; callers hold the monitor
// lock.
type ring struct {
	buf  []Event
	next int
	full bool
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]Event, capacity)}
}

func (r *ring) add(e Event) {
	r.buf[r.next] = e
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// events returns the ring contents oldest first.
func (r *ring) events() []Event {
	out := make([]Event, 0, r.len())
	if r.full {
		out = append(out, r.buf[r.next:]...)
	}
	out = append(out, r.buf[:r.next]...)
	return out
}
