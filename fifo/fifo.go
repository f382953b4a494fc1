// Package fifo implements the fixed-capacity message ring used between the
// CAN-RX interrupt producer and the main-loop consumer (spec §4.2, §5).
//
// The FIFO is not internally synchronized and uses no atomics: in, out and
// used are the state shared across the producer/consumer boundary. in is
// written only by Push and out only by Pop, but used is written by both
// (Push increments it, Pop decrements it), so concurrent Push and Pop
// calls race on used. The type is safe only when Push and Pop are not run
// concurrently.
package fifo

import "github.com/touchbridge/touchbridge/frame"

// FIFO is a single-producer/single-consumer ring buffer of frames.
type FIFO struct {
	buf      []frame.Frame
	in, out  uint32
	used     uint32
	overflow bool
}

// New creates a FIFO with the given capacity. Capacity must be at least 1.
func New(capacity int) *FIFO {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFO{buf: make([]frame.Frame, capacity)}
}

// Cap returns the FIFO's fixed capacity.
func (q *FIFO) Cap() int { return len(q.buf) }

// Used returns the number of frames currently queued.
func (q *FIFO) Used() int { return int(q.used) }

// Overflow reports whether a push has been dropped since the last call to
// ClearOverflow. The bit is sticky, per spec §4.2: overflow is reported,
// never dropped silently-and-undetectably.
func (q *FIFO) Overflow() bool { return q.overflow }

// ClearOverflow clears the sticky overflow status bit.
func (q *FIFO) ClearOverflow() { q.overflow = false }

// Push enqueues f. It returns false, and sets the overflow bit, if the
// FIFO is full; it never overwrites existing contents.
func (q *FIFO) Push(f frame.Frame) bool {
	if q.used == uint32(len(q.buf)) {
		q.overflow = true
		return false
	}
	q.buf[q.in] = f
	q.in = (q.in + 1) % uint32(len(q.buf))
	q.used++
	return true
}

// Pop dequeues the oldest frame. It returns false if the FIFO is empty.
func (q *FIFO) Pop() (frame.Frame, bool) {
	if q.used == 0 {
		return frame.Frame{}, false
	}
	f := q.buf[q.out]
	q.out = (q.out + 1) % uint32(len(q.buf))
	q.used--
	return f, true
}
