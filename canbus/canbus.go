// Package canbus abstracts the physical CAN adapter that carries
// Touchbridge frames. CAN controller register programming itself is an
// external collaborator out of scope (spec §4, Non-goals); this package
// only owns the part a host-side Go process actually needs: a socket (or
// simulated equivalent) that reads and writes frame.Frame values.
package canbus

import (
	"errors"
	"time"

	"github.com/touchbridge/touchbridge/frame"
)

// ErrUnsupported is returned by platforms with no native CAN binding.
var ErrUnsupported = errors.New("canbus: not supported on this platform")

// ErrClosed is returned by Read/Write after Close.
var ErrClosed = errors.New("canbus: bus closed")

// ErrTimeout is returned by Read when no frame arrives before the
// deadline set by SetReadDeadline elapses.
var ErrTimeout = errors.New("canbus: read timeout")

// Bus is the minimal interface the daemon needs from a CAN adapter: read
// the next received frame (blocking), write one frame, and close down.
type Bus interface {
	Read() (frame.Frame, error)
	Write(frame.Frame) error
	Close() error

	// SetReadDeadline bounds the next and subsequent Read calls to
	// timeout, after which Read returns ErrTimeout. A timeout of zero
	// (the default) means Read blocks with no deadline.
	SetReadDeadline(timeout time.Duration) error
}
