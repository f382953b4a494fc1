package canbus

import (
	"sync"
	"time"

	"github.com/touchbridge/touchbridge/frame"
)

// SimHub is an in-process stand-in for a shared CAN bus: every frame
// written by one attached endpoint is delivered to every other attached
// endpoint, the same broadcast-medium property the real bus has. It
// backs every package's tests and tbgctl's -sim flag, replacing the
// teacher's alternate cgo-based other/socket-monitor.go implementation
// with a pure-Go, non-hardware-backed bus (see DESIGN.md).
type SimHub struct {
	mu        sync.Mutex
	endpoints map[*simBus]struct{}
}

// NewSimHub creates an empty hub.
func NewSimHub() *SimHub {
	return &SimHub{endpoints: make(map[*simBus]struct{})}
}

// Attach creates a new Bus endpoint on the hub.
func (h *SimHub) Attach() Bus {
	b := &simBus{
		hub:    h,
		inbox:  make(chan frame.Frame, 64),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.endpoints[b] = struct{}{}
	h.mu.Unlock()
	return b
}

func (h *SimHub) detach(b *simBus) {
	h.mu.Lock()
	delete(h.endpoints, b)
	h.mu.Unlock()
}

func (h *SimHub) broadcast(from *simBus, f frame.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ep := range h.endpoints {
		if ep == from {
			continue
		}
		select {
		case ep.inbox <- f:
		default:
			// A slow reader drops frames rather than blocking the bus,
			// matching the FIFO's own overflow-is-sticky-but-never-
			// blocking contract (spec §4.2).
		}
	}
}

type simBus struct {
	hub    *SimHub
	inbox  chan frame.Frame
	closed chan struct{}

	mu      sync.Mutex
	timeout time.Duration
}

// SetReadDeadline bounds subsequent Read calls to timeout, mirroring
// socketCANBus's SO_RCVTIMEO behavior so the same deadline-per-read
// pattern (see discovery.waitWindow) works against the simulated bus
// too. A zero timeout restores the block-forever default.
func (b *simBus) SetReadDeadline(timeout time.Duration) error {
	b.mu.Lock()
	b.timeout = timeout
	b.mu.Unlock()
	return nil
}

func (b *simBus) Read() (frame.Frame, error) {
	b.mu.Lock()
	timeout := b.timeout
	b.mu.Unlock()

	if timeout <= 0 {
		select {
		case f := <-b.inbox:
			return f, nil
		case <-b.closed:
			return frame.Frame{}, ErrClosed
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-b.inbox:
		return f, nil
	case <-b.closed:
		return frame.Frame{}, ErrClosed
	case <-timer.C:
		return frame.Frame{}, ErrTimeout
	}
}

func (b *simBus) Write(f frame.Frame) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	b.hub.broadcast(b, f)
	return nil
}

func (b *simBus) Close() error {
	select {
	case <-b.closed:
		return nil
	default:
		close(b.closed)
		b.hub.detach(b)
		return nil
	}
}
