package daemon

import (
	"sync"

	"github.com/touchbridge/touchbridge/frame"
	"github.com/touchbridge/touchbridge/tlv"
)

// client is one connected TCP client of touchbridged. Its outbound path is
// double-buffered (spec §4.7): Send appends to the active buffer; the
// writer goroutine swaps active and draining and flushes whatever had
// accumulated, so a slow client never blocks the frame that's still
// filling the active buffer. This stands in for the teacher's own
// poll(2)-driven event loop — Go's net package gives us no raw poll
// registration to hook into — but preserves the same back-pressure
// contract: stop accepting once a buffer is full, resume once drained.
type client struct {
	id      string
	srcPort uint8
	w       *tlv.Writer

	mu       sync.Mutex
	active   []frame.Frame
	draining []frame.Frame
	wake     chan struct{}
	closed   chan struct{}
	closeOne sync.Once
	closeErr error
}

// maxQueued bounds each buffer; beyond this, Send drops the newest frame
// rather than growing without limit or blocking the bus-reader goroutine
// that calls it.
const maxQueued = 256

func newClient(id string, srcPort uint8, w *tlv.Writer) *client {
	c := &client{
		id:      id,
		srcPort: srcPort,
		w:       w,
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	go c.run()
	return c
}

// Send enqueues f for delivery to this client. It never blocks.
func (c *client) Send(f frame.Frame) {
	c.mu.Lock()
	if len(c.active) >= maxQueued {
		c.mu.Unlock()
		return
	}
	c.active = append(c.active, f)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run drains the active/draining buffers to the client's TLV connection
// until the client is closed.
func (c *client) run() {
	for {
		select {
		case <-c.wake:
		case <-c.closed:
			return
		}
		c.mu.Lock()
		c.draining, c.active = c.active, c.draining[:0]
		batch := c.draining
		c.mu.Unlock()

		for _, f := range batch {
			if err := c.w.Write(tlv.FrameType, []byte(frame.EncodeHex(f))); err != nil {
				c.mu.Lock()
				c.closeErr = err
				c.mu.Unlock()
				c.stop()
				return
			}
		}
	}
}

func (c *client) stop() {
	c.closeOne.Do(func() { close(c.closed) })
}
