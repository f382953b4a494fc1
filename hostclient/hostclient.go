// Package hostclient is the host-side request/response API that backs
// tbgctl's per-node commands (every one except adisc and nodes, which
// run package discovery on their own bus): dial touchbridged, send one
// Touchbridge request, and wait for its matching response. It speaks
// the tlv framing over a TCP connection, carrying package frame's
// 26-character ASCII-hex encoding as the payload (spec §6).
package hostclient

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/touchbridge/touchbridge/frame"
	"github.com/touchbridge/touchbridge/node"
	"github.com/touchbridge/touchbridge/tlv"
)

// DefaultTimeout is how long Request waits for a response before giving
// up, per spec §6.
const DefaultTimeout = 20 * time.Millisecond

// DefaultAddr is touchbridged's default listen address (spec §4.7).
const DefaultAddr = "127.0.0.1:5555"

// ErrorResponse wraps a Touchbridge ErrorResponse frame's error code so
// callers can distinguish "the node said no" from a transport failure.
type ErrorResponse struct {
	Code node.ErrorCode
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("touchbridge: node returned error %s", e.Code)
}

// Client is a single TCP connection to touchbridged. Only one Request
// may be in flight at a time: touchbridged pins a single src_port to
// each client connection for its lifetime (spec §4.7, §9's
// at-most-63-in-flight-requests design note), so there is never more
// than one outstanding correlation to track, and Request's own mutex
// is what keeps that slot unambiguous rather than any per-request id.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *tlv.Reader
	w       *tlv.Writer
	Timeout time.Duration
}

// Dial connects to a touchbridged instance at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:    conn,
		r:       tlv.NewReader(conn),
		w:       tlv.NewWriter(conn),
		Timeout: DefaultTimeout,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Request sends a Touchbridge request to dstAddr/dstPort carrying data,
// and returns the matching Response or ErrorResponse frame. ctx's
// deadline, if nearer than c.Timeout, takes precedence.
func (c *Client) Request(ctx context.Context, dstAddr, dstPort uint8, data []byte) (frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var req frame.Frame
	req.ID = frame.Encode(frame.Fields{
		DstAddr: dstAddr,
		DstPort: dstPort,
		Type:    frame.Request,
	})
	req.Len = uint8(copy(req.Data[:], data))

	if err := c.w.Write(tlv.FrameType, []byte(frame.EncodeHex(req))); err != nil {
		return frame.Frame{}, err
	}

	timeout := c.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < timeout {
			timeout = remaining
		}
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return frame.Frame{}, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		msgType, payload, err := c.r.Next()
		if err != nil {
			// The tlv framing has no resync; any decode or read error leaves
			// this connection unusable for further requests.
			return frame.Frame{}, err
		}
		if msgType != tlv.FrameType {
			return frame.Frame{}, fmt.Errorf("hostclient: unexpected message type %d", msgType)
		}
		resp, err := frame.DecodeHex(string(payload))
		if err != nil {
			return frame.Frame{}, err
		}
		switch resp.Type() {
		case frame.Response:
			return resp, nil
		case frame.ErrorResponse:
			return resp, &ErrorResponse{Code: node.ErrorCode(resp.Data[0])}
		}
		// Anything else (e.g. a broadcast Indication the daemon fanned out
		// to every client) is not a reply to this request; keep waiting.
	}
}

// ReadFrame blocks for the next frame the daemon forwards to this
// connection without sending a request first — the client-side
// counterpart of a device's unsolicited Indication frames (spec §4.3),
// which Request's request/response pairing has no way to surface. Like
// Request, only one caller may use a Client at a time.
func (c *Client) ReadFrame(ctx context.Context) (frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(dl); err != nil {
			return frame.Frame{}, err
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}

	msgType, payload, err := c.r.Next()
	if err != nil {
		return frame.Frame{}, err
	}
	if msgType != tlv.FrameType {
		return frame.Frame{}, fmt.Errorf("hostclient: unexpected message type %d", msgType)
	}
	return frame.DecodeHex(string(payload))
}
