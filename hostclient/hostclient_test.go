package hostclient_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/touchbridge/touchbridge/frame"
	"github.com/touchbridge/touchbridge/hostclient"
	"github.com/touchbridge/touchbridge/node"
	"github.com/touchbridge/touchbridge/tlv"
)

// fakeDaemon accepts one connection and answers every request with the
// handler's frame, stubbing in for touchbridged in these tests.
func fakeDaemon(t *testing.T, ln net.Listener, handle func(req frame.Frame) frame.Frame) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := tlv.NewReader(conn)
	w := tlv.NewWriter(conn)
	for {
		msgType, payload, err := r.Next()
		if err != nil {
			return
		}
		if msgType != tlv.FrameType {
			continue
		}
		req, err := frame.DecodeHex(string(payload))
		if err != nil {
			return
		}
		resp := handle(req)
		if err := w.Write(tlv.FrameType, []byte(frame.EncodeHex(resp))); err != nil {
			return
		}
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return ln
}

func TestRequestReturnsMatchingResponse(t *testing.T) {
	ln := listen(t)
	defer ln.Close()
	go fakeDaemon(t, ln, func(req frame.Frame) frame.Frame {
		var resp frame.Frame
		resp.ID = frame.Encode(frame.Fields{
			SrcAddr: req.DstAddr(),
			SrcPort: req.DstPort(),
			DstAddr: req.SrcAddr(),
			DstPort: req.SrcPort(),
			Type:    frame.Response,
		})
		resp.Data[0] = 0x42
		resp.Len = 1
		return resp
	})

	c, err := hostclient.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	resp, err := c.Request(context.Background(), 5, 9, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Type() != frame.Response || resp.Data[0] != 0x42 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRequestSurfacesErrorResponse(t *testing.T) {
	ln := listen(t)
	defer ln.Close()
	go fakeDaemon(t, ln, func(req frame.Frame) frame.Frame {
		var resp frame.Frame
		resp.ID = frame.Encode(frame.Fields{
			DstAddr: req.SrcAddr(),
			DstPort: req.SrcPort(),
			Type:    frame.ErrorResponse,
		})
		resp.Data[0] = byte(node.NoPort)
		resp.Len = 1
		return resp
	})

	c, err := hostclient.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	_, err = c.Request(context.Background(), 5, 99, nil)
	errResp, ok := err.(*hostclient.ErrorResponse)
	if !ok {
		t.Fatalf("want *hostclient.ErrorResponse, got %T (%v)", err, err)
	}
	if errResp.Code != node.NoPort {
		t.Fatalf("want NoPort, got %v", errResp.Code)
	}
}

func TestRequestTimesOutWithNoResponse(t *testing.T) {
	ln := listen(t)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Never respond.
		time.Sleep(200 * time.Millisecond)
	}()

	c, err := hostclient.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	c.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err = c.Request(context.Background(), 1, 1, nil)
	if err == nil {
		t.Fatalf("want a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("Request took too long to time out: %v", elapsed)
	}
}
