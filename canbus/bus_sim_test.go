package canbus_test

import (
	"testing"
	"time"

	"github.com/touchbridge/touchbridge/canbus"
	"github.com/touchbridge/touchbridge/frame"
)

func TestSimHubBroadcastsToOtherEndpoints(t *testing.T) {
	hub := canbus.NewSimHub()
	a := hub.Attach()
	b := hub.Attach()
	c := hub.Attach()
	defer a.Close()
	defer b.Close()
	defer c.Close()

	want := frame.Frame{ID: 0x1234, Len: 1, Data: [8]byte{0xAA}}
	if err := a.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, ep := range []canbus.Bus{b, c} {
		got, err := readWithTimeout(t, ep)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if got != want {
			t.Fatalf("want %+v, got %+v", want, got)
		}
	}

	// The writer itself must not see its own frame echoed back.
	select {
	case <-resultChan(a):
		t.Fatalf("sender should not receive its own broadcast frame")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSimBusReadTimesOut(t *testing.T) {
	hub := canbus.NewSimHub()
	b := hub.Attach()
	defer b.Close()

	if err := b.SetReadDeadline(10 * time.Millisecond); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	start := time.Now()
	_, err := b.Read()
	if err != canbus.ErrTimeout {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Read took too long to time out: %v", elapsed)
	}
}

func TestSimBusReadFailsAfterClose(t *testing.T) {
	hub := canbus.NewSimHub()
	b := hub.Attach()
	b.Close()
	if _, err := b.Read(); err != canbus.ErrClosed {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if err := b.Write(frame.Frame{}); err != canbus.ErrClosed {
		t.Fatalf("want ErrClosed on write after close, got %v", err)
	}
}

func readWithTimeout(t *testing.T, b canbus.Bus) (frame.Frame, error) {
	t.Helper()
	type result struct {
		f   frame.Frame
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := b.Read()
		ch <- result{f, err}
	}()
	select {
	case r := <-ch:
		return r.f, r.err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast frame")
		return frame.Frame{}, nil
	}
}

func resultChan(b canbus.Bus) <-chan frame.Frame {
	ch := make(chan frame.Frame, 1)
	go func() {
		f, err := b.Read()
		if err == nil {
			ch <- f
		}
	}()
	return ch
}
