package discovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/touchbridge/touchbridge/canbus"
	"github.com/touchbridge/touchbridge/discovery"
	"github.com/touchbridge/touchbridge/frame"
	"github.com/touchbridge/touchbridge/node"
)

// runSimNode pumps frames between a node.Node and its simBus endpoint,
// servicing requests with node.Dispatch, until ctx is cancelled.
func runSimNode(ctx context.Context, n *node.Node, bus canbus.Bus) {
	for {
		f, err := bus.Read()
		if err != nil {
			return
		}
		if resp, ok := node.Dispatch(n, f); ok {
			bus.Write(resp)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func newTestNode(hwid [12]byte) *node.Node {
	return node.New(hwid, "TBG-Test", "1.0", nil)
}

func TestDiscoveryAssignsDistinctAddressesToAllNodes(t *testing.T) {
	hub := canbus.NewSimHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hwids := [][12]byte{
		{1, 2, 3, 4, 5, 6, 0xA, 0xB, 0xC, 0xD, 0xE, 0xF},
		{1, 2, 3, 4, 5, 6, 0x1, 0x2, 0x3, 0x4, 0x5, 0x6},
		{9, 9, 9, 9, 9, 9, 0, 0, 0, 0, 0, 1},
	}
	var nodes []*node.Node
	for _, hwid := range hwids {
		n := newTestNode(hwid)
		nodes = append(nodes, n)
		go runSimNode(ctx, n, hub.Attach())
	}

	eng := discovery.New(hub.Attach())
	eng.T1 = 30 * time.Millisecond
	eng.T2 = 30 * time.Millisecond

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Exhausted {
		t.Fatalf("address space should not be exhausted for 3 nodes")
	}
	if len(result.Candidates) != len(nodes) {
		t.Fatalf("want %d candidates, got %d", len(nodes), len(result.Candidates))
	}

	seen := make(map[uint8]bool)
	for _, c := range result.Candidates {
		if c.Address == frame.AddrUnassigned {
			t.Fatalf("candidate left unassigned: %+v", c)
		}
		if seen[c.Address] {
			t.Fatalf("duplicate assigned address %d", c.Address)
		}
		seen[c.Address] = true
	}

	for _, n := range nodes {
		if n.Address == frame.AddrUnassigned {
			t.Fatalf("node with hwid %x was never assigned an address", n.HWID)
		}
	}
}

func TestDiscoveryStage1RetriesOnceWhenEmpty(t *testing.T) {
	hub := canbus.NewSimHub()
	observer := hub.Attach()
	defer observer.Close()
	eng := discovery.New(hub.Attach())
	eng.T1 = 10 * time.Millisecond
	eng.T2 = 10 * time.Millisecond

	result, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run on an empty bus: %v", err)
	}
	if len(result.Candidates) != 0 {
		t.Fatalf("want no candidates on an empty bus, got %+v", result.Candidates)
	}

	// Count the stage-1 "return high half" probes (cmd 0x03, no id half)
	// the engine put on the bus: the first finds nothing, so exactly one
	// retry must follow.
	if err := observer.SetReadDeadline(20 * time.Millisecond); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	probes := 0
	for {
		f, err := observer.Read()
		if err != nil {
			break
		}
		if f.Len == 2 && f.Data[0] == 0x03 {
			probes++
		}
	}
	if probes != 2 {
		t.Fatalf("want 2 stage-1 probes (one retry), got %d", probes)
	}
}

func TestDeadlineShrinksAcrossCalls(t *testing.T) {
	dl := discovery.NewDeadline(30 * time.Millisecond)
	first := dl.Remaining()
	time.Sleep(15 * time.Millisecond)
	second := dl.Remaining()
	if second >= first {
		t.Fatalf("want Remaining to shrink: first=%v second=%v", first, second)
	}
	time.Sleep(30 * time.Millisecond)
	if !dl.Expired() {
		t.Fatalf("want deadline expired after its full duration has elapsed")
	}
}
