// Package discovery implements the host-side address-discovery engine
// of spec §4.4: a two-stage collision-tolerant probe built entirely out
// of repeated adisc-port broadcasts, followed by a lowest-free-address
// assignment pass. Discovery is deliberately centralised here rather
// than on the node: a node only ever implements the single adisc
// primitive (package node's dispatchAdisc).
package discovery

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/touchbridge/touchbridge/canbus"
	"github.com/touchbridge/touchbridge/frame"
)

// adisc command bits, duplicated from package node rather than
// imported: the host library and the node firmware are independent
// implementations of the same wire contract (spec §4.4), and importing
// node here would tie the host side to embedded-only code it has no
// other reason to depend on.
const (
	adiscReturnID       = 1 << 0
	adiscReturnHigh     = 1 << 1
	adiscMatchID        = 1 << 2
	adiscMatchHigh      = 1 << 3
	adiscAssignAddr     = 1 << 4
	adiscSetShortlist   = 1 << 5
	adiscClearShortlist = 1 << 6
	adiscMatchShortlist = 1 << 7

	adiscPort = 1

	// minAddr/maxAddr bound the assignable soft-address space. 62 is
	// reserved for the daemon itself and 63 means unassigned, both per
	// spec §4.4.
	minAddr = 1
	maxAddr = 61
)

// Default stage timeouts (spec §4.4).
const (
	DefaultT1 = 80 * time.Millisecond
	DefaultT2 = 40 * time.Millisecond
)

// errAssignmentUnconfirmed is returned by assignOne when no attempt drew
// a confirming response; assign then leaves that node at address 63.
// Running out of addresses is not an error either: it is reported through
// Result.Exhausted (spec §4.4: reported, not fatal).
var errAssignmentUnconfirmed = errors.New("discovery: node did not confirm address assignment")

// Candidate is one node surfaced by stage 2, identified by the high/low
// halves of its 96-bit hardware id.
type Candidate struct {
	High    uint64
	Low     uint64
	Address uint8
}

// Result is the outcome of one Run.
type Result struct {
	Candidates []Candidate
	// Exhausted is set if the address space ran out before every
	// unassigned node could be given an address; the remaining nodes
	// are left at address 63.
	Exhausted bool
}

// Engine runs the discovery algorithm over a CAN bus.
type Engine struct {
	Bus canbus.Bus
	T1  time.Duration
	T2  time.Duration
}

// New creates an Engine with the default stage timeouts.
func New(bus canbus.Bus) *Engine {
	return &Engine{Bus: bus, T1: DefaultT1, T2: DefaultT2}
}

// Run executes one full discovery cycle: reset, enumerate, assign.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if err := e.reset(); err != nil {
		return Result{}, err
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	highs, err := e.stage1()
	if err != nil {
		return Result{}, err
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	var candidates []Candidate
	for _, high := range highs {
		candidates = append(candidates, e.stage2(high)...)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}

	return e.assign(candidates)
}

// reset broadcasts three successive assign-address-to-63-and-clear-
// shortlist frames. The triple redundancy guards against CAN
// arbitration losses under bus contention (spec §4.4 step 1).
func (e *Engine) reset() error {
	req := adiscRequest(adiscAssignAddr|adiscClearShortlist, frame.AddrUnassigned, nil)
	for i := 0; i < 3; i++ {
		if err := e.Bus.Write(req); err != nil {
			return err
		}
	}
	return nil
}

// stage1 enumerates distinct high-id halves, retrying once if the
// first pass finds nothing (spec §4.4 step 2).
func (e *Engine) stage1() ([]uint64, error) {
	highs, err := e.probeHighs()
	if err != nil {
		return nil, err
	}
	if len(highs) == 0 {
		highs, err = e.probeHighs()
		if err != nil {
			return nil, err
		}
	}
	return highs, nil
}

func (e *Engine) probeHighs() ([]uint64, error) {
	req := adiscRequest(adiscReturnID|adiscReturnHigh, 0, nil)
	if err := e.Bus.Write(req); err != nil {
		return nil, err
	}
	seen := make(map[uint64]struct{})
	dl := NewDeadline(e.T1)
	waitWindow(e.Bus, dl, func(f frame.Frame) {
		if !isAdiscResponse(f) {
			return
		}
		seen[bytesToUint48(f.Data[0:6])] = struct{}{}
	})
	highs := make([]uint64, 0, len(seen))
	for h := range seen {
		highs = append(highs, h)
	}
	sort.Slice(highs, func(i, j int) bool { return highs[i] < highs[j] })
	return highs, nil
}

// stage2 enumerates, for one distinct high half, every (low half,
// address) response seen within the stage-2 window. Duplicate (hi,lo)
// pairs are kept as distinct candidates: the response's address byte
// is authoritative, per spec §4.4 step 3.
func (e *Engine) stage2(high uint64) []Candidate {
	req := adiscRequest(adiscMatchID|adiscMatchHigh|adiscReturnID, 0, uint48Bytes(high))
	if err := e.Bus.Write(req); err != nil {
		return nil
	}
	var out []Candidate
	dl := NewDeadline(e.T2)
	waitWindow(e.Bus, dl, func(f frame.Frame) {
		if !isAdiscResponse(f) {
			return
		}
		out = append(out, Candidate{
			High:    high,
			Low:     bytesToUint48(f.Data[0:6]),
			Address: f.Data[6],
		})
	})
	return out
}

// assign gives every address-63 candidate the lowest free address in
// 1..61, per spec §4.4 step 4. Candidates already holding a real
// address are left untouched.
func (e *Engine) assign(candidates []Candidate) (Result, error) {
	used := make(map[uint8]bool, len(candidates))
	for _, c := range candidates {
		if c.Address != frame.AddrUnassigned {
			used[c.Address] = true
		}
	}

	result := Result{Candidates: candidates}
	for i := range result.Candidates {
		c := &result.Candidates[i]
		if c.Address != frame.AddrUnassigned {
			continue
		}
		addr, ok := lowestFree(used)
		if !ok {
			result.Exhausted = true
			continue
		}
		if err := e.assignOne(*c, addr); err != nil {
			// The node didn't confirm; leave it at 63 and don't consume
			// the address for anyone else.
			continue
		}
		used[addr] = true
		c.Address = addr
	}
	return result, nil
}

func lowestFree(used map[uint8]bool) (uint8, bool) {
	for a := uint8(minAddr); a <= maxAddr; a++ {
		if !used[a] {
			return a, true
		}
	}
	return 0, false
}

// assignOne runs the targeted clear/set-shortlist/assign dance of spec
// §4.4 step 4 against one candidate node.
func (e *Engine) assignOne(c Candidate, addr uint8) error {
	clearReq := adiscRequest(adiscClearShortlist, 0, nil)
	for i := 0; i < 2; i++ {
		if err := e.Bus.Write(clearReq); err != nil {
			return err
		}
	}

	setReq := adiscRequest(adiscMatchID|adiscMatchHigh|adiscSetShortlist, 0, uint48Bytes(c.High))
	for i := 0; i < 2; i++ {
		if err := e.Bus.Write(setReq); err != nil {
			return err
		}
	}

	assignReq := adiscRequest(adiscMatchID|adiscMatchShortlist|adiscAssignAddr|adiscReturnID, addr, uint48Bytes(c.Low))
	confirmed := false
	for i := 0; i < 3 && !confirmed; i++ {
		if err := e.Bus.Write(assignReq); err != nil {
			return err
		}
		dl := NewDeadline(e.T2)
		waitWindow(e.Bus, dl, func(f frame.Frame) {
			if confirmed || !isAdiscResponse(f) {
				return
			}
			if bytesToUint48(f.Data[0:6]) == c.Low && f.Data[6] == addr {
				confirmed = true
			}
		})
	}
	if !confirmed {
		return errAssignmentUnconfirmed
	}

	targetedClear := adiscRequest(adiscClearShortlist, 0, nil)
	targetedClear.ID = frame.Encode(frame.Fields{
		SrcPort: adiscPort,
		SrcAddr: frame.AddrDaemon,
		DstPort: adiscPort,
		DstAddr: addr,
		Type:    frame.Request,
	})
	return e.Bus.Write(targetedClear)
}

func adiscRequest(cmd uint8, candidateAddr uint8, idHalf []byte) frame.Frame {
	var f frame.Frame
	f.ID = frame.Encode(frame.Fields{
		SrcPort: adiscPort,
		SrcAddr: frame.AddrDaemon,
		DstPort: adiscPort,
		DstAddr: frame.AddrBroadcast,
		Type:    frame.Request,
	})
	f.Data[0] = cmd
	f.Data[1] = candidateAddr
	f.Len = 2
	if idHalf != nil {
		copy(f.Data[2:8], idHalf)
		f.Len = 8
	}
	return f
}

func isAdiscResponse(f frame.Frame) bool {
	return f.Type() == frame.Response && f.SrcPort() == adiscPort && f.DstAddr() == frame.AddrDaemon
}

func uint48Bytes(v uint64) []byte {
	b := make([]byte, 6)
	for i := 0; i < 6; i++ {
		b[i] = byte(v >> uint(8*(5-i)))
	}
	return b
}

func bytesToUint48(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// waitWindow reads frames off bus and passes each to onFrame until dl
// expires. Each read is bounded by the deadline's own remaining budget
// via SetReadDeadline, matching spec §4.4's "successive waits shrink the
// same deadline" requirement rather than giving every read a fresh
// timeout. This stays a single-threaded read loop (spec §5) rather than
// racing a goroutine per read against time.After: bus.Read() on a real
// SocketCAN socket has no way to abandon an in-flight read cleanly, so a
// goroutine left behind by an expired race would silently steal the next
// frame that arrives.
func waitWindow(bus canbus.Bus, dl *Deadline, onFrame func(frame.Frame)) {
	for {
		remaining := dl.Remaining()
		if remaining <= 0 {
			return
		}
		if err := bus.SetReadDeadline(remaining); err != nil {
			return
		}
		f, err := bus.Read()
		if err != nil {
			return
		}
		onFrame(f)
	}
}
