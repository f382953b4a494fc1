package node

import (
	"encoding/binary"

	"github.com/touchbridge/touchbridge/frame"
)

const adiscPortNumber = 1

// commonPorts is the fixed table of the four common ports present on every
// node, at wire numbers 0..3 (spec §3, §4.3). It is stateless so it lives
// at package scope, referenced from Dispatch rather than built per-Node —
// spec §9's design note calls for exactly this: an immutable, statically
// built table whose lifetime equals the program's. It is filled in by init
// because the config handler itself looks ports up in this table.
var commonPorts [4]Port

func init() {
	commonPorts = [4]Port{
		{Number: 0, Class: ClassControl, Description: "tstrigger", Handler: dispatchTstrigger},
		{Number: 1, Class: ClassControl, Description: "adisc", Handler: dispatchAdisc},
		{Number: 2, Class: ClassControl, Description: "config", Handler: dispatchConfig},
		{Number: 3, Class: ClassControl, Description: "faults", Handler: dispatchFaults},
	}
}

func dispatchTstrigger(n *Node, req []byte, p *Port) Result {
	return unimplementedResult()
}

func dispatchFaults(n *Node, req []byte, p *Port) Result {
	switch len(req) {
	case 0:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, n.Faults)
		return ok(b)
	case 2:
		mask := binary.LittleEndian.Uint16(req)
		n.ClearFaults(mask)
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, n.Faults)
		return ok(b)
	default:
		return fail(IncorrectLength)
	}
}

// Dispatch decodes one inbound frame against a Node and produces an
// optional outbound frame, per the algorithm of spec §4.3:
//
//  1. Drop frames of type Response or ErrorResponse.
//  2. Drop frames whose destination address is neither the node's address
//     nor the broadcast address.
//  3. Resolve the destination port (common table for <8, exact scan for
//     device ports) and invoke its handler, or synthesize a no-port /
//     unimplemented error.
//  4. Broadcast requests never produce a response or error response,
//     regardless of outcome, except on the adisc port (see below).
func Dispatch(n *Node, req frame.Frame) (frame.Frame, bool) {
	if req.Type() == frame.Response || req.Type() == frame.ErrorResponse {
		return frame.Frame{}, false
	}
	dstAddr := req.DstAddr()
	if dstAddr != n.Address && dstAddr != frame.AddrBroadcast {
		return frame.Frame{}, false
	}
	broadcast := dstAddr == frame.AddrBroadcast

	portNum := req.DstPort()
	data := req.Data[:req.Len]

	var result Result
	if portNum < 8 {
		if portNum > 3 {
			result = fail(NoPort)
		} else {
			cp := &commonPorts[portNum]
			result = cp.Handler(n, data, cp)
		}
	} else {
		p := n.FindDevicePort(portNum)
		if p == nil {
			result = fail(NoPort)
		} else if p.Handler == nil {
			result = fail(Unimplemented)
		} else {
			result = p.Handler(n, data, p)
		}
	}

	// The adisc port (number 1) is the sole exception to "no response to
	// broadcast": a node with no assigned address can only ever be reached
	// by a broadcast request, so discovery must be able to elicit a reply
	// from one. Its own return-id/match logic (encoded as result.Suppress)
	// is what decides whether it actually answers.
	broadcastSuppressed := broadcast && portNum != adiscPortNumber
	if broadcastSuppressed || result.Suppress {
		return frame.Frame{}, false
	}

	fields := frame.Fields{
		SrcPort: portNum,
		SrcAddr: n.Address, // forced, so replies to broadcasts are still routable
		DstPort: req.SrcPort(),
		DstAddr: req.SrcAddr(),
	}

	var resp frame.Frame
	if result.Err != Success {
		fields.Type = frame.ErrorResponse
		resp.ID = frame.Encode(fields)
		resp.Data[0] = byte(result.Err)
		resp.Len = 1
		return resp, true
	}

	fields.Type = frame.Response
	resp.ID = frame.Encode(fields)
	resp.Len = uint8(copy(resp.Data[:], result.Data))
	return resp, true
}
