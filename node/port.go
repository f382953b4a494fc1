package node

import "fmt"

// PortClass is the closed set of port kinds the wire protocol knows about.
type PortClass uint8

// Port classes. Control is not itself a class named in spec §3's "closed
// set" example list, but the four common ports need *some* class so that
// the config port's get-class operation (§4.3) has something to report for
// them; it is the one addition this port makes to the set.
const (
	ClassControl PortClass = iota
	ClassDigitalIn
	ClassDigitalOut
	ClassAnalogueIn
	ClassAnalogueOut
	ClassAnalogueOutChannel
	ClassCounter
	ClassStepper
	ClassBufferExec
)

func (c PortClass) String() string {
	switch c {
	case ClassControl:
		return "control"
	case ClassDigitalIn:
		return "digital-in"
	case ClassDigitalOut:
		return "digital-out"
	case ClassAnalogueIn:
		return "analogue-in"
	case ClassAnalogueOut:
		return "analogue-out"
	case ClassAnalogueOutChannel:
		return "analogue-out-channel"
	case ClassCounter:
		return "counter"
	case ClassStepper:
		return "stepper"
	case ClassBufferExec:
		return "buffer-exec"
	default:
		return fmt.Sprintf("PortClass(%d)", uint8(c))
	}
}

// Result is what a port Handler or a Config's Read/Write function
// produces: either a success payload, or an error code to be reported to
// the caller as an ErrorResponse (spec §7). Err == Success means the call
// succeeded. Suppress overrides both: it means emit nothing at all, which
// only the adisc primitive (spec §4.4) needs, for the case where a
// request doesn't match and/or the return-ID bit is clear.
type Result struct {
	Data     []byte
	Err      ErrorCode
	Suppress bool
}

func ok(data []byte) Result       { return Result{Data: data} }
func fail(err ErrorCode) Result    { return Result{Err: err} }
func unimplementedResult() Result { return fail(Unimplemented) }
func suppressed() Result          { return Result{Suppress: true} }

// Handler is a pure function from (node, request, port) to a Result. Spec
// calls this "a pure function from (node, request, port) producing an
// outbound frame and a boolean emit-response" — Dispatch builds the frame
// and decides whether to emit it; the handler only has to decide success
// or failure and produce a payload.
type Handler func(n *Node, req []byte, p *Port) Result

// Port is a (number, class, descriptor, handler, config-table) tuple.
type Port struct {
	Number      uint8
	Class       PortClass
	Description string
	Handler     Handler
	// Configs is this port's device-specific configuration table,
	// addressed as wire index (local-index+8) by the config port's
	// is-port form — indices 0..3 of that same wire-level table are the
	// fixed port-common configs (portCommonConfigs in node.go), shared by
	// every port, and indices
	// 4..7 are reserved and answer NoConf.
	Configs []Config
}
