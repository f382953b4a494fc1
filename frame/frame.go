// Package frame implements the Touchbridge wire protocol: a bit-packed
// 29-bit CAN identifier carrying source/destination address/port pairs, a
// message type and continuation/state flags, plus up to eight data octets.
//
// The identifier is never overlaid onto a typed bitfield struct — the
// in-memory bit order of a C union is not portable, so the codec always
// operates on the numeric id via explicit shift and mask.
package frame

import "fmt"

// Bit widths and offsets of the 32-bit identifier field. Bits above 28 are
// reserved for the CAN controller (extended-id, RTR) and are not part of
// the Touchbridge payload, but are still tracked so a Frame round-trips
// exactly through a real CAN adapter.
const (
	srcPortShift = 0
	srcPortMask  = 0x3F

	srcAddrShift = 6
	srcAddrMask  = 0x3F

	dstPortShift = 12
	dstPortMask  = 0x3F

	dstAddrShift = 18
	dstAddrMask  = 0x3F

	stateShift = 24
	stateMask  = 0x1

	continuedShift = 25
	continuedMask  = 0x1

	reservedShift = 26
	reservedMask  = 0x1

	msgTypeShift = 27
	msgTypeMask  = 0x3

	extIDShift = 29
	extIDMask  = 0x1

	rtrShift = 30
	rtrMask  = 0x1
)

// Well-known addresses.
const (
	AddrBroadcast  = 0
	AddrUnassigned = 63
	// AddrDaemon is the address the bridge daemon itself claims on the bus,
	// reserved so it never collides with a discovered node (spec §4.4 stage 4).
	AddrDaemon = 62
)

// MsgType is the 2-bit message-type field of the identifier.
type MsgType uint8

// The four message types carried by the identifier's msg-type field.
const (
	Response MsgType = iota
	Request
	ErrorResponse
	Indication
)

//go:generate stringer -type=MsgType

// String renders a MsgType the way the teacher's hand-written stringers do,
// falling back to a numeric form for anything out of range.
func (t MsgType) String() string {
	switch t {
	case Response:
		return "Response"
	case Request:
		return "Request"
	case ErrorResponse:
		return "ErrorResponse"
	case Indication:
		return "Indication"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// Frame is one CAN frame carrying a Touchbridge message: the 32-bit
// identifier plus up to 8 data bytes.
type Frame struct {
	ID   uint32
	Len  uint8
	Data [8]byte
}

func field(id uint32, shift, mask uint32) uint32 {
	return (id >> shift) & mask
}

func setField(id uint32, shift, mask, value uint32) uint32 {
	id &^= mask << shift
	id |= (value & mask) << shift
	return id
}

// SrcPort returns the identifier's source-port field.
func (f Frame) SrcPort() uint8 { return uint8(field(f.ID, srcPortShift, srcPortMask)) }

// SrcAddr returns the identifier's source-address field.
func (f Frame) SrcAddr() uint8 { return uint8(field(f.ID, srcAddrShift, srcAddrMask)) }

// DstPort returns the identifier's destination-port field.
func (f Frame) DstPort() uint8 { return uint8(field(f.ID, dstPortShift, dstPortMask)) }

// DstAddr returns the identifier's destination-address field.
func (f Frame) DstAddr() uint8 { return uint8(field(f.ID, dstAddrShift, dstAddrMask)) }

// State returns the identifier's state bit.
func (f Frame) State() bool { return field(f.ID, stateShift, stateMask) != 0 }

// Continued returns the identifier's continuation bit.
func (f Frame) Continued() bool { return field(f.ID, continuedShift, continuedMask) != 0 }

// Type returns the identifier's 2-bit message type.
func (f Frame) Type() MsgType { return MsgType(field(f.ID, msgTypeShift, msgTypeMask)) }

// ExtendedID reports whether the CAN extended-identifier bit is set.
func (f Frame) ExtendedID() bool { return field(f.ID, extIDShift, extIDMask) != 0 }

// RTR reports whether the CAN remote-transmission-request bit is set.
func (f Frame) RTR() bool { return field(f.ID, rtrShift, rtrMask) != 0 }

// Valid reports whether a Frame is a well-formed Touchbridge frame: the
// extended-id bit must be set and the RTR bit must be clear (spec §3).
func (f Frame) Valid() bool {
	return f.ExtendedID() && !f.RTR()
}

// Fields bundles the identifier's addressing/type fields for construction.
type Fields struct {
	SrcPort, SrcAddr uint8
	DstPort, DstAddr uint8
	State, Continued bool
	Type             MsgType
}

// Encode builds the 32-bit identifier from Fields, always setting the
// extended-id bit and leaving RTR clear, per spec §3.
func Encode(f Fields) uint32 {
	var id uint32
	id = setField(id, srcPortShift, srcPortMask, uint32(f.SrcPort))
	id = setField(id, srcAddrShift, srcAddrMask, uint32(f.SrcAddr))
	id = setField(id, dstPortShift, dstPortMask, uint32(f.DstPort))
	id = setField(id, dstAddrShift, dstAddrMask, uint32(f.DstAddr))
	id = setField(id, msgTypeShift, msgTypeMask, uint32(f.Type))
	id = setField(id, extIDShift, extIDMask, 1)
	if f.State {
		id = setField(id, stateShift, stateMask, 1)
	}
	if f.Continued {
		id = setField(id, continuedShift, continuedMask, 1)
	}
	return id
}

// Decode splits an identifier back into Fields. This is the inverse of
// Encode and is used only by tests and diagnostics; normal dispatch code
// reads fields directly off a Frame via the accessor methods above.
func Decode(id uint32) Fields {
	return Fields{
		SrcPort:   uint8(field(id, srcPortShift, srcPortMask)),
		SrcAddr:   uint8(field(id, srcAddrShift, srcAddrMask)),
		DstPort:   uint8(field(id, dstPortShift, dstPortMask)),
		DstAddr:   uint8(field(id, dstAddrShift, dstAddrMask)),
		State:     field(id, stateShift, stateMask) != 0,
		Continued: field(id, continuedShift, continuedMask) != 0,
		Type:      MsgType(field(id, msgTypeShift, msgTypeMask)),
	}
}
