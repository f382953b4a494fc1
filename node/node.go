// Package node implements the per-device request dispatcher: it decodes
// incoming frames, routes them to ports, services the fixed table of
// common commands (address discovery, configuration, faults) and emits
// responses, error-responses and indications (spec §4.3).
package node

import (
	"encoding/binary"

	"github.com/touchbridge/touchbridge/frame"
)

// Protocol version reported by the version global config (spec §4.3).
const (
	ProtocolType  = 1
	ProtocolMajor = 1
	ProtocolMinor = 0
)

// Node is a device on the bus. HWID is the immutable 96-bit hardware
// unique id; ProductID and FirmwareVersion are immutable descriptor
// strings. Address, Shortlist and Faults are the mutable state described
// in spec §3.
type Node struct {
	// Immutable identity.
	HWID            [12]byte // 96 bits
	ProductID       string
	FirmwareVersion string

	// Mutable state.
	Address   uint8 // soft-assigned address, initially AddrUnassigned
	Shortlist bool
	Faults    uint16
	UserID    uint32
	NodeID    uint32

	undervoltInhibit uint32

	// DevicePorts are the node's device ports, numbered >= 8 (spec §3).
	DevicePorts []Port

	// GlobalConfigs is the node's global configuration table, indexed by
	// the config port's non-is-port form (spec §4.3).
	GlobalConfigs []Config
}

// New creates a Node with its address unassigned (63), shortlist clear,
// faults clear, and the fixed global-config table installed.
func New(hwid [12]byte, productID, firmwareVersion string, devicePorts []Port) *Node {
	n := &Node{
		HWID:             hwid,
		ProductID:        productID,
		FirmwareVersion:  firmwareVersion,
		Address:          frame.AddrUnassigned,
		DevicePorts:      devicePorts,
		undervoltInhibit: DefaultUndervoltInhibit,
	}
	n.GlobalConfigs = n.buildGlobalConfigs()
	return n
}

// FindDevicePort returns the device port with the given number, or nil.
func (n *Node) FindDevicePort(number uint8) *Port {
	for i := range n.DevicePorts {
		if n.DevicePorts[i].Number == number {
			return &n.DevicePorts[i]
		}
	}
	return nil
}

func (n *Node) buildGlobalConfigs() []Config {
	return []Config{
		{ // 0: nop
			Description: "nop",
			Read:        func(n *Node, p *Port, req []byte, off int) Result { return ok(nil) },
			Write:       func(n *Node, p *Port, req []byte, off int) Result { return ok(nil) },
		},
		{ // 1: ping (echo) — returns the request's data field exactly.
			Description: "ping",
			Read: func(n *Node, p *Port, req []byte, off int) Result {
				out := make([]byte, len(req))
				copy(out, req)
				return ok(out)
			},
		},
		{ // 2: protocol version
			Description: "protocol version",
			Read: func(n *Node, p *Port, req []byte, off int) Result {
				return ok([]byte{ProtocolType, ProtocolMajor, ProtocolMinor})
			},
		},
		{ // 3: reset — unimplemented.
			Description: "reset",
			Read:        func(n *Node, p *Port, req []byte, off int) Result { return unimplementedResult() },
			Write:       func(n *Node, p *Port, req []byte, off int) Result { return unimplementedResult() },
		},
		{ // 4: node-id LSW
			Description: "node-id LSW",
			Read: func(n *Node, p *Port, req []byte, off int) Result {
				b := make([]byte, 2)
				binary.LittleEndian.PutUint16(b, uint16(n.NodeID))
				return ok(b)
			},
		},
		{ // 5: node-id MSW
			Description: "node-id MSW",
			Read: func(n *Node, p *Port, req []byte, off int) Result {
				b := make([]byte, 2)
				binary.LittleEndian.PutUint16(b, uint16(n.NodeID>>16))
				return ok(b)
			},
		},
		{ // 6: user-id, read/write
			Description: "user-id",
			Read: func(n *Node, p *Port, req []byte, off int) Result {
				b := make([]byte, 4)
				binary.LittleEndian.PutUint32(b, n.UserID)
				return ok(b)
			},
			Write: func(n *Node, p *Port, req []byte, off int) Result {
				arg := body(req, off)
				if len(arg) != 4 {
					return fail(IncorrectLength)
				}
				n.UserID = binary.LittleEndian.Uint32(arg)
				return ok(nil)
			},
		},
		{ // 7: blink — write-only.
			Description: "blink",
			Write:       func(n *Node, p *Port, req []byte, off int) Result { return ok(nil) },
		},
		{ // 8: product-id string, 8-byte chunked.
			Description: "product-id",
			Read: func(n *Node, p *Port, req []byte, off int) Result {
				arg := body(req, off)
				if len(arg) < 1 {
					return fail(IncorrectLength)
				}
				return ok(stringChunk(n.ProductID, int(arg[0])))
			},
		},
		{ // 9: firmware-version string, 8-byte chunked.
			Description: "firmware-version",
			Read: func(n *Node, p *Port, req []byte, off int) Result {
				arg := body(req, off)
				if len(arg) < 1 {
					return fail(IncorrectLength)
				}
				return ok(stringChunk(n.FirmwareVersion, int(arg[0])))
			},
		},
	}
}

// portCommonConfigs is the fixed table shared by every port, addressed as
// wire indices 0..3 of the config port's is-port form (spec §4.3). It is
// stateless so it lives at package scope rather than per-Node.
var portCommonConfigs = []Config{
	{ // 0: get-class -> {class, device-conf-count}
		Description: "get-class",
		Read: func(n *Node, p *Port, req []byte, off int) Result {
			return ok([]byte{byte(p.Class), byte(len(p.Configs))})
		},
	},
	{ // 1: get-description, 8-byte chunked.
		Description: "get-description",
		Read: func(n *Node, p *Port, req []byte, off int) Result {
			arg := body(req, off)
			if len(arg) < 1 {
				return fail(IncorrectLength)
			}
			return ok(stringChunk(p.Description, int(arg[0])))
		},
	},
	{ // 2: get-config-description(local config index), 8-byte chunked.
		Description: "get-config-description",
		Read: func(n *Node, p *Port, req []byte, off int) Result {
			arg := body(req, off)
			if len(arg) < 2 {
				return fail(IncorrectLength)
			}
			idx := int(arg[0])
			if idx < 0 || idx >= len(p.Configs) {
				return fail(NoConf)
			}
			return ok(stringChunk(p.Configs[idx].Description, int(arg[1])))
		},
	},
	{ // 3: enable-timestamp-trigger — unimplemented.
		Description: "enable-timestamp-trigger",
		Read:        func(n *Node, p *Port, req []byte, off int) Result { return unimplementedResult() },
		Write:       func(n *Node, p *Port, req []byte, off int) Result { return unimplementedResult() },
	},
}
