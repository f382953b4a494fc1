package node

// Command bits of the adisc port primitive (spec §4.4). The full
// discovery algorithm lives on the host side, in package discovery; a
// node only implements this single primitive.
const (
	adiscReturnID        = 1 << 0
	adiscReturnHigh      = 1 << 1
	adiscMatchID         = 1 << 2
	adiscMatchHigh       = 1 << 3
	adiscAssignAddr      = 1 << 4
	adiscSetShortlist    = 1 << 5
	adiscClearShortlist  = 1 << 6
	adiscMatchShortlist  = 1 << 7
)

// hwIDHalf returns the high or low 48-bit half of the node's 96-bit
// hardware id, packed into the low 48 bits of a uint64 for comparison.
func hwIDHalf(hwid [12]byte, high bool) uint64 {
	var b [6]byte
	if high {
		copy(b[:], hwid[0:6])
	} else {
		copy(b[:], hwid[6:12])
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// dispatchAdisc implements the adisc primitive's matching and action
// sequence exactly as specified in spec §4.4.
func dispatchAdisc(n *Node, req []byte, p *Port) Result {
	if len(req) < 2 {
		return fail(IncorrectLength)
	}
	cmd := req[0]
	candidateAddr := req[1]

	matchID := cmd&adiscMatchID != 0
	if matchID && len(req) < 8 {
		return fail(IncorrectLength)
	}

	notMatch := false
	if matchID {
		want := bytesToUint48(req[2:8])
		got := hwIDHalf(n.HWID, cmd&adiscMatchHigh != 0)
		if want != got {
			notMatch = true
		}
	}
	if cmd&adiscMatchShortlist != 0 {
		notMatch = notMatch || !n.Shortlist
	}
	if notMatch {
		return suppressed()
	}

	// Apply actions in order: assign-addr, set-shortlist, clear-shortlist.
	if cmd&adiscAssignAddr != 0 {
		n.Address = candidateAddr
	}
	if cmd&adiscSetShortlist != 0 {
		n.Shortlist = true
	}
	if cmd&adiscClearShortlist != 0 {
		n.Shortlist = false
	}

	if cmd&adiscReturnID == 0 {
		return suppressed()
	}

	half := hwIDHalf(n.HWID, cmd&adiscReturnHigh != 0)
	resp := make([]byte, 8)
	for i := 0; i < 6; i++ {
		resp[i] = byte(half >> uint(8*(5-i)))
	}
	resp[6] = n.Address
	resp[7] = 0 // hardware-address placeholder (spec §4.4)
	return ok(resp)
}

func bytesToUint48(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
