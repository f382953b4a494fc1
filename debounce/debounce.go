// Package debounce implements the tick-driven digital-input debouncer
// described in spec §4.5: a per-channel countdown timer plus a
// last-observed-state word, sampled once per timer tick.
package debounce

import (
	"encoding/binary"

	"github.com/touchbridge/touchbridge/frame"
)

// DefaultDebounceTime is the number of ticks a channel's timer runs for
// once an edge is observed on a debounce-enabled channel.
const DefaultDebounceTime = 20

// Debouncer holds the masks and per-channel running state for one bank of
// up to 32 digital input channels.
type Debouncer struct {
	RisingMask   uint32
	FallingMask  uint32
	EnableMask   uint32
	DebounceTime uint32

	last   uint32
	timers [32]uint32
}

// New creates a Debouncer with the given edge/enable masks and the
// default debounce time.
func New(risingMask, fallingMask, enableMask uint32) *Debouncer {
	return &Debouncer{
		RisingMask:   risingMask,
		FallingMask:  fallingMask,
		EnableMask:   enableMask,
		DebounceTime: DefaultDebounceTime,
	}
}

// Tick runs one sampling cycle: decrement running timers, compute edge
// events against the sample, and arm the timer of any debounce-enabled
// channel that just produced an event. It returns the events that
// propagate this tick (only from channels whose timer has expired) and
// the raw sample, exactly the {events, state} pair spec §4.5 says the
// main loop publishes as an Indication frame.
func (d *Debouncer) Tick(sample uint32) (events, state uint32) {
	for i := range d.timers {
		if d.timers[i] > 0 {
			d.timers[i]--
		}
	}

	edge := (sample ^ d.last) & ((sample & d.RisingMask) | (^sample & d.FallingMask))
	d.last = sample

	var ready uint32
	for i := 0; i < 32; i++ {
		if d.timers[i] == 0 {
			ready |= 1 << uint(i)
		}
	}
	events = edge & ready

	for i := 0; i < 32; i++ {
		bit := uint32(1) << uint(i)
		if d.timers[i] == 0 && d.EnableMask&bit != 0 && edge&bit != 0 {
			d.timers[i] = d.DebounceTime
		}
	}
	return events, sample
}

// Indication builds the broadcast Indication frame a node emits after a
// Tick that produced nonzero events, per spec §4.5: data is {events:u32,
// state:u32}, little-endian, source is the node's own address on its
// input port.
func Indication(srcAddr, srcPort uint8, events, state uint32) frame.Frame {
	var f frame.Frame
	f.ID = frame.Encode(frame.Fields{
		SrcAddr: srcAddr,
		SrcPort: srcPort,
		DstAddr: frame.AddrBroadcast,
		Type:    frame.Indication,
	})
	binary.LittleEndian.PutUint32(f.Data[0:4], events)
	binary.LittleEndian.PutUint32(f.Data[4:8], state)
	f.Len = 8
	return f
}
