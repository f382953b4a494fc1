package discovery

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// Inventory tracks the set of known nodes across successive discovery
// runs, using the same current/previous map-swap-and-diff pattern as
// the teacher's cache.Cache (cache/cache.go), keyed on a node's 96-bit
// hardware id instead of a netlink socket cookie: unlike a soft
// address, the hardware id survives a re-discovery even if the node's
// assigned address changes.
type Inventory struct {
	previous map[nodeKey]Candidate
	cycles   int64
}

type nodeKey struct {
	High, Low uint64
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{previous: make(map[nodeKey]Candidate)}
}

// Update folds one discovery run's candidates into the inventory and
// returns the nodes that were present in the prior cycle but are absent
// from this one.
func (inv *Inventory) Update(candidates []Candidate) (vanished []Candidate) {
	next := make(map[nodeKey]Candidate, len(candidates))
	for _, c := range candidates {
		next[nodeKey{c.High, c.Low}] = c
	}
	for k, v := range inv.previous {
		if _, ok := next[k]; !ok {
			vanished = append(vanished, v)
		}
	}
	inv.previous = next
	inv.cycles++
	return vanished
}

// CycleCount returns the number of times Update has been called.
func (inv *Inventory) CycleCount() int64 { return inv.cycles }

// Snapshot returns the inventory's current contents in no particular
// order.
func (inv *Inventory) Snapshot() []Candidate {
	out := make([]Candidate, 0, len(inv.previous))
	for _, v := range inv.previous {
		out = append(out, v)
	}
	return out
}

// csvRow is the flattened, gocsv-tagged shape of one inventory entry,
// used only by WriteCSV; the hardware id halves are rendered in hex
// since that's how tbgctl nodes prints them on the terminal.
type csvRow struct {
	HardwareID string `csv:"hardware_id"`
	Address    uint8  `csv:"address"`
}

// WriteCSV renders the inventory's current contents as CSV, backing
// `tbgctl nodes --csv` the same way cmd/csvtool renders snapshots via
// gocsv.Marshal.
func (inv *Inventory) WriteCSV(w io.Writer) error {
	rows := make([]csvRow, 0, len(inv.previous))
	for _, c := range inv.Snapshot() {
		rows = append(rows, csvRow{
			HardwareID: fmt.Sprintf("%012x%012x", c.High, c.Low),
			Address:    c.Address,
		})
	}
	return gocsv.Marshal(rows, w)
}
