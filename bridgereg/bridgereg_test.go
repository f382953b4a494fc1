package bridgereg_test

import (
	"testing"

	"github.com/touchbridge/touchbridge/bridgereg"
)

func selectByte(addr bridgereg.Register, cfg byte) byte {
	return byte(addr)<<4 | cfg&0xF
}

func TestWriteAccumulatesAndCommitsAtDeclaredSize(t *testing.T) {
	c := bridgereg.New()
	var committed []byte
	c.OnCommit(func(r bridgereg.Register, data []byte) {
		if r != bridgereg.Cfg1 {
			t.Fatalf("want commit of cfg-1, got %v", r)
		}
		committed = append([]byte(nil), data...)
	})

	c.Select(selectByte(bridgereg.Cfg1, 0))
	if committed != nil {
		t.Fatalf("commit fired before register filled")
	}
	if err := c.WriteOctet(0x7A); err != nil {
		t.Fatalf("WriteOctet: %v", err)
	}
	if committed == nil || committed[0] != 0x7A {
		t.Fatalf("want commit of {0x7A}, got %v", committed)
	}

	// A further write without an intervening Select is rejected.
	if err := c.WriteOctet(0x01); err != bridgereg.ErrRegisterFull {
		t.Fatalf("want ErrRegisterFull, got %v", err)
	}
}

func TestWritePartialDoesNotCommit(t *testing.T) {
	c := bridgereg.New()
	fired := false
	c.OnCommit(func(bridgereg.Register, []byte) { fired = true })

	c.Select(selectByte(bridgereg.Filter1, 0))
	if err := c.WriteOctet(1); err != nil {
		t.Fatalf("WriteOctet: %v", err)
	}
	if err := c.WriteOctet(2); err != nil {
		t.Fatalf("WriteOctet: %v", err)
	}
	if fired {
		t.Fatalf("commit fired before all 4 octets of filter-1 were written")
	}
	if err := c.WriteOctet(3); err != nil {
		t.Fatalf("WriteOctet: %v", err)
	}
	if err := c.WriteOctet(4); err != nil {
		t.Fatalf("WriteOctet: %v", err)
	}
	if !fired {
		t.Fatalf("want commit once filter-1's 4th octet is written")
	}
}

func TestReadPreFetchesThenDrainsSnapshot(t *testing.T) {
	c := bridgereg.New()
	c.Select(selectByte(bridgereg.Filter2, 0))
	for _, b := range []byte{0x11, 0x22, 0x33, 0x44} {
		if err := c.WriteOctet(b); err != nil {
			t.Fatalf("WriteOctet: %v", err)
		}
	}

	c.Select(selectByte(bridgereg.Filter2, 0))
	got := make([]byte, 0, 4)
	for i := 0; i < 4; i++ {
		b, err := c.ReadOctet()
		if err != nil {
			t.Fatalf("ReadOctet: %v", err)
		}
		got = append(got, b)
	}
	want := []byte{0x11, 0x22, 0x33, 0x44}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("octet %d: want %#x, got %#x", i, want[i], got[i])
		}
	}

	// Reads past the register's declared size return zero, not an error.
	b, err := c.ReadOctet()
	if err != nil || b != 0 {
		t.Fatalf("want (0, nil) past end of register, got (%#x, %v)", b, err)
	}
}

func TestReadSnapshotIsStableAcrossConcurrentCommit(t *testing.T) {
	c := bridgereg.New()
	c.Select(selectByte(bridgereg.Cfg1, 0))
	if err := c.WriteOctet(0x01); err != nil {
		t.Fatalf("WriteOctet: %v", err)
	}

	c.Select(selectByte(bridgereg.Cfg1, 0))
	first, err := c.ReadOctet()
	if err != nil || first != 0x01 {
		t.Fatalf("want (0x01, nil), got (%#x, %v)", first, err)
	}

	// A write to a different register must not disturb the already
	// pre-fetched read snapshot of cfg-1.
	c.SetMailboxFrame([]byte{0xAA})

	again, err := c.ReadOctet()
	if err != nil {
		t.Fatalf("ReadOctet: %v", err)
	}
	if again != 0 {
		t.Fatalf("cfg-1 is 1 octet; second read should be past-end zero, got %#x", again)
	}
}

func TestNoRegisterSelectedRejectsReadAndWrite(t *testing.T) {
	c := bridgereg.New()
	if _, err := c.ReadOctet(); err != bridgereg.ErrNoRegisterSelected {
		t.Fatalf("want ErrNoRegisterSelected, got %v", err)
	}
	if err := c.WriteOctet(0); err != bridgereg.ErrNoRegisterSelected {
		t.Fatalf("want ErrNoRegisterSelected, got %v", err)
	}
}

func TestStatusByteReflectsMailboxAndDeassertsInterrupt(t *testing.T) {
	c := bridgereg.New()
	c.Select(selectByte(bridgereg.CANMailbox, 1)) // rx interrupt enable

	if c.InterruptAsserted() {
		t.Fatalf("interrupt should not be asserted before a frame arrives")
	}
	c.SetMailboxFrame([]byte{1, 2, 3})
	if !c.InterruptAsserted() {
		t.Fatalf("want interrupt asserted once rx-data-avail is set with rx interrupts enabled")
	}

	status := c.StatusByte()
	if status&(1<<2) == 0 {
		t.Fatalf("want rx-data-avail bit set in status byte %08b", status)
	}
	if status&(1<<1) == 0 {
		t.Fatalf("want tx-buf-empty bit set by default in status byte %08b", status)
	}
	if c.InterruptAsserted() {
		t.Fatalf("reading the status register must de-assert the interrupt line")
	}

	addr := status >> 4 & 0xF
	if bridgereg.Register(addr) != bridgereg.CANMailbox {
		t.Fatalf("want status addr nibble to report the selected register, got %d", addr)
	}
}

func TestOverflowBitStickyUntilConfigReset(t *testing.T) {
	c := bridgereg.New()
	c.SetMailboxFrame(make([]byte, 64)) // larger than CAN-mailbox's declared size
	if !c.Overflow() {
		t.Fatalf("want overflow set after an oversized mailbox write")
	}

	c.Select(selectByte(bridgereg.CANMailbox, 0))
	if !c.Overflow() {
		t.Fatalf("overflow must stay set across an unrelated select")
	}

	c.Select(selectByte(bridgereg.CANMailbox, 1<<2)) // overflow-reset bit
	if c.Overflow() {
		t.Fatalf("want overflow cleared by the overflow-reset config bit")
	}
}

func TestTxBufEmptyAssertsInterruptWhenEnabled(t *testing.T) {
	c := bridgereg.New()
	c.Select(selectByte(bridgereg.CANMailbox, 1<<1)) // tx interrupt enable
	c.SetTxBufEmpty(false)
	if c.InterruptAsserted() {
		t.Fatalf("interrupt should not assert while tx buffer is busy")
	}
	c.SetTxBufEmpty(true)
	if !c.InterruptAsserted() {
		t.Fatalf("want interrupt asserted once the tx buffer frees up with tx interrupts enabled")
	}
}

func TestSelectOutOfRangeAddressDisablesAccess(t *testing.T) {
	c := bridgereg.New()
	c.Select(0xF0) // addr nibble 0xF, beyond the 4 declared registers
	if _, err := c.ReadOctet(); err != bridgereg.ErrNoRegisterSelected {
		t.Fatalf("want ErrNoRegisterSelected for an out-of-range register, got %v", err)
	}
}
