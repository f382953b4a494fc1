//go:build linux
// +build linux

package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/touchbridge/touchbridge/frame"
)

// canFrameSize is sizeof(struct can_frame) in the classic (non-FD) CAN
// ABI: a 4-byte canid_t, a length byte, three reserved/pad bytes, and 8
// data bytes.
const canFrameSize = 16

// socketCANBus binds a raw AF_CAN/SOCK_RAW socket to one interface and
// speaks the kernel's struct can_frame wire format, translated to and
// from frame.Frame with explicit byte shuffling — never an unsafe
// overlay of the kernel struct, the same discipline package frame uses
// for the identifier bit-fields (spec §9 design note).
type socketCANBus struct {
	fd int
}

// Open binds to the named SocketCAN interface (e.g. "can0"). The
// interface's bit rate is a board/controller concern asserted by
// `ip link set can0 type can bitrate ...` outside this package's scope;
// Open only binds the socket.
func Open(ifname string) (Bus, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %w", err)
	}
	idx, err := unix.IfNameToIndex(ifname)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("canbus: interface %q: %w", ifname, err)
	}
	addr := &unix.SockaddrCAN{Ifindex: int(idx)}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("canbus: bind %q: %w", ifname, err)
	}
	return &socketCANBus{fd: fd}, nil
}

// SetReadDeadline sets SO_RCVTIMEO on the socket, so a subsequent Read
// that finds nothing within timeout returns ErrTimeout instead of
// blocking indefinitely. A zero timeout clears it, restoring the
// block-forever default.
func (b *socketCANBus) SetReadDeadline(timeout time.Duration) error {
	tv := unix.NsecToTimeval(int64(timeout))
	return unix.SetsockoptTimeval(b.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (b *socketCANBus) Read() (frame.Frame, error) {
	buf := make([]byte, canFrameSize)
	n, err := unix.Read(b.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return frame.Frame{}, ErrTimeout
		}
		return frame.Frame{}, err
	}
	if n < canFrameSize {
		return frame.Frame{}, fmt.Errorf("canbus: short read of %d bytes, want %d", n, canFrameSize)
	}
	var f frame.Frame
	f.ID = binary.LittleEndian.Uint32(buf[0:4])
	f.Len = buf[4]
	copy(f.Data[:], buf[8:16])
	return f, nil
}

func (b *socketCANBus) Write(f frame.Frame) error {
	buf := make([]byte, canFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.ID)
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	_, err := unix.Write(b.fd, buf)
	return err
}

func (b *socketCANBus) Close() error {
	return unix.Close(b.fd)
}
