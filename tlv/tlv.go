// Package tlv implements the minimal framing spoken between touchbridged
// and its clients (spec §4.8): a {type:u8, length:u8} header, escaped to
// a 32-bit little-endian extended length when length == 0xFF. The
// framing assumes an in-order reliable byte stream and never
// resynchronises — any decode fault is fatal to the connection, which is
// why Reader.Next returns a plain error rather than trying to skip
// forward to the next plausible header.
package tlv

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// FrameType is the payload discriminator. Type 1 carries the 26-char
// ASCII-hex encoding of a frame.Frame (spec §6); other types are
// reserved and ignored by the core, matching spec's "payloads of other
// types are reserved and ignored" note.
const FrameType = 1

const extendedLengthMarker = 0xFF

// ErrTooLarge guards against a corrupt or hostile extended length field
// turning a framing bug into an unbounded allocation.
var ErrTooLarge = errors.New("tlv: declared length exceeds maximum message size")

// MaxLength bounds a single message's payload. Touchbridge messages are
// tiny (the hex form of an 8-byte frame is 26 bytes); this is a generous
// ceiling against malformed input, not a protocol limit.
const MaxLength = 1 << 20

// Reader reads length-delimited messages from an underlying stream. It
// is not safe for concurrent use.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for TLV decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next reads the next message's type and payload. Any returned error
// (including io.EOF) must be treated as fatal to the connection: the
// framing has no resynchronisation, so the caller's position in the
// byte stream cannot be trusted after a decode fault.
func (r *Reader) Next() (msgType uint8, payload []byte, err error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(r.r, header); err != nil {
		return 0, nil, err
	}
	msgType = header[0]
	length := uint32(header[1])
	if header[1] == extendedLengthMarker {
		ext := make([]byte, 4)
		if _, err := io.ReadFull(r.r, ext); err != nil {
			return 0, nil, err
		}
		length = binary.LittleEndian.Uint32(ext)
	}
	if length > MaxLength {
		return 0, nil, ErrTooLarge
	}
	payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.r, payload); err != nil {
			return 0, nil, err
		}
	}
	return msgType, payload, nil
}

// Writer writes length-delimited messages to an underlying stream.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for TLV encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write emits one message. It escapes to the extended length form
// whenever the payload is 0xFF bytes or longer.
func (w *Writer) Write(msgType uint8, payload []byte) error {
	if len(payload) > MaxLength {
		return ErrTooLarge
	}
	var header []byte
	if len(payload) < extendedLengthMarker {
		header = []byte{msgType, byte(len(payload))}
	} else {
		header = make([]byte, 6)
		header[0] = msgType
		header[1] = extendedLengthMarker
		binary.LittleEndian.PutUint32(header[2:], uint32(len(payload)))
	}
	if _, err := w.w.Write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.w.Write(payload)
	return err
}
