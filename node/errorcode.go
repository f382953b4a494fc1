package node

import "fmt"

// ErrorCode is the one-byte error taxonomy carried in data[0] of an
// ErrorResponse frame (spec §7). Zero means success and is never sent on
// the wire as an error.
type ErrorCode uint8

// The fixed error-code table from spec §7.
const (
	Success         ErrorCode = 0
	Unimplemented   ErrorCode = 1
	NoPort          ErrorCode = 2
	NoConf          ErrorCode = 3
	ReadOnly        ErrorCode = 4
	WriteOnly       ErrorCode = 5
	IncorrectLength ErrorCode = 6
	OutOfRange      ErrorCode = 7
	IncorrectValue  ErrorCode = 8
	HardwareFault   ErrorCode = 9
)

//go:generate stringer -type=ErrorCode

func (e ErrorCode) String() string {
	switch e {
	case Success:
		return "success"
	case Unimplemented:
		return "unimplemented"
	case NoPort:
		return "no-port"
	case NoConf:
		return "no-conf"
	case ReadOnly:
		return "rdonly"
	case WriteOnly:
		return "wronly"
	case IncorrectLength:
		return "length"
	case OutOfRange:
		return "range"
	case IncorrectValue:
		return "value"
	case HardwareFault:
		return "hwfault"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint8(e))
	}
}
