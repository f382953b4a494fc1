//go:build !linux
// +build !linux

package canbus

// Open is unavailable outside Linux; SocketCAN is a Linux-only facility.
// Mirrors the teacher's collector_darwin.go stub.
func Open(ifname string) (Bus, error) {
	return nil, ErrUnsupported
}
