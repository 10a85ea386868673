//go:build !linux

package netio

import "fmt"

// OpenFrameConn is unavailable outside Linux.
func OpenFrameConn(ifIndex int, _ uint16) (FrameConn, error) {
	return nil, fmt.Errorf("open ifindex %d: %w", ifIndex, ErrUnsupportedPlatform)
}
