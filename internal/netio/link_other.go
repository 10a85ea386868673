//go:build !linux

package netio

import (
	"fmt"
	"log/slog"
)

// NetlinkResolver is unavailable outside Linux.
type NetlinkResolver struct{}

// LinkByName always fails outside Linux.
func (NetlinkResolver) LinkByName(name string) (LinkInfo, error) {
	return LinkInfo{}, fmt.Errorf("link %s: %w", name, ErrUnsupportedPlatform)
}

// NewInterfaceMonitor returns a monitor that never reports changes.
func NewInterfaceMonitor(logger *slog.Logger) InterfaceMonitor {
	return NewStubInterfaceMonitor(logger)
}
