//go:build linux

package netio

import (
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// NetlinkResolver resolves links through rtnetlink.
type NetlinkResolver struct{}

// LinkByName looks up the link called name.
func (NetlinkResolver) LinkByName(name string) (LinkInfo, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, unix.ENODEV) {
			return LinkInfo{}, fmt.Errorf("link %s: %w", name, ErrLinkNotFound)
		}
		return LinkInfo{}, fmt.Errorf("link %s: %w", name, err)
	}

	attrs := link.Attrs()
	return LinkInfo{
		Name:         attrs.Name,
		Index:        attrs.Index,
		HardwareAddr: attrs.HardwareAddr,
		Running:      attrs.RawFlags&unix.IFF_RUNNING != 0,
	}, nil
}
