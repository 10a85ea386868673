//go:build linux

package netio

import (
	"encoding/binary"
	"testing"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

func TestLinkEvent(t *testing.T) {
	t.Parallel()

	dummy := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: "eth0", Index: 2}}

	tests := []struct {
		name    string
		msgType uint16
		flags   uint32
		want    InterfaceEvent
	}{
		{
			name:    "running",
			msgType: unix.RTM_NEWLINK,
			flags:   unix.IFF_UP | unix.IFF_RUNNING,
			want:    InterfaceEvent{IfName: "eth0", IfIndex: 2, Up: true},
		},
		{
			name:    "admin up, no carrier",
			msgType: unix.RTM_NEWLINK,
			flags:   unix.IFF_UP,
			want:    InterfaceEvent{IfName: "eth0", IfIndex: 2},
		},
		{
			name:    "deleted",
			msgType: unix.RTM_DELLINK,
			flags:   unix.IFF_UP | unix.IFF_RUNNING,
			want:    InterfaceEvent{IfName: "eth0", IfIndex: 2, Removed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u := netlink.LinkUpdate{
				IfInfomsg: nl.IfInfomsg{IfInfomsg: unix.IfInfomsg{Index: 2, Flags: tt.flags}},
				Header:    unix.NlMsghdr{Type: tt.msgType},
				Link:      dummy,
			}
			if got := linkEvent(u); got != tt.want {
				t.Errorf("linkEvent = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHtons(t *testing.T) {
	t.Parallel()

	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], htons(0x88B5))
	if b != [2]byte{0x88, 0xB5} {
		t.Errorf("htons(0x88b5) in memory = % x, want 88 b5", b[:])
	}
}
