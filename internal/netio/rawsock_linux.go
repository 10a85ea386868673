//go:build linux

package netio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// readTimeout bounds each blocking read so read loops notice cancellation.
const readTimeout = 250 * time.Millisecond

// -------------------------------------------------------------------------
// LinuxFrameConn — AF_PACKET raw socket
// -------------------------------------------------------------------------

// LinuxFrameConn implements FrameConn with an AF_PACKET SOCK_RAW socket
// bound to one interface and one EtherType. Frames are read and written
// with their Ethernet header.
type LinuxFrameConn struct {
	fd      int
	ifIndex int
	proto   uint16

	mu     sync.RWMutex
	closed bool
}

// NewFrameConn opens a packet socket on the interface with index ifIndex
// that receives only frames carrying etherType.
//
// Socket configuration:
//   - AF_PACKET, SOCK_RAW | SOCK_CLOEXEC, protocol htons(etherType)
//   - bound to ifIndex via sockaddr_ll
//   - SO_RCVTIMEO = readTimeout
func NewFrameConn(ifIndex int, etherType uint16) (*LinuxFrameConn, error) {
	proto := htons(etherType)

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return nil, fmt.Errorf("AF_PACKET socket: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrLinklayer{Protocol: proto, Ifindex: ifIndex}); err != nil {
		return nil, errors.Join(fmt.Errorf("bind ifindex %d: %w", ifIndex, err), unix.Close(fd))
	}

	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return nil, errors.Join(fmt.Errorf("set SO_RCVTIMEO: %w", err), unix.Close(fd))
	}

	return &LinuxFrameConn{fd: fd, ifIndex: ifIndex, proto: proto}, nil
}

// ReadFrame reads one frame into buf.
func (c *LinuxFrameConn) ReadFrame(buf []byte) (int, FrameMeta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, FrameMeta{}, ErrSocketClosed
	}

	n, from, err := unix.Recvfrom(c.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, FrameMeta{}, ErrReadTimeout
		}
		return 0, FrameMeta{}, fmt.Errorf("recvfrom ifindex %d: %w", c.ifIndex, err)
	}

	meta := FrameMeta{IfIndex: c.ifIndex}
	if sll, ok := from.(*unix.SockaddrLinklayer); ok {
		meta.IfIndex = sll.Ifindex
		meta.Outgoing = sll.Pkttype == unix.PACKET_OUTGOING
		if hl := int(sll.Halen); hl > 0 && hl <= len(sll.Addr) {
			meta.Src = net.HardwareAddr(append([]byte(nil), sll.Addr[:hl]...))
		}
	}

	return n, meta, nil
}

// WriteFrame transmits frame on the bound interface.
func (c *LinuxFrameConn) WriteFrame(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrSocketClosed
	}

	to := &unix.SockaddrLinklayer{Protocol: c.proto, Ifindex: c.ifIndex}
	if err := unix.Sendto(c.fd, frame, 0, to); err != nil {
		return fmt.Errorf("sendto ifindex %d: %w", c.ifIndex, err)
	}
	return nil
}

// Close releases the socket. It waits for an in-flight read to time out.
func (c *LinuxFrameConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := unix.Close(c.fd); err != nil {
		return fmt.Errorf("close packet socket: %w", err)
	}
	return nil
}

// htons converts v to network byte order as the packet socket API expects
// for protocol numbers.
func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}

// OpenFrameConn is NewFrameConn returning the FrameConn interface, for use
// as a ConnFactory.
func OpenFrameConn(ifIndex int, etherType uint16) (FrameConn, error) {
	conn, err := NewFrameConn(ifIndex, etherType)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
