package netio

import (
	"errors"
	"net"
)

// -------------------------------------------------------------------------
// Transport Metadata
// -------------------------------------------------------------------------

// FrameMeta describes where a frame came from, as reported by the socket
// address of the read.
type FrameMeta struct {
	// IfIndex is the kernel index of the receiving interface.
	IfIndex int

	// IfName is the receiving interface name, set by the Port.
	IfName string

	// Src is the link-layer source address of the frame.
	Src net.HardwareAddr

	// Outgoing is true for frames this host transmitted that the kernel
	// looped back to the packet socket (PACKET_OUTGOING).
	Outgoing bool
}

// -------------------------------------------------------------------------
// FrameConn Interface
// -------------------------------------------------------------------------

// FrameConn sends and receives complete link-layer frames on one
// interface. The interface is small so tests can run without CAP_NET_RAW.
type FrameConn interface {
	// ReadFrame reads one frame into buf. It returns ErrReadTimeout when
	// no frame arrived within the socket's read timeout, so callers can
	// check for cancellation.
	ReadFrame(buf []byte) (n int, meta FrameMeta, err error)

	// WriteFrame transmits a complete frame including its Ethernet header.
	WriteFrame(frame []byte) error

	// Close releases the socket.
	Close() error
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrSocketClosed indicates an operation on a closed socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrReadTimeout indicates that a read returned without a frame.
	ErrReadTimeout = errors.New("read timeout")

	// ErrPoolType indicates the frame pool returned an unexpected type.
	ErrPoolType = errors.New("frame pool returned unexpected type")

	// ErrLinkNotFound indicates the host has no link with the given name.
	ErrLinkNotFound = errors.New("link not found")

	// ErrUnsupportedPlatform indicates raw link-layer sockets are not
	// available on this operating system.
	ErrUnsupportedPlatform = errors.New("raw link-layer sockets require linux")
)
