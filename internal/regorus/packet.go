package regorus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// -------------------------------------------------------------------------
// Protocol Constants
// -------------------------------------------------------------------------

// HeaderSize is the fixed regorus header size in bytes:
// op (16 bits) + reserved (16 bits) + info (32 bits).
const HeaderSize = 8

// EtherType is the default Ethernet protocol identifier carried in the
// datalink envelope. 0x88B5 is the IEEE 802 local experimental EtherType.
const EtherType uint16 = 0x88B5

// MaxFrameSize is the largest frame the receive path reads: a 1500-byte
// payload plus the 14-byte Ethernet header and 4 bytes for a VLAN tag.
const MaxFrameSize = 1518

// unknownFmt is the format string for unrecognized enum values with numeric code.
const unknownFmt = "Unknown(%d)"

// -------------------------------------------------------------------------
// Opcodes
// -------------------------------------------------------------------------

// Op is the regorus operation code in the first header word.
type Op uint16

const (
	// OpPing is a broadcast probe.
	OpPing Op = 1

	// OpPong acknowledges a probe.
	OpPong Op = 2

	// OpReq is reserved for configuration requests.
	OpReq Op = 3

	// OpRep is reserved for configuration replies.
	OpRep Op = 4
)

// opNames maps opcodes to human-readable strings. Index 0 is unused.
var opNames = [5]string{
	"",
	"Ping",
	"Pong",
	"Req",
	"Rep",
}

// String returns the human-readable name for the opcode.
func (o Op) String() string {
	if o != 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf(unknownFmt, o)
}

// Known reports whether o is one of the four defined opcodes.
func (o Op) Known() bool {
	return o >= OpPing && o <= OpRep
}

// -------------------------------------------------------------------------
// Header
// -------------------------------------------------------------------------

// Header is the regorus wire header that follows the datalink envelope.
//
// Wire format (big-endian):
//
//	Bytes 0-1: Op
//	Bytes 2-3: Reserved
//	Bytes 4-7: Info
type Header struct {
	Op       Op
	Reserved uint16
	Info     uint32
}

// Sentinel errors for header encoding and decoding.
var (
	// ErrShortPacket indicates fewer than HeaderSize bytes follow the
	// datalink envelope. The frame must be dropped, never re-decoded.
	ErrShortPacket = errors.New("short regorus packet")

	// ErrBufTooSmall indicates the caller-provided buffer cannot hold a header.
	ErrBufTooSmall = errors.New("buffer too small for regorus header")
)

// MarshalTo writes the header into buf and returns the number of bytes
// written (always HeaderSize on success).
func (h Header) MarshalTo(buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf("marshal header into %d bytes: %w", len(buf), ErrBufTooSmall)
	}

	binary.BigEndian.PutUint16(buf[0:2], uint16(h.Op))
	binary.BigEndian.PutUint16(buf[2:4], h.Reserved)
	binary.BigEndian.PutUint32(buf[4:8], h.Info)

	return HeaderSize, nil
}

// Encode returns the 8-byte wire form of a header with the given opcode and
// info value. The reserved word is zero.
func Encode(op Op, info uint32) []byte {
	buf := make([]byte, HeaderSize)
	_, _ = Header{Op: op, Info: info}.MarshalTo(buf)
	return buf
}

// Decode parses a header from the start of b. Bytes after the header
// (Ethernet padding) are ignored.
func Decode(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("decode header from %d bytes: %w", len(b), ErrShortPacket)
	}

	return Header{
		Op:       Op(binary.BigEndian.Uint16(b[0:2])),
		Reserved: binary.BigEndian.Uint16(b[2:4]),
		Info:     binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// DecodeChain parses a header from a payload split across segments.
// When the first segment already holds a full header it is decoded in
// place. Otherwise exactly one coalescing copy gathers HeaderSize bytes from
// the following segments; if the chain is too short the result is
// ErrShortPacket.
func DecodeChain(segments ...[]byte) (Header, error) {
	if len(segments) > 0 && len(segments[0]) >= HeaderSize {
		return Decode(segments[0])
	}

	var hdr [HeaderSize]byte
	n := 0
	for _, seg := range segments {
		n += copy(hdr[n:], seg)
		if n == HeaderSize {
			break
		}
	}

	return Decode(hdr[:n])
}

// -------------------------------------------------------------------------
// FramePool — receive buffers
// -------------------------------------------------------------------------

// FramePool provides reusable receive buffers of MaxFrameSize bytes.
// The pool stores *[]byte to avoid an allocation on Put.
//
// Usage:
//
//	bufp := FramePool.Get().(*[]byte)
//	defer FramePool.Put(bufp)
//	n, meta, err := conn.ReadFrame(*bufp)
var FramePool = sync.Pool{
	New: func() any {
		buf := make([]byte, MaxFrameSize)
		return &buf
	},
}
