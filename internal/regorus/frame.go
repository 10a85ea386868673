package regorus

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EthernetHeaderSize is the size of an untagged Ethernet II header.
const EthernetHeaderSize = 14

// minEtherType is the smallest value that is an EtherType rather than an
// 802.3 length field.
const minEtherType = 0x0600

// BroadcastAddr is the all-ones destination of every regorus frame.
//
//nolint:gochecknoglobals // alias of the gopacket constant for callers that do not import layers.
var BroadcastAddr = layers.EthernetBroadcast

// ErrForeignEtherType indicates a frame that belongs to another protocol.
var ErrForeignEtherType = errors.New("frame carries a foreign ethertype")

// ErrInvalidEtherType indicates an EtherType value in the 802.3 length range.
var ErrInvalidEtherType = errors.New("ethertype must be >= 0x0600")

// Frame is a decoded regorus frame: the Ethernet envelope plus the header.
type Frame struct {
	Src       net.HardwareAddr
	Dst       net.HardwareAddr
	EtherType uint16
	Header    Header
}

// ValidateEtherType checks that t can be used as an EtherType.
func ValidateEtherType(t uint16) error {
	if t < minEtherType {
		return fmt.Errorf("ethertype 0x%04x: %w", t, ErrInvalidEtherType)
	}
	return nil
}

// EncodeFrame builds a complete broadcast frame: Ethernet envelope with
// destination ff:ff:ff:ff:ff:ff, source src and the given EtherType,
// followed by the encoded header. gopacket pads the frame to the 60-byte
// Ethernet minimum.
func EncodeFrame(src net.HardwareAddr, etherType uint16, hdr Header) ([]byte, error) {
	payload := make([]byte, HeaderSize)
	if _, err := hdr.MarshalTo(payload); err != nil {
		return nil, err
	}

	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetType(etherType),
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize %s frame from %s: %w", hdr.Op, src, err)
	}

	return buf.Bytes(), nil
}

// DecodeFrame strips the Ethernet envelope from frame and decodes the
// regorus header. Frames with another EtherType return ErrForeignEtherType;
// truncated envelopes or payloads return ErrShortPacket.
func DecodeFrame(frame []byte, etherType uint16) (Frame, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return Frame{}, fmt.Errorf("decode ethernet envelope (%d bytes): %w: %w", len(frame), ErrShortPacket, err)
	}

	if uint16(eth.EthernetType) != etherType {
		return Frame{}, fmt.Errorf("ethertype 0x%04x: %w", uint16(eth.EthernetType), ErrForeignEtherType)
	}

	hdr, err := Decode(eth.Payload)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Src:       eth.SrcMAC,
		Dst:       eth.DstMAC,
		EtherType: uint16(eth.EthernetType),
		Header:    hdr,
	}, nil
}
