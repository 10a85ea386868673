package regorus_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"testing"

	"github.com/dantte-lp/regorus/internal/regorus"
)

func TestEncodeFrameEnvelope(t *testing.T) {
	t.Parallel()

	src := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	frame, err := regorus.EncodeFrame(src, regorus.EtherType, regorus.Header{Op: regorus.OpPing, Info: 1})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	if len(frame) < regorus.EthernetHeaderSize+regorus.HeaderSize {
		t.Fatalf("frame len = %d, want >= %d", len(frame), regorus.EthernetHeaderSize+regorus.HeaderSize)
	}
	if dst := net.HardwareAddr(frame[0:6]); !bytes.Equal(dst, regorus.BroadcastAddr) {
		t.Errorf("dst = %s, want %s", dst, regorus.BroadcastAddr)
	}
	if got := net.HardwareAddr(frame[6:12]); !bytes.Equal(got, src) {
		t.Errorf("src = %s, want %s", got, src)
	}
	if et := binary.BigEndian.Uint16(frame[12:14]); et != 0x88B5 {
		t.Errorf("ethertype = 0x%04x, want 0x88b5", et)
	}

	payload := frame[regorus.EthernetHeaderSize : regorus.EthernetHeaderSize+regorus.HeaderSize]
	if want := regorus.Encode(regorus.OpPing, 1); !bytes.Equal(payload, want) {
		t.Errorf("payload = % x, want % x", payload, want)
	}
}

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	src := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x07}
	frame, err := regorus.EncodeFrame(src, regorus.EtherType, regorus.Header{Op: regorus.OpPong, Info: 42})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	f, err := regorus.DecodeFrame(frame, regorus.EtherType)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if f.Header.Op != regorus.OpPong || f.Header.Info != 42 {
		t.Errorf("header = %+v, want Pong/42", f.Header)
	}
	if !bytes.Equal(f.Src, src) {
		t.Errorf("Src = %s, want %s", f.Src, src)
	}
	if !bytes.Equal(f.Dst, regorus.BroadcastAddr) {
		t.Errorf("Dst = %s, want broadcast", f.Dst)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	t.Parallel()

	src := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	valid, err := regorus.EncodeFrame(src, regorus.EtherType, regorus.Header{Op: regorus.OpPing})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	foreign := bytes.Clone(valid)
	binary.BigEndian.PutUint16(foreign[12:14], 0x0806)

	// Envelope plus three payload bytes.
	short := bytes.Clone(valid[:regorus.EthernetHeaderSize+3])

	tests := []struct {
		name    string
		frame   []byte
		wantErr error
	}{
		{name: "foreign ethertype", frame: foreign, wantErr: regorus.ErrForeignEtherType},
		{name: "short payload", frame: short, wantErr: regorus.ErrShortPacket},
		{name: "truncated envelope", frame: valid[:10], wantErr: regorus.ErrShortPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := regorus.DecodeFrame(tt.frame, regorus.EtherType); !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeFrame error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEtherType(t *testing.T) {
	t.Parallel()

	if err := regorus.ValidateEtherType(regorus.EtherType); err != nil {
		t.Errorf("ValidateEtherType(0x88b5) = %v, want nil", err)
	}
	if err := regorus.ValidateEtherType(0x05dc); !errors.Is(err, regorus.ErrInvalidEtherType) {
		t.Errorf("ValidateEtherType(0x05dc) = %v, want ErrInvalidEtherType", err)
	}
}
