package regorus_test

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dantte-lp/regorus/internal/regorus"
)

// -------------------------------------------------------------------------
// mockIface — Interface double capturing transmitted frames
// -------------------------------------------------------------------------

type mockIface struct {
	name    string
	mac     net.HardwareAddr
	running atomic.Bool
	failTx  atomic.Bool

	mu     sync.Mutex
	frames [][]byte
}

func newMockIface(name string, last byte) *mockIface {
	m := &mockIface{
		name: name,
		mac:  net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, last},
	}
	m.running.Store(true)
	return m
}

func (m *mockIface) Name() string { return m.name }
func (m *mockIface) HardwareAddr() net.HardwareAddr { return m.mac }
func (m *mockIface) Running() bool { return m.running.Load() }

var errMockTransmit = errors.New("mock transmit failure")

func (m *mockIface) Transmit(frame []byte) error {
	if m.failTx.Load() {
		return errMockTransmit
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)

	m.mu.Lock()
	m.frames = append(m.frames, buf)
	m.mu.Unlock()
	return nil
}

// sent decodes every transmitted frame.
func (m *mockIface) sent(t *testing.T) []regorus.Frame {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]regorus.Frame, 0, len(m.frames))
	for i, raw := range m.frames {
		f, err := regorus.DecodeFrame(raw, regorus.EtherType)
		if err != nil {
			t.Fatalf("frame %d: DecodeFrame: %v", i, err)
		}
		out = append(out, f)
	}
	return out
}

// -------------------------------------------------------------------------
// mockResolver — InterfaceResolver over a fixed set of interfaces
// -------------------------------------------------------------------------

type mockResolver struct {
	mu     sync.Mutex
	ifaces map[string]regorus.Interface
	calls  int
}

func newMockResolver(ifaces ...regorus.Interface) *mockResolver {
	r := &mockResolver{ifaces: make(map[string]regorus.Interface)}
	for _, i := range ifaces {
		r.ifaces[i.Name()] = i
	}
	return r
}

func (r *mockResolver) Resolve(name string) (regorus.Interface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	i, ok := r.ifaces[name]
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", name, regorus.ErrUnknownInterface)
	}
	return i, nil
}

// peerFrame builds a frame as a peer with a different MAC would send it.
func peerFrame(t *testing.T, op regorus.Op, info uint32) []byte {
	t.Helper()

	peer := net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	frame, err := regorus.EncodeFrame(peer, regorus.EtherType, regorus.Header{Op: op, Info: info})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return frame
}
