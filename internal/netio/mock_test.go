package netio_test

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dantte-lp/regorus/internal/netio"
	"github.com/dantte-lp/regorus/internal/regorus"
)

// -------------------------------------------------------------------------
// MockFrameConn — Test double for FrameConn
// -------------------------------------------------------------------------

type mockRead struct {
	frame []byte
	meta  netio.FrameMeta
}

// MockFrameConn implements netio.FrameConn without a socket. Frames pushed
// with Inject are returned by ReadFrame in order; an idle read times out.
type MockFrameConn struct {
	reads  chan mockRead
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written [][]byte
}

func NewMockFrameConn() *MockFrameConn {
	return &MockFrameConn{
		reads:  make(chan mockRead, 16),
		closed: make(chan struct{}),
	}
}

func (m *MockFrameConn) Inject(frame []byte, meta netio.FrameMeta) {
	m.reads <- mockRead{frame: frame, meta: meta}
}

func (m *MockFrameConn) ReadFrame(buf []byte) (int, netio.FrameMeta, error) {
	select {
	case <-m.closed:
		return 0, netio.FrameMeta{}, netio.ErrSocketClosed
	case r := <-m.reads:
		return copy(buf, r.frame), r.meta, nil
	case <-time.After(50 * time.Millisecond):
		return 0, netio.FrameMeta{}, netio.ErrReadTimeout
	}
}

func (m *MockFrameConn) WriteFrame(frame []byte) error {
	select {
	case <-m.closed:
		return netio.ErrSocketClosed
	default:
	}

	m.mu.Lock()
	m.written = append(m.written, bytes.Clone(frame))
	m.mu.Unlock()
	return nil
}

func (m *MockFrameConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *MockFrameConn) Closed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *MockFrameConn) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

// -------------------------------------------------------------------------
// mockLinks — LinkResolver over a fixed table
// -------------------------------------------------------------------------

type mockLinks map[string]netio.LinkInfo

func (l mockLinks) LinkByName(name string) (netio.LinkInfo, error) {
	info, ok := l[name]
	if !ok {
		return netio.LinkInfo{}, fmt.Errorf("link %s: %w", name, netio.ErrLinkNotFound)
	}
	return info, nil
}

// -------------------------------------------------------------------------
// recordingDeliverer — Deliverer capturing frames
// -------------------------------------------------------------------------

type delivered struct {
	iface string
	frame []byte
}

type recordingDeliverer struct {
	mu     sync.Mutex
	frames []delivered
}

func (d *recordingDeliverer) Receive(iface regorus.Interface, frame []byte) {
	d.mu.Lock()
	d.frames = append(d.frames, delivered{iface: iface.Name(), frame: bytes.Clone(frame)})
	d.mu.Unlock()
}

func (d *recordingDeliverer) all() []delivered {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivered(nil), d.frames...)
}

func testMAC(last byte) net.HardwareAddr {
	return net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, last}
}
