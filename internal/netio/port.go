package netio

import (
	"fmt"
	"net"
	"sync/atomic"
)

// Port is one host interface opened for regorus traffic. It implements
// regorus.Interface: the engine transmits through it and the Receiver
// reads from it.
type Port struct {
	name  string
	index int
	mac   net.HardwareAddr
	conn  FrameConn

	running atomic.Bool
}

// NewPort wraps conn as the port for the named interface.
func NewPort(name string, index int, mac net.HardwareAddr, conn FrameConn, running bool) *Port {
	p := &Port{
		name:  name,
		index: index,
		mac:   mac,
		conn:  conn,
	}
	p.running.Store(running)
	return p
}

// Name returns the interface name.
func (p *Port) Name() string { return p.name }

// Index returns the kernel interface index.
func (p *Port) Index() int { return p.index }

// HardwareAddr returns the interface link address.
func (p *Port) HardwareAddr() net.HardwareAddr { return p.mac }

// Running reports the last known IFF_RUNNING state.
func (p *Port) Running() bool { return p.running.Load() }

// SetRunning updates the running state, normally from link monitor events.
func (p *Port) SetRunning(up bool) { p.running.Store(up) }

// Transmit writes frame to the interface.
func (p *Port) Transmit(frame []byte) error {
	if err := p.conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("transmit on %s: %w", p.name, err)
	}
	return nil
}

// Close closes the port's socket.
func (p *Port) Close() error {
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("close port %s: %w", p.name, err)
	}
	return nil
}
