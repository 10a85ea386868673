package netio

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"

	"github.com/dantte-lp/regorus/internal/regorus"
)

// LinkInfo is what the resolver needs to know about a host link.
type LinkInfo struct {
	Name         string
	Index        int
	HardwareAddr net.HardwareAddr
	Running      bool
}

// LinkResolver looks up host links by name. LinkByName returns an error
// wrapping ErrLinkNotFound when the link does not exist.
type LinkResolver interface {
	LinkByName(name string) (LinkInfo, error)
}

// ConnFactory opens a FrameConn on the interface with the given index.
type ConnFactory func(ifIndex int, etherType uint16) (FrameConn, error)

// PortsOption configures optional Ports parameters.
type PortsOption func(*Ports)

// WithPortHook registers fn to be called with every newly opened port,
// typically Receiver.Attach.
func WithPortHook(fn func(*Port)) PortsOption {
	return func(p *Ports) {
		p.hook = fn
	}
}

// Ports opens and owns one Port per interface name. It implements
// regorus.InterfaceResolver: resolving a name opens its socket once and
// returns the same Port on later calls.
type Ports struct {
	mu    sync.Mutex
	ports map[string]*Port

	links     LinkResolver
	open      ConnFactory
	etherType uint16
	hook      func(*Port)

	logger *slog.Logger
}

// NewPorts creates an empty port set.
func NewPorts(links LinkResolver, open ConnFactory, etherType uint16, logger *slog.Logger, opts ...PortsOption) *Ports {
	p := &Ports{
		ports:     make(map[string]*Port),
		links:     links,
		open:      open,
		etherType: etherType,
		logger:    logger.With(slog.String("component", "netio.ports")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve returns the Port for name, opening it on first use. A name the
// host does not know yields an error wrapping regorus.ErrUnknownInterface.
func (p *Ports) Resolve(name string) (regorus.Interface, error) {
	port, err := p.Open(name)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Open is Resolve returning the concrete Port.
func (p *Ports) Open(name string) (*Port, error) {
	p.mu.Lock()
	if port, ok := p.ports[name]; ok {
		p.mu.Unlock()
		return port, nil
	}

	link, err := p.links.LinkByName(name)
	if err != nil {
		p.mu.Unlock()
		if errors.Is(err, ErrLinkNotFound) {
			return nil, fmt.Errorf("resolve %s: %w: %w", name, regorus.ErrUnknownInterface, err)
		}
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}

	conn, err := p.open(link.Index, p.etherType)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("open port %s: %w", name, err)
	}

	port := NewPort(link.Name, link.Index, link.HardwareAddr, conn, link.Running)
	p.ports[name] = port
	p.mu.Unlock()

	p.logger.Info("port opened",
		slog.String("interface", name),
		slog.Int("ifindex", link.Index),
		slog.String("hw_addr", link.HardwareAddr.String()),
		slog.Bool("running", link.Running),
	)

	if p.hook != nil {
		p.hook(port)
	}
	return port, nil
}

// Get returns the open Port for name.
func (p *Ports) Get(name string) (*Port, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	port, ok := p.ports[name]
	return port, ok
}

// SetRunning updates the running state of an open port. It reports
// whether a port with that name exists.
func (p *Ports) SetRunning(name string, up bool) bool {
	port, ok := p.Get(name)
	if ok {
		port.SetRunning(up)
	}
	return ok
}

// Names returns the names of all open ports, sorted.
func (p *Ports) Names() []string {
	p.mu.Lock()
	names := make([]string, 0, len(p.ports))
	for name := range p.ports {
		names = append(names, name)
	}
	p.mu.Unlock()

	slices.Sort(names)
	return names
}

// Close closes every open port.
func (p *Ports) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, port := range p.ports {
		if err := port.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.ports, name)
	}
	return errors.Join(errs...)
}
