package netio

import (
	"context"
	"log/slog"
)

// -------------------------------------------------------------------------
// Interface Monitor — link state change detection
// -------------------------------------------------------------------------

// InterfaceEvent represents a network interface state change.
type InterfaceEvent struct {
	// IfName is the network interface name (e.g., "eth0").
	IfName string

	// IfIndex is the kernel interface index.
	IfIndex int

	// Up is true when the interface is IFF_RUNNING.
	Up bool

	// Removed is true when the link was deleted (RTM_DELLINK).
	Removed bool
}

// InterfaceMonitor watches for network interface state changes.
//
// Usage:
//
//	mon := netio.NewInterfaceMonitor(logger)
//	go func() {
//	    for ev := range mon.Events() {
//	        handleLinkChange(ev)
//	    }
//	}()
//	mon.Run(ctx) // blocks until ctx is cancelled
type InterfaceMonitor interface {
	// Run starts monitoring. It blocks until ctx is cancelled and closes
	// the Events channel on return. Run must be called at most once.
	Run(ctx context.Context) error

	// Events returns the channel of detected changes.
	Events() <-chan InterfaceEvent

	// Close releases any resources held by the monitor.
	Close() error
}

// eventsChSize is the buffer of a monitor's event channel.
const eventsChSize = 64

// -------------------------------------------------------------------------
// StubInterfaceMonitor — no-op implementation
// -------------------------------------------------------------------------

// StubInterfaceMonitor never emits events. It is used where rtnetlink is
// not available.
type StubInterfaceMonitor struct {
	events chan InterfaceEvent
	logger *slog.Logger
}

// NewStubInterfaceMonitor creates a no-op interface monitor.
func NewStubInterfaceMonitor(logger *slog.Logger) *StubInterfaceMonitor {
	return &StubInterfaceMonitor{
		events: make(chan InterfaceEvent, eventsChSize),
		logger: logger.With(slog.String("component", "netio.linkmon")),
	}
}

// Run blocks until ctx is cancelled, then closes the events channel.
func (m *StubInterfaceMonitor) Run(ctx context.Context) error {
	m.logger.Info("stub interface monitor started (no-op)")
	<-ctx.Done()
	close(m.events)
	m.logger.Info("stub interface monitor stopped")
	return nil
}

// Events returns the (always empty) event channel.
func (m *StubInterfaceMonitor) Events() <-chan InterfaceEvent {
	return m.events
}

// Close is a no-op for the stub monitor.
func (m *StubInterfaceMonitor) Close() error {
	return nil
}
