//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// ErrSubscriptionClosed indicates the kernel closed the link subscription.
var ErrSubscriptionClosed = errors.New("link subscription closed")

// LinkMonitor reports RTM_NEWLINK and RTM_DELLINK notifications as
// InterfaceEvents.
type LinkMonitor struct {
	events chan InterfaceEvent
	logger *slog.Logger
}

// NewLinkMonitor creates a rtnetlink link monitor.
func NewLinkMonitor(logger *slog.Logger) *LinkMonitor {
	return &LinkMonitor{
		events: make(chan InterfaceEvent, eventsChSize),
		logger: logger.With(slog.String("component", "netio.linkmon")),
	}
}

// NewInterfaceMonitor returns the rtnetlink link monitor.
func NewInterfaceMonitor(logger *slog.Logger) InterfaceMonitor {
	return NewLinkMonitor(logger)
}

// Run subscribes to link updates and forwards them until ctx is cancelled.
func (m *LinkMonitor) Run(ctx context.Context) error {
	defer close(m.events)

	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return fmt.Errorf("subscribe to link updates: %w", err)
	}
	defer func() {
		close(done)
		// Unblock the subscription goroutine until it closes updates.
		go func() {
			for range updates {
			}
		}()
	}()

	m.logger.Info("link monitor started")
	defer m.logger.Info("link monitor stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return ErrSubscriptionClosed
			}
			m.forward(linkEvent(u))
		}
	}
}

func (m *LinkMonitor) forward(ev InterfaceEvent) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("link event channel full, dropping event",
			slog.String("interface", ev.IfName),
			slog.Bool("up", ev.Up),
		)
	}
}

// Events returns the channel of link changes.
func (m *LinkMonitor) Events() <-chan InterfaceEvent {
	return m.events
}

// Close is a no-op; the subscription ends with Run.
func (m *LinkMonitor) Close() error {
	return nil
}

// linkEvent converts a netlink update to an InterfaceEvent.
func linkEvent(u netlink.LinkUpdate) InterfaceEvent {
	ev := InterfaceEvent{
		IfIndex: int(u.Index),
		Up:      u.Flags&unix.IFF_RUNNING != 0,
		Removed: u.Header.Type == unix.RTM_DELLINK,
	}
	if u.Link != nil {
		attrs := u.Link.Attrs()
		ev.IfName = attrs.Name
		ev.IfIndex = attrs.Index
	}
	if ev.Removed {
		ev.Up = false
	}
	return ev
}
