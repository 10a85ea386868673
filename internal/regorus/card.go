package regorus

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRetryBudget is the number of probes a new card may send before it
// stops retrying.
const DefaultRetryBudget = 3

// DefaultRetryInterval is the delay between two probes of the same card.
const DefaultRetryInterval = time.Second

// -------------------------------------------------------------------------
// Card Status
// -------------------------------------------------------------------------

// Status is the discovery state of a card. Values match the status codes
// reported by the probe request.
type Status uint8

const (
	// StatusDetecting is the initial state: probes are being sent and no
	// peer has answered yet.
	StatusDetecting Status = 0

	// StatusDetected is terminal: a peer acknowledged a probe or probed us.
	StatusDetected Status = 1
)

// statusNames maps status values to human-readable strings.
var statusNames = [2]string{
	"Detecting",
	"Detected",
}

// String returns the human-readable name for the status.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf(unknownFmt, s)
}

// -------------------------------------------------------------------------
// Interface — the network device a card probes
// -------------------------------------------------------------------------

// Interface is the engine's view of a network device: its name, link
// address, running flag and a way to put a frame on the wire.
type Interface interface {
	// Name returns the interface name (e.g. "eth0").
	Name() string

	// HardwareAddr returns the link-layer address used as the frame source.
	HardwareAddr() net.HardwareAddr

	// Running reports whether the device can transmit.
	Running() bool

	// Transmit sends a complete link-layer frame. The frame is not
	// retained after Transmit returns.
	Transmit(frame []byte) error
}

// -------------------------------------------------------------------------
// Card
// -------------------------------------------------------------------------

// Card is the discovery record of one interface.
//
// The name, interface and hardware address are fixed at creation. Status
// and retry counters are written only by the dispatcher and read
// atomically by snapshots. The retry timer is guarded by mu.
//
// refs counts live references: one for the registry slot, one per
// in-flight Work item and one while the retry timer is armed. Cards are
// never freed individually, so refs is bookkeeping only.
type Card struct {
	name      string
	iface     Interface
	mac       net.HardwareAddr
	budget    int32
	createdAt time.Time

	status    atomic.Uint32
	retries   atomic.Int32
	refs      atomic.Int32
	exhausted atomic.Bool
	linkUp    atomic.Bool

	probesSent    atomic.Uint64
	confirmations atomic.Uint64
	lastProbe     atomic.Int64
	detectedAt    atomic.Int64

	mu    sync.Mutex
	timer *time.Timer
	armed bool
}

// newCard creates a card in Detecting state with a full retry budget. The
// returned card holds one reference on behalf of the registry slot.
func newCard(name string, iface Interface, budget int) *Card {
	c := &Card{
		name:      name,
		iface:     iface,
		mac:       cloneHardwareAddr(iface.HardwareAddr()),
		budget:    int32(budget), //nolint:gosec // budget is validated by config, far below MaxInt32.
		createdAt: time.Now(),
	}
	c.status.Store(uint32(StatusDetecting))
	c.retries.Store(c.budget)
	c.refs.Store(1)
	c.linkUp.Store(iface.Running())
	return c
}

// Name returns the interface name the card was created for.
func (c *Card) Name() string { return c.name }

// Interface returns the interface handle owned by the card.
func (c *Card) Interface() Interface { return c.iface }

// Status returns the current discovery status.
func (c *Card) Status() Status { return Status(c.status.Load()) }

// Retries returns the remaining retry budget.
func (c *Card) Retries() int { return int(c.retries.Load()) }

// Refs returns the current reference count.
func (c *Card) Refs() int32 { return c.refs.Load() }

// TimerArmed reports whether the retry timer is pending.
func (c *Card) TimerArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

func (c *Card) acquire() { c.refs.Add(1) }

func (c *Card) release() { c.refs.Add(-1) }

// setStatus stores a new status and stamps the detection time on entry to
// Detected.
func (c *Card) setStatus(s Status) {
	c.status.Store(uint32(s))
	if s == StatusDetected {
		c.detectedAt.CompareAndSwap(0, time.Now().UnixNano())
	}
}

// consumeRetry decrements the retry budget and returns the attempt number
// (1 for the first probe). ok is false when the budget is already zero.
func (c *Card) consumeRetry() (attempt uint32, ok bool) {
	left := c.retries.Load()
	if left <= 0 {
		return 0, false
	}
	c.retries.Store(left - 1)
	return uint32(c.budget - left + 1), true //nolint:gosec // left <= budget, difference is non-negative.
}

// armTimer schedules fire after d unless a timer is already armed. The
// armed timer holds a card reference; when the timer expires the reference
// passes to fire, which must hand it to a Work item or release it.
func (c *Card) armTimer(d time.Duration, fire func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.armed {
		return false
	}

	c.acquire()
	c.armed = true
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		armed := c.armed
		c.armed = false
		c.mu.Unlock()

		// Disarmed while this callback was waiting for the lock. The
		// reference was already dropped by disarmTimer.
		if !armed {
			return
		}
		fire()
	})

	return true
}

// disarmTimer stops the retry timer and drops its reference. It is best
// effort: a callback that already passed its armed check still delivers a
// ProbeWork, which handlers ignore for Detected cards.
func (c *Card) disarmTimer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.armed {
		return false
	}

	c.armed = false
	c.timer.Stop()
	c.release()
	return true
}

// -------------------------------------------------------------------------
// Card Snapshot — read-only view for external consumers
// -------------------------------------------------------------------------

// CardSnapshot is a point-in-time copy of a card's state. It holds no
// reference to the card.
type CardSnapshot struct {
	// Name is the interface name.
	Name string

	// HardwareAddr is the interface link address recorded at creation.
	HardwareAddr net.HardwareAddr

	// Status is the discovery status.
	Status Status

	// RetriesLeft is the remaining probe budget.
	RetriesLeft int

	// RetriesExhausted is true once a retry fired with no budget left.
	RetriesExhausted bool

	// TimerArmed is true while a retry is pending.
	TimerArmed bool

	// LinkUp is the last known running state of the interface.
	LinkUp bool

	// Refs is the live reference count.
	Refs int32

	// ProbesSent counts Ping frames sent for this card.
	ProbesSent uint64

	// Confirmations counts Ping and Pong frames that confirmed the card.
	Confirmations uint64

	// CreatedAt is when the card was registered.
	CreatedAt time.Time

	// LastProbeAt is when the last Ping was sent. Zero if none was sent.
	LastProbeAt time.Time

	// DetectedAt is when the card entered Detected. Zero while Detecting.
	DetectedAt time.Time
}

// Snapshot returns a copy of the card's current state.
func (c *Card) Snapshot() CardSnapshot {
	return CardSnapshot{
		Name:             c.name,
		HardwareAddr:     cloneHardwareAddr(c.mac),
		Status:           c.Status(),
		RetriesLeft:      c.Retries(),
		RetriesExhausted: c.exhausted.Load(),
		TimerArmed:       c.TimerArmed(),
		LinkUp:           c.linkUp.Load(),
		Refs:             c.Refs(),
		ProbesSent:       c.probesSent.Load(),
		Confirmations:    c.confirmations.Load(),
		CreatedAt:        c.createdAt,
		LastProbeAt:      unixNanoTime(c.lastProbe.Load()),
		DetectedAt:       unixNanoTime(c.detectedAt.Load()),
	}
}

func unixNanoTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func cloneHardwareAddr(a net.HardwareAddr) net.HardwareAddr {
	if a == nil {
		return nil
	}
	out := make(net.HardwareAddr, len(a))
	copy(out, a)
	return out
}
