package regorus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// -------------------------------------------------------------------------
// Engine Errors
// -------------------------------------------------------------------------

// Sentinel errors for Engine operations.
var (
	// ErrUnknownInterface indicates the host has no interface with the
	// requested name. No card is created.
	ErrUnknownInterface = errors.New("unknown interface")

	// ErrInvalidInterfaceName indicates an empty or over-long interface name.
	ErrInvalidInterfaceName = errors.New("invalid interface name")
)

// maxInterfaceName is IFNAMSIZ minus the terminating NUL.
const maxInterfaceName = 15

// watcherChSize is the buffer of each Subscribe channel. A watcher that
// falls further behind loses changes.
const watcherChSize = 64

// -------------------------------------------------------------------------
// Collaborators
// -------------------------------------------------------------------------

// InterfaceResolver maps an interface name to a host device. Resolve
// returns an error wrapping ErrUnknownInterface when no such device exists.
type InterfaceResolver interface {
	Resolve(name string) (Interface, error)
}

// CardChange describes a card status transition.
type CardChange struct {
	Name      string
	OldStatus Status
	NewStatus Status
	Event     Event
	Timestamp time.Time
}

// ProbeResult is the answer to a probe request.
type ProbeResult struct {
	// Found is true when a card already existed for the interface.
	Found bool

	// Status is the card's status. A freshly created card reports
	// StatusDetecting.
	Status Status
}

// -------------------------------------------------------------------------
// Engine
// -------------------------------------------------------------------------

// Engine ties the registry, work queue, dispatcher and transmitter together.
//
// Producers (receive loops, timer callbacks, API handlers) only take the
// registry lock briefly or enqueue Work. All status transitions happen on
// the goroutine running Run.
type Engine struct {
	registry   *Registry
	queue      *WorkQueue
	tx         *Transmitter
	dispatcher *Dispatcher
	resolver   InterfaceResolver

	etherType     uint16
	retryBudget   int
	retryInterval time.Duration
	queueCapacity int

	metrics MetricsReporter
	logger  *slog.Logger

	closed atomic.Bool

	watchMu  sync.Mutex
	watchers map[int]chan CardChange
	nextID   int
}

// EngineOption configures optional Engine parameters.
type EngineOption func(*Engine)

// WithMetrics sets the MetricsReporter. If mr is nil, a no-op reporter is
// used.
func WithMetrics(mr MetricsReporter) EngineOption {
	return func(e *Engine) {
		if mr != nil {
			e.metrics = mr
		}
	}
}

// WithRetryBudget sets the number of probes a new card may send.
func WithRetryBudget(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.retryBudget = n
		}
	}
}

// WithRetryInterval sets the delay between probes of one card.
func WithRetryInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.retryInterval = d
		}
	}
}

// WithEtherType overrides the EtherType stamped on and accepted from the
// wire.
func WithEtherType(t uint16) EngineOption {
	return func(e *Engine) {
		if ValidateEtherType(t) == nil {
			e.etherType = t
		}
	}
}

// WithQueueCapacity bounds the number of pending work items.
func WithQueueCapacity(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.queueCapacity = n
		}
	}
}

// NewEngine creates an engine that resolves interfaces through resolver.
// Run must be started for any work to be processed.
func NewEngine(resolver InterfaceResolver, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		resolver:      resolver,
		etherType:     EtherType,
		retryBudget:   DefaultRetryBudget,
		retryInterval: DefaultRetryInterval,
		queueCapacity: DefaultQueueCapacity,
		metrics:       noopMetrics{},
		logger:        logger.With(slog.String("component", "regorus.engine")),
		watchers:      make(map[int]chan CardChange),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.registry = NewRegistry(e.retryBudget)
	e.queue = NewWorkQueue(e.queueCapacity)
	e.tx = NewTransmitter(e.etherType, e.metrics, logger)

	h := &handlers{
		registry: e.registry,
		queue:    e.queue,
		tx:       e.tx,
		interval: e.retryInterval,
		metrics:  e.metrics,
		logger:   logger.With(slog.String("component", "regorus.handlers")),
		notify:   e.publish,
	}
	e.dispatcher = newDispatcher(e.queue, h, e.metrics, logger)

	return e
}

// Run drives the dispatcher until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return e.dispatcher.Run(ctx)
}

// EtherType returns the EtherType the engine sends and accepts.
func (e *Engine) EtherType() uint16 { return e.etherType }

// Dispatcher returns the engine's dispatcher.
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatcher }

// -------------------------------------------------------------------------
// Probe — control request
// -------------------------------------------------------------------------

// Probe handles a probe request for the named interface. An existing card
// reports its status and nothing else happens. Otherwise the interface is
// resolved, a card is created in Detecting state and its first probe
// attempt is queued.
//
// Returns an error wrapping ErrUnknownInterface when the host has no such
// interface; no card is created in that case.
func (e *Engine) Probe(_ context.Context, name string) (ProbeResult, error) {
	if name == "" || len(name) > maxInterfaceName {
		return ProbeResult{}, fmt.Errorf("probe %q: %w", name, ErrInvalidInterfaceName)
	}
	if e.closed.Load() {
		return ProbeResult{}, fmt.Errorf("probe %s: %w", name, ErrEngineClosed)
	}

	if status, ok := e.registry.StatusOf(name); ok {
		return ProbeResult{Found: true, Status: status}, nil
	}

	iface, err := e.resolver.Resolve(name)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("probe %s: %w", name, err)
	}

	card, created := e.registry.FindOrCreate(name, iface)
	if !created {
		// Lost the race to a concurrent probe for the same name.
		return ProbeResult{Found: true, Status: card.Status()}, nil
	}

	e.metrics.RegisterCard(name)
	e.logger.Info("card created",
		slog.String("interface", name),
		slog.String("hw_addr", macString(card.mac)),
		slog.Int("retry_budget", e.retryBudget),
	)

	card.acquire()
	if qErr := e.queue.Enqueue(ProbeWork{Card: card}); qErr != nil {
		card.release()
		e.logger.Warn("initial probe dropped",
			slog.String("interface", name),
			slog.String("error", qErr.Error()),
		)
	}

	return ProbeResult{Found: false, Status: StatusDetecting}, nil
}

// ReconcileProbes ensures a card exists for every name in desired. Cards
// are never removed, so names absent from desired are left alone. Returns
// the number of cards created; per-name failures are joined.
func (e *Engine) ReconcileProbes(ctx context.Context, desired []string) (int, error) {
	var (
		created int
		errs    []error
	)
	for _, name := range desired {
		res, err := e.Probe(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", name, err))
			continue
		}
		if !res.Found {
			created++
		}
	}

	e.logger.Info("probe reconciliation complete",
		slog.Int("desired", len(desired)),
		slog.Int("created", created),
	)

	return created, errors.Join(errs...)
}

// -------------------------------------------------------------------------
// Receive — inbound frames
// -------------------------------------------------------------------------

// Receive classifies a frame received on iface and enqueues the matching
// work item. It runs on the receive goroutine of iface and does no protocol
// work itself. frame is not retained.
func (e *Engine) Receive(iface Interface, frame []byte) {
	name := iface.Name()

	f, err := DecodeFrame(frame, e.etherType)
	if err != nil {
		reason := dropShort
		if errors.Is(err, ErrForeignEtherType) {
			reason = dropForeign
		}
		e.logger.Debug("frame dropped",
			slog.String("interface", name),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		e.metrics.IncFramesDropped(name, reason)
		return
	}

	if own := iface.HardwareAddr(); len(own) > 0 && slices.Equal(f.Src, own) {
		e.metrics.IncFramesDropped(name, dropOwnFrame)
		return
	}

	e.logger.Debug("frame received",
		slog.String("interface", name),
		slog.String("op", f.Header.Op.String()),
		slog.String("src", f.Src.String()),
		slog.String("info", fmt.Sprintf("0x%08x", f.Header.Info)),
	)

	var w Work
	switch f.Header.Op {
	case OpPing:
		w = ProbeReceivedWork{Iface: iface, Header: f.Header}
	case OpPong:
		w = AckReceivedWork{Iface: iface, Header: f.Header}
	case OpReq, OpRep:
		e.metrics.IncFramesReceived(name, f.Header.Op.String())
		e.logger.Debug("configuration opcode ignored",
			slog.String("interface", name),
			slog.String("op", f.Header.Op.String()),
		)
		return
	default:
		e.metrics.IncFramesDropped(name, dropUnknownOp)
		return
	}

	e.metrics.IncFramesReceived(name, f.Header.Op.String())

	if qErr := e.queue.Enqueue(w); qErr != nil {
		w.release()
		e.logger.Warn("received frame dropped",
			slog.String("interface", name),
			slog.String("op", f.Header.Op.String()),
			slog.String("error", qErr.Error()),
		)
		e.metrics.IncFramesDropped(name, dropQueueFull)
	}
}

// LinkChanged records the running state of an interface on its card, if
// one exists.
func (e *Engine) LinkChanged(name string, up bool) {
	c, ok := e.registry.Lookup(name)
	if !ok {
		return
	}
	defer c.release()

	if c.linkUp.Swap(up) != up {
		e.logger.Info("card link state changed",
			slog.String("interface", name),
			slog.Bool("up", up),
		)
	}
}

// -------------------------------------------------------------------------
// Queries
// -------------------------------------------------------------------------

// StatusOf returns the status of the card for name.
func (e *Engine) StatusOf(name string) (Status, bool) {
	return e.registry.StatusOf(name)
}

// Card returns a snapshot of the card for name.
func (e *Engine) Card(name string) (CardSnapshot, bool) {
	c, ok := e.registry.Lookup(name)
	if !ok {
		return CardSnapshot{}, false
	}
	defer c.release()

	// The lookup reference is not part of the card's steady state.
	snap := c.Snapshot()
	snap.Refs--
	return snap, true
}

// Cards returns snapshots of all cards sorted by name.
func (e *Engine) Cards() []CardSnapshot {
	cards := e.registry.Cards()
	out := make([]CardSnapshot, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.Snapshot())
	}
	return out
}

// -------------------------------------------------------------------------
// Change notifications
// -------------------------------------------------------------------------

// Subscribe returns a channel of card status changes and a function that
// cancels the subscription. Changes are delivered without blocking the
// dispatcher; a full channel drops them. The channel is closed by cancel
// or by Close.
func (e *Engine) Subscribe() (<-chan CardChange, func()) {
	ch := make(chan CardChange, watcherChSize)

	e.watchMu.Lock()
	if e.closed.Load() {
		e.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.nextID
	e.nextID++
	e.watchers[id] = ch
	e.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.watchMu.Lock()
			defer e.watchMu.Unlock()
			if c, ok := e.watchers[id]; ok {
				delete(e.watchers, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (e *Engine) publish(cc CardChange) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()

	for _, ch := range e.watchers {
		select {
		case ch <- cc:
		default:
			e.logger.Warn("watcher channel full, dropping card change",
				slog.String("interface", cc.Name),
				slog.String("new_status", cc.NewStatus.String()),
			)
		}
	}
}

// -------------------------------------------------------------------------
// Lifecycle
// -------------------------------------------------------------------------

// Close stops accepting work, releases pending items, disarms every retry
// timer and closes all watcher channels. Cards remain queryable.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}

	for _, w := range e.queue.close() {
		w.release()
	}

	for _, c := range e.registry.Cards() {
		c.disarmTimer()
	}

	e.watchMu.Lock()
	for id, ch := range e.watchers {
		delete(e.watchers, id)
		close(ch)
	}
	e.watchMu.Unlock()

	e.logger.Info("engine closed", slog.Int("cards", e.registry.Len()))
}

func macString(a net.HardwareAddr) string {
	if len(a) == 0 {
		return ""
	}
	return a.String()
}
