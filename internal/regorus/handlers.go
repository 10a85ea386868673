package regorus

import (
	"fmt"
	"log/slog"
	"time"
)

// handlers executes Work items on the dispatcher goroutine. None of its
// methods hold the registry lock while transmitting.
type handlers struct {
	registry *Registry
	queue    *WorkQueue
	tx       *Transmitter
	interval time.Duration

	metrics MetricsReporter
	logger  *slog.Logger

	// notify publishes a status change to watchers. It must not block.
	notify func(CardChange)
}

// dispatch routes w to its handler.
func (h *handlers) dispatch(w Work) {
	switch w := w.(type) {
	case ProbeWork:
		h.attemptProbe(w.Card)
	case ProbeReceivedWork:
		h.probeReceived(w)
	case AckReceivedWork:
		h.ackReceived(w)
	default:
		h.logger.Error("unhandled work item", slog.String("kind", fmt.Sprintf("%T", w)))
	}
}

// attemptProbe sends one Ping for a Detecting card with budget left,
// decrements the budget and arms the retry timer. A Detected card is left
// alone. A card whose budget is spent stays Detecting and is flagged
// exhausted once.
func (h *handlers) attemptProbe(c *Card) {
	if c.Status() != StatusDetecting {
		h.logger.Debug("card already detected, probe skipped", slog.String("interface", c.name))
		return
	}

	attempt, ok := c.consumeRetry()
	if !ok {
		if c.exhausted.CompareAndSwap(false, true) {
			h.logger.Warn("retry budget exhausted, no peer answered",
				slog.String("interface", c.name),
				slog.Uint64("probes_sent", c.probesSent.Load()),
			)
			h.metrics.IncRetriesExhausted(c.name)
		}
		return
	}

	h.tx.SendProbe(c.iface, attempt)
	c.probesSent.Add(1)
	c.lastProbe.Store(time.Now().UnixNano())

	h.logger.Debug("probe sent",
		slog.String("interface", c.name),
		slog.Uint64("attempt", uint64(attempt)),
		slog.Int("retries_left", c.Retries()),
	)

	c.armTimer(h.interval, func() {
		// The timer's reference moves into the work item.
		if err := h.queue.Enqueue(ProbeWork{Card: c}); err != nil {
			c.release()
			h.logger.Warn("retry dropped",
				slog.String("interface", c.name),
				slog.String("error", err.Error()),
			)
		}
	})
}

// probeReceived answers a peer's Ping with a Pong on the same interface and
// confirms the local card, if one exists.
func (h *handlers) probeReceived(w ProbeReceivedWork) {
	h.tx.SendAck(w.Iface, w.Header.Info)
	h.confirm(w.Iface.Name(), EventProbeReceived)
}

// ackReceived confirms the local card on a peer's Pong.
func (h *handlers) ackReceived(w AckReceivedWork) {
	h.confirm(w.Iface.Name(), EventAckReceived)
}

// confirm applies e to the card registered for name. Frames on interfaces
// without a card are ignored.
func (h *handlers) confirm(name string, e Event) {
	c, ok := h.registry.Lookup(name)
	if !ok {
		h.logger.Debug("no card for interface, event ignored",
			slog.String("interface", name),
			slog.String("event", e.String()),
		)
		return
	}
	defer c.release()

	result := ApplyEvent(c.Status(), e)
	c.setStatus(result.NewStatus)
	c.confirmations.Add(1)

	for _, a := range result.Actions {
		switch a {
		case ActionStopTimer:
			c.disarmTimer()
		case ActionNotify:
			h.metrics.RecordTransition(name, result.OldStatus.String(), result.NewStatus.String())
			h.logger.Info("card detected",
				slog.String("interface", name),
				slog.String("event", e.String()),
				slog.String("old_status", result.OldStatus.String()),
				slog.String("new_status", result.NewStatus.String()),
			)
			if h.notify != nil {
				h.notify(CardChange{
					Name:      name,
					OldStatus: result.OldStatus,
					NewStatus: result.NewStatus,
					Event:     e,
					Timestamp: time.Now(),
				})
			}
		}
	}
}
