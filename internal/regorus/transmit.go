package regorus

import (
	"log/slog"
)

// Transmitter builds and sends Ping and Pong frames. It is stateless apart
// from its configuration and never takes the registry lock, so handlers
// may call it without holding any engine lock.
//
// Sends are fire-and-forget: a device that is not running is skipped and
// transmit failures are logged and counted, never returned.
type Transmitter struct {
	etherType uint16
	metrics   MetricsReporter
	logger    *slog.Logger
}

// NewTransmitter creates a Transmitter that stamps frames with etherType.
// A nil metrics reporter disables counting.
func NewTransmitter(etherType uint16, metrics MetricsReporter, logger *slog.Logger) *Transmitter {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Transmitter{
		etherType: etherType,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "regorus.transmit")),
	}
}

// SendProbe broadcasts a Ping on iface. info carries the attempt number.
func (t *Transmitter) SendProbe(iface Interface, info uint32) {
	t.send(iface, OpPing, info)
}

// SendAck broadcasts a Pong on iface, echoing the info of the Ping it
// answers.
func (t *Transmitter) SendAck(iface Interface, info uint32) {
	t.send(iface, OpPong, info)
}

func (t *Transmitter) send(iface Interface, op Op, info uint32) {
	name := iface.Name()

	if !iface.Running() {
		t.logger.Debug("interface not running, frame not sent",
			slog.String("interface", name),
			slog.String("op", op.String()),
		)
		t.metrics.IncFramesDropped(name, dropNotRunning)
		return
	}

	frame, err := EncodeFrame(iface.HardwareAddr(), t.etherType, Header{Op: op, Info: info})
	if err != nil {
		t.logger.Warn("failed to encode frame",
			slog.String("interface", name),
			slog.String("op", op.String()),
			slog.String("error", err.Error()),
		)
		t.metrics.IncFramesDropped(name, dropEncodeErr)
		return
	}

	if err := iface.Transmit(frame); err != nil {
		t.logger.Debug("transmit failed",
			slog.String("interface", name),
			slog.String("op", op.String()),
			slog.String("error", err.Error()),
		)
		t.metrics.IncFramesDropped(name, dropTransmitErr)
		return
	}

	t.metrics.IncFramesSent(name, op.String())
}
