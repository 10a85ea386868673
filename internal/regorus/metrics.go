package regorus

// MetricsReporter receives engine counters. The Prometheus collector in
// internal/metrics implements it; labels are plain strings so that package
// does not import this one.
type MetricsReporter interface {
	// RegisterCard records a newly created card in Detecting state.
	RegisterCard(name string)

	// RecordTransition records a card status change.
	RecordTransition(name, from, to string)

	// IncFramesSent counts a transmitted frame by interface and opcode.
	IncFramesSent(iface, op string)

	// IncFramesReceived counts a decoded frame by interface and opcode.
	IncFramesReceived(iface, op string)

	// IncFramesDropped counts a frame dropped before or during transmit
	// or receive processing, labeled with a short reason.
	IncFramesDropped(iface, reason string)

	// IncWorkProcessed counts a Work item handled by the dispatcher.
	IncWorkProcessed(kind string)

	// IncDispatchPasses counts dispatcher drain passes.
	IncDispatchPasses()

	// IncRetriesExhausted counts cards whose retry chain ended without a
	// peer answering.
	IncRetriesExhausted(name string)
}

// Drop reasons reported through IncFramesDropped.
const (
	dropShort       = "short"
	dropForeign     = "ethertype"
	dropOwnFrame    = "own_frame"
	dropUnknownOp   = "unknown_op"
	dropQueueFull   = "queue_full"
	dropNotRunning  = "not_running"
	dropTransmitErr = "transmit_error"
	dropEncodeErr   = "encode_error"
)

type noopMetrics struct{}

func (noopMetrics) RegisterCard(string) {}
func (noopMetrics) RecordTransition(string, string, string) {}
func (noopMetrics) IncFramesSent(string, string) {}
func (noopMetrics) IncFramesReceived(string, string) {}
func (noopMetrics) IncFramesDropped(string, string) {}
func (noopMetrics) IncWorkProcessed(string) {}
func (noopMetrics) IncDispatchPasses() {}
func (noopMetrics) IncRetriesExhausted(string) {}
