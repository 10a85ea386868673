// Package regorusmetrics exports regorus engine counters to Prometheus.
package regorusmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "regorus"
	subsystem = "engine"
)

// Label names for regorus metrics.
const (
	labelInterface = "interface"
	labelStatus    = "status"
	labelOp        = "op"
	labelReason    = "reason"
	labelFrom      = "from_status"
	labelTo        = "to_status"
	labelKind      = "kind"
	labelState     = "state"
)

// Initial card status label, matching regorus.StatusDetecting.String().
const statusDetecting = "Detecting"

// -------------------------------------------------------------------------
// Collector — Prometheus regorus Metrics
// -------------------------------------------------------------------------

// Collector holds all regorus Prometheus metrics. It implements
// regorus.MetricsReporter.
type Collector struct {
	// Cards tracks the number of cards per status.
	Cards *prometheus.GaugeVec

	// FramesSent counts transmitted frames per interface and opcode.
	FramesSent *prometheus.CounterVec

	// FramesReceived counts decoded frames per interface and opcode.
	FramesReceived *prometheus.CounterVec

	// FramesDropped counts frames dropped on either path, by reason.
	FramesDropped *prometheus.CounterVec

	// Transitions counts card status transitions.
	Transitions *prometheus.CounterVec

	// WorkProcessed counts work items handled by the dispatcher, by kind.
	WorkProcessed *prometheus.CounterVec

	// DispatchPasses counts dispatcher drain passes.
	DispatchPasses prometheus.Counter

	// RetriesExhausted counts cards whose Pings went unanswered.
	RetriesExhausted *prometheus.CounterVec

	// LinkEvents counts link state changes reported by the link monitor.
	LinkEvents *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
//
// All metrics carry the "regorus_engine_" prefix.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Cards,
		c.FramesSent,
		c.FramesReceived,
		c.FramesDropped,
		c.Transitions,
		c.WorkProcessed,
		c.DispatchPasses,
		c.RetriesExhausted,
		c.LinkEvents,
	)

	return c
}

// newMetrics creates all metric vectors without registering them.
func newMetrics() *Collector {
	frameLabels := []string{labelInterface, labelOp}

	return &Collector{
		Cards: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cards",
			Help:      "Number of cards by discovery status.",
		}, []string{labelStatus}),

		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total regorus frames transmitted.",
		}, frameLabels),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total regorus frames received and decoded.",
		}, frameLabels),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total regorus frames dropped on receive or transmit.",
		}, []string{labelInterface, labelReason}),

		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "card_transitions_total",
			Help:      "Total card status transitions.",
		}, []string{labelInterface, labelFrom, labelTo}),

		WorkProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "work_processed_total",
			Help:      "Total work items handled by the dispatcher.",
		}, []string{labelKind}),

		DispatchPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_passes_total",
			Help:      "Total dispatcher drain passes.",
		}),

		RetriesExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retries_exhausted_total",
			Help:      "Total cards that spent their retry budget without an answer.",
		}, []string{labelInterface}),

		LinkEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "link_events_total",
			Help:      "Total link state changes seen by the link monitor.",
		}, []string{labelInterface, labelState}),
	}
}

// -------------------------------------------------------------------------
// Cards
// -------------------------------------------------------------------------

// RegisterCard counts a new card in Detecting status.
func (c *Collector) RegisterCard(_ string) {
	c.Cards.WithLabelValues(statusDetecting).Inc()
}

// RecordTransition moves a card between status gauges and counts the
// transition.
func (c *Collector) RecordTransition(name, from, to string) {
	c.Cards.WithLabelValues(from).Dec()
	c.Cards.WithLabelValues(to).Inc()
	c.Transitions.WithLabelValues(name, from, to).Inc()
}

// IncRetriesExhausted counts a card whose retry chain ended unanswered.
func (c *Collector) IncRetriesExhausted(name string) {
	c.RetriesExhausted.WithLabelValues(name).Inc()
}

// -------------------------------------------------------------------------
// Frame Counters
// -------------------------------------------------------------------------

// IncFramesSent counts a transmitted frame.
func (c *Collector) IncFramesSent(iface, op string) {
	c.FramesSent.WithLabelValues(iface, op).Inc()
}

// IncFramesReceived counts a decoded frame.
func (c *Collector) IncFramesReceived(iface, op string) {
	c.FramesReceived.WithLabelValues(iface, op).Inc()
}

// IncFramesDropped counts a dropped frame.
func (c *Collector) IncFramesDropped(iface, reason string) {
	c.FramesDropped.WithLabelValues(iface, reason).Inc()
}

// -------------------------------------------------------------------------
// Dispatcher
// -------------------------------------------------------------------------

// IncWorkProcessed counts a handled work item.
func (c *Collector) IncWorkProcessed(kind string) {
	c.WorkProcessed.WithLabelValues(kind).Inc()
}

// IncDispatchPasses counts a drain pass.
func (c *Collector) IncDispatchPasses() {
	c.DispatchPasses.Inc()
}

// -------------------------------------------------------------------------
// Link Events
// -------------------------------------------------------------------------

// IncLinkEvents counts a link state change. state is "up", "down" or
// "removed".
func (c *Collector) IncLinkEvents(iface, state string) {
	c.LinkEvents.WithLabelValues(iface, state).Inc()
}
