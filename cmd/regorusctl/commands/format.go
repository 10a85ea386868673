// Package commands implements the regorusctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dantte-lp/regorus/pkg/regorusapi"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	formatYAML  = "yaml"
	valueNA     = "N/A"
	valueNever  = "never"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// checkFormat rejects unknown --format values before any call is made.
func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatCards renders a card list in the requested format.
func formatCards(cards []*regorusapi.Card, format string) (string, error) {
	if format == formatTable {
		return formatCardsTable(cards)
	}
	return marshalStructured(cardsToView(cards), format)
}

// formatCard renders a single card in the requested format.
func formatCard(card *regorusapi.Card, format string) (string, error) {
	if format == formatTable {
		return formatCardDetail(card)
	}
	return marshalStructured(cardToView(card), format)
}

// formatProbe renders a probe answer in the requested format.
func formatProbe(iface string, resp *regorusapi.ProbeResponse, format string) (string, error) {
	if format == formatTable {
		if resp.Found {
			return fmt.Sprintf("Card %s exists: %s\n", iface, resp.Status), nil
		}
		return fmt.Sprintf("Card %s created: %s\n", iface, resp.Status), nil
	}
	return marshalStructured(probeView{Interface: iface, Found: resp.Found, Status: resp.Status}, format)
}

// formatEvent renders a card event in the requested format. Structured
// formats produce a single line so events can be piped.
func formatEvent(event *regorusapi.WatchCardsResponse, format string) (string, error) {
	switch format {
	case formatTable:
		return formatEventTable(event), nil
	case formatJSON:
		data, err := json.Marshal(eventToView(event))
		if err != nil {
			return "", fmt.Errorf("marshal event to JSON: %w", err)
		}
		return string(data), nil
	case formatYAML:
		out, err := marshalStructured(eventToView(event), formatYAML)
		if err != nil {
			return "", err
		}
		return "---\n" + strings.TrimRight(out, "\n"), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// marshalStructured renders v as indented JSON or YAML.
func marshalStructured(v any, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal to YAML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatCardsTable(cards []*regorusapi.Card) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTERFACE\tHW-ADDR\tSTATUS\tRETRIES\tPROBES\tLINK\tDETECTED")

	for _, c := range cards {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Name,
			orNA(c.HardwareAddr),
			c.Status,
			retriesCell(c),
			c.ProbesSent,
			linkState(c.LinkUp),
			timeOr(c.DetectedAt, "-"),
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatCardDetail(c *regorusapi.Card) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Interface:\t%s\n", c.Name)
	fmt.Fprintf(w, "Hardware Address:\t%s\n", orNA(c.HardwareAddr))
	fmt.Fprintf(w, "Status:\t%s\n", c.Status)
	fmt.Fprintf(w, "Retries Left:\t%d\n", c.RetriesLeft)
	fmt.Fprintf(w, "Retries Exhausted:\t%t\n", c.RetriesExhausted)
	fmt.Fprintf(w, "Retry Pending:\t%t\n", c.TimerArmed)
	fmt.Fprintf(w, "Link:\t%s\n", linkState(c.LinkUp))
	fmt.Fprintf(w, "Probes Sent:\t%d\n", c.ProbesSent)
	fmt.Fprintf(w, "Confirmations:\t%d\n", c.Confirmations)
	fmt.Fprintf(w, "Created:\t%s\n", timeOr(c.CreatedAt, valueNA))
	fmt.Fprintf(w, "Last Probe:\t%s\n", timeOr(c.LastProbeAt, valueNever))
	fmt.Fprintf(w, "Detected:\t%s\n", timeOr(c.DetectedAt, valueNever))

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatEventTable(event *regorusapi.WatchCardsResponse) string {
	ts := timeOr(event.Timestamp, valueNA)

	name, status := valueNA, valueNA
	if c := event.Card; c != nil {
		name = c.Name
		status = c.Status
	}

	line := fmt.Sprintf("[%s] %s  interface=%s  status=%s", ts, event.Type, name, status)
	if event.PreviousStatus != "" {
		line += "  prev=" + event.PreviousStatus
	}
	if event.Event != "" {
		line += "  event=" + event.Event
	}
	return line
}

func retriesCell(c *regorusapi.Card) string {
	if c.RetriesExhausted {
		return "exhausted"
	}
	return fmt.Sprintf("%d", c.RetriesLeft)
}

func linkState(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

func orNA(s string) string {
	if s == "" {
		return valueNA
	}
	return s
}

func timeOr(t time.Time, zero string) string {
	if t.IsZero() {
		return zero
	}
	return t.Format(time.RFC3339)
}

// --- View types for clean JSON/YAML output ---

type cardView struct {
	Interface        string `json:"interface" yaml:"interface"`
	HardwareAddr     string `json:"hw_addr,omitempty" yaml:"hw_addr,omitempty"`
	Status           string `json:"status" yaml:"status"`
	RetriesLeft      int    `json:"retries_left" yaml:"retries_left"`
	RetriesExhausted bool   `json:"retries_exhausted" yaml:"retries_exhausted"`
	RetryPending     bool   `json:"retry_pending" yaml:"retry_pending"`
	LinkUp           bool   `json:"link_up" yaml:"link_up"`
	ProbesSent       uint64 `json:"probes_sent" yaml:"probes_sent"`
	Confirmations    uint64 `json:"confirmations" yaml:"confirmations"`
	CreatedAt        string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	LastProbeAt      string `json:"last_probe_at,omitempty" yaml:"last_probe_at,omitempty"`
	DetectedAt       string `json:"detected_at,omitempty" yaml:"detected_at,omitempty"`
}

type eventView struct {
	Timestamp      string    `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Type           string    `json:"type" yaml:"type"`
	PreviousStatus string    `json:"previous_status,omitempty" yaml:"previous_status,omitempty"`
	Event          string    `json:"event,omitempty" yaml:"event,omitempty"`
	Card           *cardView `json:"card,omitempty" yaml:"card,omitempty"`
}

type probeView struct {
	Interface string `json:"interface" yaml:"interface"`
	Found     bool   `json:"found" yaml:"found"`
	Status    string `json:"status" yaml:"status"`
}

func cardToView(c *regorusapi.Card) *cardView {
	return &cardView{
		Interface:        c.Name,
		HardwareAddr:     c.HardwareAddr,
		Status:           c.Status,
		RetriesLeft:      c.RetriesLeft,
		RetriesExhausted: c.RetriesExhausted,
		RetryPending:     c.TimerArmed,
		LinkUp:           c.LinkUp,
		ProbesSent:       c.ProbesSent,
		Confirmations:    c.Confirmations,
		CreatedAt:        timeOr(c.CreatedAt, ""),
		LastProbeAt:      timeOr(c.LastProbeAt, ""),
		DetectedAt:       timeOr(c.DetectedAt, ""),
	}
}

func cardsToView(cards []*regorusapi.Card) []*cardView {
	views := make([]*cardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, cardToView(c))
	}

	return views
}

func eventToView(event *regorusapi.WatchCardsResponse) *eventView {
	v := &eventView{
		Timestamp:      timeOr(event.Timestamp, ""),
		Type:           event.Type,
		PreviousStatus: event.PreviousStatus,
		Event:          event.Event,
	}
	if event.Card != nil {
		v.Card = cardToView(event.Card)
	}

	return v
}
