// Package regorusapi defines the regorus control API: request and response
// messages, the ConnectRPC handler and client, and the JSON codec they use
// on the wire.
package regorusapi

import "time"

// Card status names as reported by the API.
const (
	StatusDetecting = "Detecting"
	StatusDetected  = "Detected"
)

// Card event types streamed by WatchCards.
const (
	// EventTypeCurrent carries an existing card, sent before live changes
	// when WatchCardsRequest.IncludeCurrent is set.
	EventTypeCurrent = "current"

	// EventTypeStatusChange carries a card whose status just changed.
	EventTypeStatusChange = "status_change"
)

// Card is the API view of one discovery card.
type Card struct {
	Name             string    `json:"name"`
	HardwareAddr     string    `json:"hw_addr,omitempty"`
	Status           string    `json:"status"`
	RetriesLeft      int       `json:"retries_left"`
	RetriesExhausted bool      `json:"retries_exhausted"`
	TimerArmed       bool      `json:"timer_armed"`
	LinkUp           bool      `json:"link_up"`
	ProbesSent       uint64    `json:"probes_sent"`
	Confirmations    uint64    `json:"confirmations"`
	CreatedAt        time.Time `json:"created_at,omitzero"`
	LastProbeAt      time.Time `json:"last_probe_at,omitzero"`
	DetectedAt       time.Time `json:"detected_at,omitzero"`
}

// --- Probe ---

// ProbeRequest asks the daemon to discover a peer on an interface.
type ProbeRequest struct {
	InterfaceName string `json:"interface_name"`
}

// ProbeResponse reports whether a card already existed and its status.
// A new card is always reported as found=false, status=Detecting.
type ProbeResponse struct {
	Found  bool   `json:"found"`
	Status string `json:"status"`
}

// --- Configure ---

// ConfigureRequest is reserved for the configuration exchange (Req/Rep
// opcodes). The daemon answers it with CodeUnimplemented.
type ConfigureRequest struct {
	InterfaceName string `json:"interface_name"`
	Info          uint32 `json:"info"`
}

// ConfigureResponse is reserved.
type ConfigureResponse struct {
	Info uint32 `json:"info"`
}

// --- ListCards ---

// ListCardsRequest lists cards. An empty Status lists all of them.
type ListCardsRequest struct {
	Status string `json:"status,omitempty"`
}

// ListCardsResponse holds cards sorted by name.
type ListCardsResponse struct {
	Cards []*Card `json:"cards"`
}

// --- GetCard ---

// GetCardRequest selects one card by interface name.
type GetCardRequest struct {
	InterfaceName string `json:"interface_name"`
}

// GetCardResponse holds the selected card.
type GetCardResponse struct {
	Card *Card `json:"card"`
}

// --- WatchCards ---

// WatchCardsRequest opens a stream of card events.
type WatchCardsRequest struct {
	IncludeCurrent bool `json:"include_current"`
}

// WatchCardsResponse is one streamed card event.
type WatchCardsResponse struct {
	Type           string    `json:"type"`
	Card           *Card     `json:"card,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Event          string    `json:"event,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitzero"`
}
