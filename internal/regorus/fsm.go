package regorus

// This file holds the card state machine as a pure function over a
// transition table. Handlers apply the returned actions.
//
//	              PROBE RX, ACK RX
//	+-----------+ ---------------> +----------+
//	| Detecting |                  | Detected |<--+ PROBE RX, ACK RX
//	+-----------+                  +----------+---+
//
// Detected is terminal. Entering any state stops the retry timer.

// Event is an input to the card state machine.
type Event uint8

const (
	// EventProbeReceived is a Ping from a peer on the card's interface.
	EventProbeReceived Event = iota + 1

	// EventAckReceived is a Pong from a peer on the card's interface.
	EventAckReceived
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventProbeReceived:
		return "ProbeReceived"
	case EventAckReceived:
		return "AckReceived"
	default:
		return "Unknown"
	}
}

// Action is a side effect the caller executes after a transition.
type Action uint8

const (
	// ActionStopTimer disarms the card's retry timer.
	ActionStopTimer Action = iota + 1

	// ActionNotify publishes a CardChange to watchers and metrics.
	ActionNotify
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionStopTimer:
		return "StopTimer"
	case ActionNotify:
		return "Notify"
	default:
		return "Unknown"
	}
}

type statusEvent struct {
	status Status
	event  Event
}

type transition struct {
	newStatus Status
	actions   []Action
}

// FSMResult holds the outcome of applying an event.
type FSMResult struct {
	OldStatus Status
	NewStatus Status

	// Actions lists the side effects to execute, in order.
	Actions []Action

	// Changed is true when NewStatus differs from OldStatus.
	Changed bool
}

//nolint:gochecknoglobals // transition table is intentionally package-level.
var fsmTable = map[statusEvent]transition{
	{StatusDetecting, EventProbeReceived}: {
		newStatus: StatusDetected,
		actions:   []Action{ActionStopTimer, ActionNotify},
	},
	{StatusDetecting, EventAckReceived}: {
		newStatus: StatusDetected,
		actions:   []Action{ActionStopTimer, ActionNotify},
	},

	// Self-loops re-enter Detected, which still stops a timer that a late
	// retry may have left behind.
	{StatusDetected, EventProbeReceived}: {
		newStatus: StatusDetected,
		actions:   []Action{ActionStopTimer},
	},
	{StatusDetected, EventAckReceived}: {
		newStatus: StatusDetected,
		actions:   []Action{ActionStopTimer},
	},
}

// ApplyEvent computes the transition for event e in status s. Unlisted
// pairs leave the status unchanged with no actions.
func ApplyEvent(s Status, e Event) FSMResult {
	tr, ok := fsmTable[statusEvent{status: s, event: e}]
	if !ok {
		return FSMResult{OldStatus: s, NewStatus: s}
	}

	return FSMResult{
		OldStatus: s,
		NewStatus: tr.newStatus,
		Actions:   tr.actions,
		Changed:   tr.newStatus != s,
	}
}
