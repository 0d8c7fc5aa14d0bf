package call

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of the local call session. Exactly one
// status holds at a time; a focus record is attached when not idle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusCalling   Status = "calling"   // outbound, awaiting answer
	StatusReceiving Status = "receiving" // an inbound call has focus
	StatusConnected Status = "connected"
	StatusEnding    Status = "ending" // transient, auto-clears to idle
)

// CallRecord is one call attempt as seen by the session. The signal
// payload is exchanged verbatim; the session never inspects it.
type CallRecord struct {
	CallID           string          `json:"callId"`
	PeerID           string          `json:"peerId"`
	DisplayName      string          `json:"displayName"`
	IsPeerPrivileged bool            `json:"isPeerPrivileged"`
	SignalPayload    json.RawMessage `json:"-"`
	ReceivedAt       time.Time       `json:"receivedAt"`
}

// LogEntry is handed to the Recorder when a call reaches a terminal
// state, for the console's local call history.
type LogEntry struct {
	CallID       string
	PeerID       string
	PeerName     string
	Direction    string // "inbound" or "outbound"
	Outcome      string // completed, missed, rejected, declined, failed, timeout, cancelled
	StartedAt    time.Time
	DurationSecs int
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	OutcomeCompleted = "completed" // connected, then hung up
	OutcomeMissed    = "missed"    // inbound, never answered
	OutcomeRejected  = "rejected"  // outbound, remote declined
	OutcomeDeclined  = "declined"  // inbound, locally rejected
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled" // outbound, hung up before answer
)

// Recorder persists terminal call outcomes. Saves run asynchronously;
// a failing store never affects call state.
type Recorder interface {
	SaveCallLog(entry LogEntry) error
}
