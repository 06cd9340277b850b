// Package events defines the relay's event types and the bus that carries
// them to the API stream, telemetry and the journal.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session lifecycle
	EventSessionOpened EventType = "session_opened"
	EventSessionClosed EventType = "session_closed"

	// Handshake observations
	EventClientSlotAssigned EventType = "client_slot_assigned"
	EventVersionMismatch    EventType = "version_mismatch"

	// Traffic
	EventDamageIntercepted EventType = "damage_intercepted"
	EventRelayError        EventType = "relay_error"

	// Background checks
	EventUpstreamHealth EventType = "upstream_health"
	EventJournalPruned  EventType = "journal_pruned"
)

// AllTypes lists every event type, for subscribers that want everything.
var AllTypes = []EventType{
	EventSessionOpened,
	EventSessionClosed,
	EventClientSlotAssigned,
	EventVersionMismatch,
	EventDamageIntercepted,
	EventRelayError,
	EventUpstreamHealth,
	EventJournalPruned,
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

// New stamps an event with the current time.
func New(t EventType, source string, payload interface{}) Event {
	return Event{Type: t, Source: source, Time: time.Now(), Payload: payload}
}

// SessionPayload describes a relay session opening or closing.
type SessionPayload struct {
	SessionID    string        `json:"session_id"`
	ClientAddr   string        `json:"client_addr"`
	UpstreamAddr string        `json:"upstream_addr"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// SlotPayload is emitted when the server assigns the client its player slot.
type SlotPayload struct {
	SessionID string `json:"session_id"`
	Slot      uint8  `json:"slot"`
}

// VersionPayload is emitted when a client announces an unsupported version.
type VersionPayload struct {
	SessionID string `json:"session_id"`
	Got       string `json:"got"`
	Want      string `json:"want"`
	Rejected  bool   `json:"rejected"`
}

// DamagePayload describes one rewritten damage packet.
type DamagePayload struct {
	SessionID      string `json:"session_id"`
	ClientSlot     uint8  `json:"client_slot"`
	Target         uint8  `json:"target"`
	OriginalDamage int16  `json:"original_damage"`
	NewDamage      int16  `json:"new_damage"`
	Reason         string `json:"reason"`
}

// ErrorPayload describes a fatal error on one side of a session.
type ErrorPayload struct {
	SessionID string `json:"session_id"`
	Side      string `json:"side"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// HealthPayload is emitted when the upstream server becomes reachable or
// unreachable.
type HealthPayload struct {
	Upstream  string        `json:"upstream"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// PrunePayload reports a journal retention run.
type PrunePayload struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}
