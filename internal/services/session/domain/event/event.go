package event

import (
	"strings"
	"time"
)

// Type identifies the type of a session event.
type Type string

// Event represents an immutable entry in the session event journal.
type Event struct {
	// SessionID is the session this event belongs to.
	SessionID string
	// Seq is the event sequence number within the session (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// RequestID correlates the command or notification that produced the event.
	RequestID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "session", "user").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
