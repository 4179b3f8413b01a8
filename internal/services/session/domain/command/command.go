package command

import (
	"strings"
	"time"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
)

// Type identifies the type of a session command.
type Type string

// Command is the envelope for a caller intent against one session.
type Command struct {
	// SessionID is the caller-bound session identity derived from the
	// caller's connection context, never from the request payload.
	SessionID string
	// Type identifies the command.
	Type Type
	// RequestID correlates the command with the events it produces.
	RequestID string
	// PayloadJSON holds command-specific inputs as JSON.
	PayloadJSON []byte
}

// Trigger is an outbound side-channel notification raised by an accepted
// command for external consumers. Triggers are not journal events.
type Trigger struct {
	Type      string
	UserID    string
	SessionID string
}

// Normalize trims envelope fields.
func (c Command) Normalize() Command {
	c.SessionID = strings.TrimSpace(c.SessionID)
	c.Type = Type(strings.TrimSpace(string(c.Type)))
	c.RequestID = strings.TrimSpace(c.RequestID)
	return c
}

// NewEvent builds an event.Event by copying the shared envelope fields from a
// command. Callers supply the event type, payload, and timestamp.
func NewEvent(cmd Command, eventType event.Type, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		SessionID:   cmd.SessionID,
		Type:        eventType,
		Timestamp:   now,
		RequestID:   cmd.RequestID,
		PayloadJSON: payloadJSON,
	}
}
