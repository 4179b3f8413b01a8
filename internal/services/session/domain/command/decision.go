package command

import (
	"errors"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
)

// Outcome names the non-error result of an accepted command.
type Outcome string

const (
	// OutcomeCreated reports a new session row will materialize.
	OutcomeCreated Outcome = "created"
	// OutcomeExists reports the session already existed; no event was emitted.
	OutcomeExists Outcome = "exists"
	// OutcomeUpdated reports an update event was emitted.
	OutcomeUpdated Outcome = "updated"
	// OutcomeLoggedOut reports a logout event was emitted.
	OutcomeLoggedOut Outcome = "logged_out"
)

// Decision represents the pure outcome of handling a command.
//
// An accepted decision carries an outcome, zero or more events, and zero or
// more triggers. A rejected decision carries rejections only — rejected
// attempts never reach the journal.
type Decision struct {
	Outcome    Outcome
	Events     []event.Event
	Triggers   []Trigger
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Accept returns a decision with the given outcome that emits the provided events.
func Accept(outcome Outcome, events ...event.Event) Decision {
	return Decision{Outcome: outcome, Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// WithTrigger attaches an outbound trigger to an accepted decision.
func (d Decision) WithTrigger(trigger Trigger) Decision {
	d.Triggers = append(d.Triggers, trigger)
	return d
}

// Rejected reports whether the decision declined the command.
func (d Decision) Rejected() bool {
	return len(d.Rejections) > 0
}

// Validate checks the decision carries either an outcome or rejections.
func (d Decision) Validate() error {
	if len(d.Rejections) > 0 {
		if d.Outcome != "" || len(d.Events) > 0 {
			return errors.New("rejected decision must not carry outcome or events")
		}
		return nil
	}
	if d.Outcome == "" {
		return errors.New("accepted decision requires an outcome")
	}
	return nil
}
