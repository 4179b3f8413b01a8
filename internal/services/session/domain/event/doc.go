// Package event defines the canonical event envelope for the session journal.
//
// Events are immutable facts. Storage assigns each event a per-session
// sequence number on append, and projections derive current session state by
// folding events in sequence order. The registry keeps the set of appendable
// event types closed so that replay and live application observe the same
// payload contracts.
package event
