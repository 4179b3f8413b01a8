package projection

import (
	"time"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/session"
	"github.com/louisbranch/sessionhub/internal/services/session/storage"
)

// StateFromRecord converts a stored projection row to fold state. found
// reports whether the row was present in the store.
func StateFromRecord(record storage.SessionRecord, found bool) session.State {
	if !found {
		return session.State{}
	}
	state := session.State{
		Exists:   true,
		UserID:   record.UserID,
		Language: record.Language,
		Timezone: record.Timezone,
	}
	if len(record.Roles) > 0 {
		state.Roles = append([]string(nil), record.Roles...)
	}
	if record.Expire != nil {
		expire := *record.Expire
		state.Expire = &expire
	}
	return state
}

// RecordFromState converts fold state to a projection row for one session.
func RecordFromState(sessionID string, state session.State, createdAt, updatedAt time.Time) storage.SessionRecord {
	record := storage.SessionRecord{
		ID:        sessionID,
		UserID:    state.UserID,
		Language:  state.Language,
		Timezone:  state.Timezone,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if len(state.Roles) > 0 {
		record.Roles = append([]string(nil), state.Roles...)
	} else {
		record.Roles = []string{}
	}
	if state.Expire != nil {
		expire := *state.Expire
		record.Expire = &expire
	}
	return record
}

// DefaultRecord synthesizes the row an absent session reads as: logged out,
// no roles, configured default locale.
func DefaultRecord(sessionID string, defaults session.Defaults) storage.SessionRecord {
	return storage.SessionRecord{
		ID:       sessionID,
		Roles:    []string{},
		Language: defaults.Language,
		Timezone: defaults.Timezone,
	}
}

// EventFromRecord converts a stored journal entry to a domain event.
func EventFromRecord(record storage.EventRecord) event.Event {
	return event.Event{
		SessionID:   record.SessionID,
		Seq:         record.Seq,
		Timestamp:   record.Timestamp,
		Type:        event.Type(record.Type),
		RequestID:   record.RequestID,
		PayloadJSON: []byte(record.PayloadJSON),
	}
}

// RecordFromEvent converts a domain event to a journal entry for append.
func RecordFromEvent(evt event.Event) storage.EventRecord {
	return storage.EventRecord{
		SessionID:   evt.SessionID,
		Seq:         evt.Seq,
		Type:        string(evt.Type),
		RequestID:   evt.RequestID,
		Timestamp:   evt.Timestamp,
		PayloadJSON: string(evt.PayloadJSON),
	}
}
