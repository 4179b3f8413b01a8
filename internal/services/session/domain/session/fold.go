package session

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
)

// FoldHandledTypes returns the event types handled by the session fold function.
func FoldHandledTypes() []event.Type {
	return []event.Type{
		EventTypeCreated,
		EventTypeLocaleUpdated,
		EventTypeLoggedIn,
		EventTypeLoggedOut,
		EventTypeUserDeleted,
		EventTypeRolesUpdated,
	}
}

// Fold applies an event to session state. It returns an error if a recognized
// event carries a payload that cannot be unmarshalled.
//
// Fold is pure and deterministic: the same (state, event, defaults) always
// yields the same next state, so live application and journal replay converge
// on identical projections. Events that update an absent row materialize it
// first with reverse-merge defaults — supplied fields win over defaults, and
// neither overwrites values the row already holds.
func Fold(state State, evt event.Event, defaults Defaults) (State, error) {
	switch evt.Type {
	case EventTypeCreated:
		// Idempotent: a second create for an existing row is a no-op.
		if state.Exists {
			return state, nil
		}
		var payload CreatePayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("session fold %s: %w", evt.Type, err)
		}
		next := State{Exists: true, Language: payload.Language, Timezone: payload.Timezone}
		return reverseMergeDefaults(next, defaults), nil

	case EventTypeLocaleUpdated:
		var payload LocalePayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("session fold %s: %w", evt.Type, err)
		}
		state = materialize(state, defaults)
		if payload.Language != "" {
			state.Language = payload.Language
		}
		if payload.Timezone != "" {
			state.Timezone = payload.Timezone
		}
		return state, nil

	case EventTypeLoggedIn:
		var payload LoggedInPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("session fold %s: %w", evt.Type, err)
		}
		state = materialize(state, defaults)
		state.UserID = payload.UserID
		state.Roles = cloneRoles(payload.Roles)
		state.Expire = payload.Expire
		if payload.Language != "" {
			state.Language = payload.Language
		}
		if payload.Timezone != "" {
			state.Timezone = payload.Timezone
		}
		return state, nil

	case EventTypeLoggedOut:
		state = materialize(state, defaults)
		return clearLogin(state), nil

	case EventTypeUserDeleted:
		var payload UserDeletedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("session fold %s: %w", evt.Type, err)
		}
		// Level-triggered cascade: only clear while still owned by the
		// deleted user, so redelivery after a new login is harmless.
		if !state.Exists || state.UserID != payload.UserID {
			return state, nil
		}
		state = reverseMergeDefaults(state, defaults)
		return clearLogin(state), nil

	case EventTypeRolesUpdated:
		var payload RolesUpdatedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("session fold %s: %w", evt.Type, err)
		}
		if !state.Exists || state.UserID != payload.UserID {
			return state, nil
		}
		state.Roles = cloneRoles(payload.Roles)
		return state, nil
	}
	return state, nil
}

// materialize ensures a row exists, filling absent locale fields with the
// configured defaults. Present values are never overwritten.
func materialize(state State, defaults Defaults) State {
	state.Exists = true
	return reverseMergeDefaults(state, defaults)
}

// reverseMergeDefaults fills only absent locale fields with defaults.
func reverseMergeDefaults(state State, defaults Defaults) State {
	if state.Language == "" {
		state.Language = defaults.Language
	}
	if state.Timezone == "" {
		state.Timezone = defaults.Timezone
	}
	return state
}

// clearLogin resets a session to the logged-out normal form: no user, no
// roles, no expiry. Locale fields are untouched.
func clearLogin(state State) State {
	state.UserID = ""
	state.Roles = nil
	state.Expire = nil
	return state
}
