package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/command"
)

const (
	rejectionCodeSessionIDRequired  = "SESSION_ID_REQUIRED"
	rejectionCodeWrongIdentity      = "SESSION_WRONG_IDENTITY"
	rejectionCodeSessionNotFound    = "SESSION_NOT_FOUND"
	rejectionCodeAlreadyLoggedOut   = "SESSION_ALREADY_LOGGED_OUT"
	rejectionCodeLanguageInvalid    = "LANGUAGE_INVALID"
	rejectionCodeTimezoneInvalid    = "TIMEZONE_INVALID"
	rejectionCodeCommandUnsupported = "COMMAND_TYPE_UNSUPPORTED"
)

// Decide returns the decision for a session command against current state.
//
// Deciders read state, never mutate it: accepted commands emit events and the
// fold owns every transition. The caller-bound session identity on the command
// envelope is authoritative; a payload restating a different session id is
// rejected before any event is considered.
func Decide(state State, cmd command.Command, defaults Defaults, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	cmd = cmd.Normalize()
	if cmd.SessionID == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeSessionIDRequired,
			Message: "session id is required",
		})
	}

	switch cmd.Type {
	case CommandTypeCreateIfNotExists:
		return decideCreate(state, cmd, defaults, now)
	case CommandTypeSetLocale:
		return decideSetLocale(state, cmd, now)
	case CommandTypeLogout:
		return decideLogout(state, cmd, now)
	}
	return command.Reject(command.Rejection{
		Code:    rejectionCodeCommandUnsupported,
		Message: "unsupported command type: " + string(cmd.Type),
	})
}

func decideCreate(state State, cmd command.Command, defaults Defaults, now func() time.Time) command.Decision {
	var payload CreatePayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if rejection, ok := checkBoundIdentity(cmd.SessionID, payload.SessionID); !ok {
		return command.Reject(rejection)
	}

	// An existing row wins over payload validation: the caller asked for
	// presence, and the row they get back is not shaped by their inputs.
	if state.Exists {
		return command.Accept(command.OutcomeExists)
	}

	language, err := NormalizeLanguage(payload.Language)
	if err != nil {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeLanguageInvalid,
			Message: "invalid language tag: " + payload.Language,
		})
	}
	timezone, err := NormalizeTimezone(payload.Timezone)
	if err != nil {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeTimezoneInvalid,
			Message: "invalid timezone: " + payload.Timezone,
		})
	}

	// The event records resolved values so replay does not depend on the
	// configuration that was live at append time.
	if language == "" {
		language = defaults.Language
	}
	if timezone == "" {
		timezone = defaults.Timezone
	}
	normalized := CreatePayload{SessionID: cmd.SessionID, Language: language, Timezone: timezone}
	payloadJSON, _ := json.Marshal(normalized)
	evt := command.NewEvent(cmd, EventTypeCreated, payloadJSON, now().UTC())
	return command.Accept(command.OutcomeCreated, evt)
}

func decideSetLocale(state State, cmd command.Command, now func() time.Time) command.Decision {
	if !state.Exists {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeSessionNotFound,
			Message: "session not found",
		})
	}

	var payload LocalePayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)

	language, err := NormalizeLanguage(payload.Language)
	if err != nil {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeLanguageInvalid,
			Message: "invalid language tag: " + payload.Language,
		})
	}
	timezone, err := NormalizeTimezone(payload.Timezone)
	if err != nil {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeTimezoneInvalid,
			Message: "invalid timezone: " + payload.Timezone,
		})
	}

	normalized := LocalePayload{Language: language, Timezone: timezone}
	payloadJSON, _ := json.Marshal(normalized)
	evt := command.NewEvent(cmd, EventTypeLocaleUpdated, payloadJSON, now().UTC())
	return command.Accept(command.OutcomeUpdated, evt)
}

func decideLogout(state State, cmd command.Command, now func() time.Time) command.Decision {
	var payload LogoutPayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if rejection, ok := checkBoundIdentity(cmd.SessionID, payload.SessionID); !ok {
		return command.Reject(rejection)
	}

	if !state.Exists {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeSessionNotFound,
			Message: "session not found",
		})
	}
	// Logging out twice is an error, not a no-op: callers must be able to
	// distinguish "nothing to do" from success.
	if !state.LoggedIn() {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeAlreadyLoggedOut,
			Message: "session is already logged out",
		})
	}

	evt := command.NewEvent(cmd, EventTypeLoggedOut, []byte(`{}`), now().UTC())
	return command.Accept(command.OutcomeLoggedOut, evt).WithTrigger(command.Trigger{
		Type:      TriggerTypeLogout,
		UserID:    state.UserID,
		SessionID: cmd.SessionID,
	})
}

// checkBoundIdentity rejects payloads restating a session id other than the
// caller-bound one.
func checkBoundIdentity(bound, restated string) (command.Rejection, bool) {
	restated = strings.TrimSpace(restated)
	if restated != "" && restated != bound {
		return command.Rejection{
			Code:    rejectionCodeWrongIdentity,
			Message: "session id does not match caller identity",
		}, false
	}
	return command.Rejection{}, true
}
