package session

import (
	"time"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/command"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
)

// Session command types.
const (
	// CommandTypeCreateIfNotExists requests idempotent session materialization.
	CommandTypeCreateIfNotExists command.Type = "session.create_if_not_exists"
	// CommandTypeSetLocale requests a language/timezone preference update.
	CommandTypeSetLocale command.Type = "session.set_locale"
	// CommandTypeLogout requests clearing the session's login state.
	CommandTypeLogout command.Type = "session.logout"
)

// Session event types.
const (
	// EventTypeCreated records explicit session materialization.
	EventTypeCreated event.Type = "session.created"
	// EventTypeLocaleUpdated records a language/timezone preference change.
	EventTypeLocaleUpdated event.Type = "session.locale_updated"
	// EventTypeLoggedIn records a user binding with a role snapshot and expiry.
	EventTypeLoggedIn event.Type = "session.logged_in"
	// EventTypeLoggedOut records clearing of the login state.
	EventTypeLoggedOut event.Type = "session.logged_out"
	// EventTypeUserDeleted records a cascade clear because the owning user
	// was deleted. Session-scoped: one event per affected session.
	EventTypeUserDeleted event.Type = "session.user_deleted"
	// EventTypeRolesUpdated records a cascade role-snapshot replacement.
	// Session-scoped: one event per affected session.
	EventTypeRolesUpdated event.Type = "session.roles_updated"
)

// TriggerTypeLogout is the outbound trigger raised toward the owning user's
// domain when a session logs out.
const TriggerTypeLogout = "session.logout"

// CreatePayload carries inputs for CommandTypeCreateIfNotExists and the
// resolved values recorded by EventTypeCreated.
type CreatePayload struct {
	// SessionID optionally restates the target session; it must match the
	// caller-bound identity when present.
	SessionID string `json:"session,omitempty"`
	Language  string `json:"language,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// LocalePayload carries inputs for CommandTypeSetLocale and the fields
// recorded by EventTypeLocaleUpdated. Empty fields are "not mentioned" and
// never overwrite stored values.
type LocalePayload struct {
	Language string `json:"language,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// LoggedInPayload carries the fields recorded by EventTypeLoggedIn. The
// event is appended by the authentication collaborator, not by a command
// handler in this service.
type LoggedInPayload struct {
	UserID   string     `json:"user"`
	Roles    []string   `json:"roles"`
	Expire   *time.Time `json:"expire,omitempty"`
	Language string     `json:"language,omitempty"`
	Timezone string     `json:"timezone,omitempty"`
}

// LogoutPayload carries inputs for CommandTypeLogout.
type LogoutPayload struct {
	// SessionID optionally restates the target session; any value other
	// than the caller-bound identity is rejected as identity forgery.
	SessionID string `json:"session,omitempty"`
}

// UserDeletedPayload carries the fields recorded by EventTypeUserDeleted.
type UserDeletedPayload struct {
	UserID string `json:"user"`
}

// RolesUpdatedPayload carries the fields recorded by EventTypeRolesUpdated.
type RolesUpdatedPayload struct {
	UserID string   `json:"user"`
	Roles  []string `json:"roles"`
}
