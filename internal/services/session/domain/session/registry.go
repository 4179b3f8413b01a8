package session

import (
	"encoding/json"
	"errors"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
)

// RegisterEvents adds every session event type to the registry so the journal
// rejects appends outside the fold's closed set.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	definitions := []event.Definition{
		{Type: EventTypeCreated},
		{Type: EventTypeLocaleUpdated},
		{Type: EventTypeLoggedIn, ValidatePayload: validateLoggedInPayload},
		{Type: EventTypeLoggedOut},
		{Type: EventTypeUserDeleted, ValidatePayload: validateUserScopedPayload},
		{Type: EventTypeRolesUpdated, ValidatePayload: validateUserScopedPayload},
	}
	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func validateLoggedInPayload(raw json.RawMessage) error {
	var payload LoggedInPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.UserID == "" {
		return errors.New("user is required")
	}
	return nil
}

func validateUserScopedPayload(raw json.RawMessage) error {
	var payload UserDeletedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.UserID == "" {
		return errors.New("user is required")
	}
	return nil
}
