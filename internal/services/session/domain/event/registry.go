package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTypeRequired indicates a definition or event without a type.
var ErrTypeRequired = errors.New("event type is required")

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for an event type.
type Definition struct {
	Type            Type
	ValidatePayload PayloadValidator
}

// Registry stores event definitions and validates events before append.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new event type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("event type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// Types returns the registered event types.
func (r *Registry) Types() []Type {
	if r == nil {
		return nil
	}
	types := make([]Type, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	return types
}

// ValidateForAppend normalizes and validates an event before journal append.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	if r == nil {
		return Event{}, errors.New("registry is required")
	}
	evt.SessionID = strings.TrimSpace(evt.SessionID)
	if evt.SessionID == "" {
		return Event{}, errors.New("event session id is required")
	}
	if !evt.Type.IsValid() {
		return Event{}, ErrTypeRequired
	}
	def, ok := r.definitions[evt.Type]
	if !ok {
		return Event{}, fmt.Errorf("event type not registered: %s", evt.Type)
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(evt.PayloadJSON); err != nil {
			return Event{}, fmt.Errorf("event payload %s: %w", evt.Type, err)
		}
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC()
	return evt, nil
}
