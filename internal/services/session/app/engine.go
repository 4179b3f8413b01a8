// Package server wires the session runtime and gRPC lifecycle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.einride.tech/aip/resourcename"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/sessionhub/internal/platform/errors"
	"github.com/louisbranch/sessionhub/internal/platform/id"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/command"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/session"
	"github.com/louisbranch/sessionhub/internal/services/session/projection"
	"github.com/louisbranch/sessionhub/internal/services/session/storage"
)

// tracer instruments command execution, login ingest, and cascade fan-out.
var tracer = otel.Tracer("github.com/louisbranch/sessionhub/internal/services/session/app")

// LogoutConsumer receives logout notifications raised by accepted logout
// commands, for transports that must tear down caller connections.
type LogoutConsumer interface {
	OnLogout(ctx context.Context, userID string, sessionID string)
}

// Result reports the outcome of an executed command and the session row
// after its events applied.
type Result struct {
	Outcome command.Outcome
	Session storage.SessionRecord
}

// EngineConfig carries the collaborators for a session engine.
type EngineConfig struct {
	Journal  storage.EventStore
	Sessions storage.SessionStore
	Defaults session.Defaults
	// Publisher receives (old, new) row changes as events apply. Optional.
	Publisher projection.Publisher
	// LogoutConsumer receives logout triggers. Optional.
	LogoutConsumer LogoutConsumer
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Engine executes session commands: decide against the projection, append
// accepted events to the journal, fold them into the read model, and dispatch
// outbound triggers. All work for one session id runs serialized.
type Engine struct {
	journal        storage.EventStore
	sessions       storage.SessionStore
	registry       *event.Registry
	applier        *projection.Applier
	defaults       session.Defaults
	logoutConsumer LogoutConsumer
	now            func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine creates a session engine from its collaborators.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Journal == nil {
		return nil, errors.New("journal store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if strings.TrimSpace(cfg.Defaults.Language) == "" || strings.TrimSpace(cfg.Defaults.Timezone) == "" {
		return nil, errors.New("default language and timezone are required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	registry := event.NewRegistry()
	if err := session.RegisterEvents(registry); err != nil {
		return nil, fmt.Errorf("register session events: %w", err)
	}

	return &Engine{
		journal:  cfg.Journal,
		sessions: cfg.Sessions,
		registry: registry,
		applier: &projection.Applier{
			Sessions:  cfg.Sessions,
			Defaults:  cfg.Defaults,
			Publisher: cfg.Publisher,
		},
		defaults:       cfg.Defaults,
		logoutConsumer: cfg.LogoutConsumer,
		now:            now,
		locks:          make(map[string]*sessionLock),
	}, nil
}

// Execute runs one command through decide, append, and apply. Rejected
// commands return a typed error carrying the rejection code.
func (e *Engine) Execute(ctx context.Context, cmd command.Command) (Result, error) {
	if e == nil {
		return Result{}, errors.New("engine is not configured")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	ctx, span := tracer.Start(ctx, "session.command",
		trace.WithAttributes(attribute.String("session.command_type", string(cmd.Type))))
	defer span.End()

	result, err := e.execute(ctx, cmd)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (e *Engine) execute(ctx context.Context, cmd command.Command) (Result, error) {
	cmd = cmd.Normalize()
	sessionID, err := parseSessionName(cmd.SessionID)
	if err != nil {
		return Result{}, err
	}
	cmd.SessionID = sessionID
	if cmd.RequestID == "" {
		requestID, err := id.NewID()
		if err != nil {
			return Result{}, fmt.Errorf("generate request id: %w", err)
		}
		cmd.RequestID = requestID
	}

	unlock := e.lockSession(cmd.SessionID)
	defer unlock()

	record, found, err := e.loadRecord(ctx, cmd.SessionID)
	if err != nil {
		return Result{}, err
	}
	state := projection.StateFromRecord(record, found)

	decision := session.Decide(state, cmd, e.defaults, e.now)
	if err := decision.Validate(); err != nil {
		return Result{}, fmt.Errorf("session decision: %w", err)
	}
	if decision.Rejected() {
		rejection := decision.Rejections[0]
		return Result{}, apperrors.New(apperrors.Code(rejection.Code), rejection.Message)
	}

	row := record
	if !found {
		row = projection.DefaultRecord(cmd.SessionID, e.defaults)
	}
	if len(decision.Events) > 0 {
		row, err = e.appendAndApply(ctx, cmd.SessionID, decision.Events)
		if err != nil {
			return Result{}, err
		}
	}

	for _, trigger := range decision.Triggers {
		if trigger.Type == session.TriggerTypeLogout && e.logoutConsumer != nil {
			e.logoutConsumer.OnLogout(ctx, trigger.UserID, trigger.SessionID)
		}
	}

	return Result{Outcome: decision.Outcome, Session: row}, nil
}

// RecordLogin journals a login for one session. Logins originate in the auth
// boundary rather than a session command, so this is an event ingest path:
// the row materializes with reverse-merge defaults if absent.
func (e *Engine) RecordLogin(ctx context.Context, sessionID string, login session.LoggedInPayload) (storage.SessionRecord, error) {
	if e == nil {
		return storage.SessionRecord{}, errors.New("engine is not configured")
	}
	sessionID, err := parseSessionName(sessionID)
	if err != nil {
		return storage.SessionRecord{}, err
	}
	if strings.TrimSpace(login.UserID) == "" {
		return storage.SessionRecord{}, apperrors.New(apperrors.CodeUserIDRequired, "user is required")
	}
	payloadJSON, err := json.Marshal(login)
	if err != nil {
		return storage.SessionRecord{}, fmt.Errorf("encode login payload: %w", err)
	}
	evt := event.Event{
		SessionID:   sessionID,
		Type:        session.EventTypeLoggedIn,
		Timestamp:   e.now().UTC(),
		PayloadJSON: payloadJSON,
	}

	ctx, span := tracer.Start(ctx, "session.login",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	unlock := e.lockSession(sessionID)
	defer unlock()
	row, err := e.appendAndApply(ctx, sessionID, []event.Event{evt})
	if err != nil {
		span.RecordError(err)
	}
	return row, err
}

// CurrentSession returns the session row for one id. Absent sessions read as
// the synthesized default row: logged out with the configured locale.
func (e *Engine) CurrentSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	if e == nil {
		return storage.SessionRecord{}, errors.New("engine is not configured")
	}
	sessionID, err := parseSessionName(sessionID)
	if err != nil {
		return storage.SessionRecord{}, err
	}

	record, found, err := e.loadRecord(ctx, sessionID)
	if err != nil {
		return storage.SessionRecord{}, err
	}
	if !found {
		return projection.DefaultRecord(sessionID, e.defaults), nil
	}
	return record, nil
}

// SetPublisher installs the change publisher. It must be called before the
// engine serves commands; the watcher needs the engine for initial reads, so
// the two are wired in sequence.
func (e *Engine) SetPublisher(publisher projection.Publisher) {
	if e == nil || e.applier == nil {
		return
	}
	e.applier.Publisher = publisher
}

// Defaults returns the process-wide locale fallbacks the engine runs with.
func (e *Engine) Defaults() session.Defaults {
	if e == nil {
		return session.Defaults{}
	}
	return e.defaults
}

// appendAndApply validates, journals, and folds events for one session. The
// caller must hold the session lock.
func (e *Engine) appendAndApply(ctx context.Context, sessionID string, events []event.Event) (storage.SessionRecord, error) {
	records := make([]storage.EventRecord, 0, len(events))
	for _, evt := range events {
		validated, err := e.registry.ValidateForAppend(evt)
		if err != nil {
			return storage.SessionRecord{}, fmt.Errorf("validate event: %w", err)
		}
		records = append(records, projection.RecordFromEvent(validated))
	}

	appended, err := e.journal.AppendEvents(ctx, sessionID, records)
	if errors.Is(err, storage.ErrConflict) {
		return storage.SessionRecord{}, apperrors.Wrap(apperrors.CodeEventOutOfOrder, "append session events", err)
	}
	if err != nil {
		return storage.SessionRecord{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "append session events", err)
	}

	var row storage.SessionRecord
	for _, record := range appended {
		row, err = e.applier.Apply(ctx, projection.EventFromRecord(record))
		if err != nil {
			return storage.SessionRecord{}, fmt.Errorf("apply event %s: %w", record.Type, err)
		}
	}
	return row, nil
}

func (e *Engine) loadRecord(ctx context.Context, sessionID string) (storage.SessionRecord, bool, error) {
	record, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.SessionRecord{}, false, nil
		}
		return storage.SessionRecord{}, false, apperrors.Wrap(apperrors.CodeStoreUnavailable, "load session projection", err)
	}
	return record, true, nil
}

// parseSessionName extracts the session id from a "sessions/{session}"
// resource name. A bare id without the collection prefix is accepted.
func parseSessionName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.New(apperrors.CodeSessionIDRequired, "session id is required")
	}
	if !strings.Contains(name, "/") {
		return name, nil
	}
	var sessionID string
	if err := resourcename.Sscan(name, "sessions/{session}", &sessionID); err != nil {
		return "", apperrors.New(apperrors.CodeSessionIDRequired, "invalid session resource name: "+name)
	}
	if sessionID == "" {
		return "", apperrors.New(apperrors.CodeSessionIDRequired, "invalid session resource name: "+name)
	}
	return sessionID, nil
}

// lockSession serializes work per session id. Locks are reference counted so
// the map does not grow with every session ever touched.
func (e *Engine) lockSession(sessionID string) func() {
	e.mu.Lock()
	lock, ok := e.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		e.locks[sessionID] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		e.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(e.locks, sessionID)
		}
		e.mu.Unlock()
	}
}
