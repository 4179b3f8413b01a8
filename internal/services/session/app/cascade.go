package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.einride.tech/aip/resourcename"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/sessionhub/internal/platform/errors"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/session"
)

const (
	defaultCascadeRetryAttempts = 3
	defaultCascadeRetryDelay    = time.Second
)

// Reactor applies user-domain changes to every session logged in as the
// affected user. Notifications are level-triggered: the fold's ownership
// precondition makes redelivery and replay of cascade events harmless, so the
// reactor retries freely on storage errors.
type Reactor struct {
	engine        *Engine
	retryAttempts int
	retryDelay    time.Duration
}

// NewReactor creates a cascade reactor bound to one engine.
func NewReactor(engine *Engine) (*Reactor, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	return &Reactor{
		engine:        engine,
		retryAttempts: defaultCascadeRetryAttempts,
		retryDelay:    defaultCascadeRetryDelay,
	}, nil
}

// HandleUserDeleted logs out every session owned by the deleted user. The
// user is addressed by resource name, e.g. "users/u1".
func (r *Reactor) HandleUserDeleted(ctx context.Context, userName string) error {
	userID, err := parseUserName(userName)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(session.UserDeletedPayload{UserID: userID})
	if err != nil {
		return fmt.Errorf("encode user deleted payload: %w", err)
	}
	return r.cascade(ctx, userID, session.EventTypeUserDeleted, payload)
}

// HandleRolesUpdated replaces the role snapshot on every session logged in as
// the user. Sessions not owned by the user are untouched.
func (r *Reactor) HandleRolesUpdated(ctx context.Context, userName string, roles []string) error {
	userID, err := parseUserName(userName)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(session.RolesUpdatedPayload{UserID: userID, Roles: roles})
	if err != nil {
		return fmt.Errorf("encode roles updated payload: %w", err)
	}
	return r.cascade(ctx, userID, session.EventTypeRolesUpdated, payload)
}

// cascade resolves affected sessions through the by-user index and appends
// one session-scoped event per session, retrying transient failures.
func (r *Reactor) cascade(ctx context.Context, userID string, eventType event.Type, payloadJSON []byte) error {
	if r == nil || r.engine == nil {
		return errors.New("reactor is not configured")
	}
	ctx, span := tracer.Start(ctx, "session.cascade",
		trace.WithAttributes(
			attribute.String("session.cascade_event", string(eventType)),
			attribute.String("user.id", userID),
		))
	defer span.End()

	sessionIDs, err := r.engine.sessions.ListSessionIDsByUser(ctx, userID)
	if err != nil {
		wrapped := apperrors.Wrap(apperrors.CodeStoreUnavailable, "list sessions for user cascade", err)
		span.RecordError(wrapped)
		return wrapped
	}

	var failed []string
	for _, sessionID := range sessionIDs {
		if err := r.applyWithRetry(ctx, sessionID, eventType, payloadJSON); err != nil {
			log.Printf("cascade %s to session %s: %v", eventType, sessionID, err)
			failed = append(failed, sessionID)
		}
	}
	if len(failed) > 0 {
		err := fmt.Errorf("cascade %s failed for sessions: %s", eventType, strings.Join(failed, ", "))
		span.RecordError(err)
		return err
	}
	return nil
}

func (r *Reactor) applyWithRetry(ctx context.Context, sessionID string, eventType event.Type, payloadJSON []byte) error {
	var lastErr error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			if !waitCascadeRetry(ctx, r.retryDelay) {
				return ctx.Err()
			}
		}
		evt := event.Event{
			SessionID:   sessionID,
			Type:        eventType,
			Timestamp:   r.engine.now().UTC(),
			PayloadJSON: payloadJSON,
		}
		unlock := r.engine.lockSession(sessionID)
		_, err := r.engine.appendAndApply(ctx, sessionID, []event.Event{evt})
		unlock()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func waitCascadeRetry(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = time.Second
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// parseUserName extracts the user id from a "users/{user}" resource name. A
// bare id without the collection prefix is accepted for callers that predate
// resource naming.
func parseUserName(userName string) (string, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return "", apperrors.New(apperrors.CodeUserIDRequired, "user is required")
	}
	if !strings.Contains(userName, "/") {
		return userName, nil
	}
	var userID string
	if err := resourcename.Sscan(userName, "users/{user}", &userID); err != nil {
		return "", apperrors.New(apperrors.CodeUserIDRequired, "invalid user resource name: "+userName)
	}
	if userID == "" {
		return "", apperrors.New(apperrors.CodeUserIDRequired, "invalid user resource name: "+userName)
	}
	return userID, nil
}
