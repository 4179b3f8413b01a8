package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/sessionhub/internal/platform/errors"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/command"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/session"
	"github.com/louisbranch/sessionhub/internal/services/session/storage"
	"github.com/louisbranch/sessionhub/internal/services/session/storage/sqlite"
)

func openTempStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Fatalf("close store: %v", closeErr)
		}
	})
	return store
}

func newTestEngine(t *testing.T, store *sqlite.Store) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{
		Journal:  store,
		Sessions: store,
		Defaults: session.Defaults{Language: "en", Timezone: "UTC"},
		Now: func() time.Time {
			return time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func newCommand(t *testing.T, sessionID string, commandType command.Type, payload any) command.Command {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return command.Command{SessionID: sessionID, Type: commandType, PayloadJSON: raw}
}

func requireErrorCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s", code)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("err = %v, want typed error", err)
	}
	if appErr.Code != code {
		t.Fatalf("code = %s, want %s", appErr.Code, code)
	}
}

func TestExecuteCreateThenExists(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))

	result, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeCreateIfNotExists, session.CreatePayload{Language: "pt-BR"}))
	if err != nil {
		t.Fatalf("execute create: %v", err)
	}
	if result.Outcome != command.OutcomeCreated {
		t.Fatalf("outcome = %q, want created", result.Outcome)
	}
	if result.Session.Language != "pt-BR" || result.Session.Timezone != "UTC" {
		t.Fatalf("session = %+v", result.Session)
	}

	again, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeCreateIfNotExists, session.CreatePayload{Language: "fr"}))
	if err != nil {
		t.Fatalf("execute second create: %v", err)
	}
	if again.Outcome != command.OutcomeExists {
		t.Fatalf("outcome = %q, want exists", again.Outcome)
	}
	// The existing row is untouched by the second create's inputs.
	if again.Session.Language != "pt-BR" {
		t.Fatalf("language = %q, want pt-BR", again.Session.Language)
	}

	events, err := engine.journal.ListEvents(context.Background(), "sess-1", 0, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("journal has %d events, want 1", len(events))
	}
}

func TestExecuteSetLocaleRequiresExistingSession(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))

	_, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeSetLocale, session.LocalePayload{Language: "de"}))
	requireErrorCode(t, err, apperrors.CodeSessionNotFound)
}

func TestExecuteSetLocaleUpdatesRow(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))

	if _, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeCreateIfNotExists, session.CreatePayload{})); err != nil {
		t.Fatalf("create: %v", err)
	}
	result, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeSetLocale, session.LocalePayload{Language: "de", Timezone: "Europe/Berlin"}))
	if err != nil {
		t.Fatalf("set locale: %v", err)
	}
	if result.Outcome != command.OutcomeUpdated {
		t.Fatalf("outcome = %q", result.Outcome)
	}
	if result.Session.Language != "de" || result.Session.Timezone != "Europe/Berlin" {
		t.Fatalf("session = %+v", result.Session)
	}
}

type capturingLogoutConsumer struct {
	mu      sync.Mutex
	logouts [][2]string
}

func (c *capturingLogoutConsumer) OnLogout(_ context.Context, userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts = append(c.logouts, [2]string{userID, sessionID})
}

func TestExecuteLogoutLifecycle(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	consumer := &capturingLogoutConsumer{}
	engine, err := NewEngine(EngineConfig{
		Journal:        store,
		Sessions:       store,
		Defaults:       session.Defaults{Language: "en", Timezone: "UTC"},
		LogoutConsumer: consumer,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	// Logout of an unknown session is not found.
	_, err = engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeLogout, session.LogoutPayload{}))
	requireErrorCode(t, err, apperrors.CodeSessionNotFound)

	if _, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeCreateIfNotExists, session.CreatePayload{})); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Logout of a logged-out session is a typed error.
	_, err = engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeLogout, session.LogoutPayload{}))
	requireErrorCode(t, err, apperrors.CodeSessionAlreadyLoggedOut)

	if _, err := engine.RecordLogin(context.Background(), "sess-1", session.LoggedInPayload{UserID: "user-1", Roles: []string{"admin"}}); err != nil {
		t.Fatalf("login: %v", err)
	}

	result, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeLogout, session.LogoutPayload{}))
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if result.Outcome != command.OutcomeLoggedOut {
		t.Fatalf("outcome = %q", result.Outcome)
	}
	if result.Session.UserID != "" || len(result.Session.Roles) != 0 || result.Session.Expire != nil {
		t.Fatalf("session = %+v, want logged-out normal form", result.Session)
	}

	consumer.mu.Lock()
	defer consumer.mu.Unlock()
	if !reflect.DeepEqual(consumer.logouts, [][2]string{{"user-1", "sess-1"}}) {
		t.Fatalf("logouts = %v", consumer.logouts)
	}
}

func TestExecuteRejectsForeignSessionID(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))

	_, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeCreateIfNotExists, session.CreatePayload{SessionID: "sess-2"}))
	requireErrorCode(t, err, apperrors.CodeSessionWrongIdentity)
}

func TestCurrentSessionSynthesizesDefaultRow(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))

	record, err := engine.CurrentSession(context.Background(), "sess-unknown")
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if record.ID != "sess-unknown" || record.UserID != "" {
		t.Fatalf("record = %+v", record)
	}
	if record.Language != "en" || record.Timezone != "UTC" {
		t.Fatalf("locale = %q/%q, want defaults", record.Language, record.Timezone)
	}
}

func TestExecuteSerializesPerSession(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))

	if _, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeCreateIfNotExists, session.CreatePayload{})); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeSetLocale, session.LocalePayload{Timezone: "Europe/Lisbon"}))
			if err != nil {
				t.Errorf("set locale: %v", err)
			}
		}()
	}
	wg.Wait()

	events, err := engine.journal.ListEvents(context.Background(), "sess-1", 0, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	// create + 8 locale updates, all with distinct consecutive sequences.
	if len(events) != 9 {
		t.Fatalf("journal has %d events, want 9", len(events))
	}
	for i, evt := range events {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("events[%d].Seq = %d, want %d", i, evt.Seq, i+1)
		}
	}

	engine.mu.Lock()
	remaining := len(engine.locks)
	engine.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("lock map has %d entries, want 0", remaining)
	}
}

func TestExecuteAcceptsSessionResourceName(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))

	result, err := engine.Execute(context.Background(), newCommand(t, "sessions/sess-1", session.CommandTypeCreateIfNotExists, session.CreatePayload{Language: "pt-BR"}))
	if err != nil {
		t.Fatalf("execute create: %v", err)
	}
	if result.Outcome != command.OutcomeCreated {
		t.Fatalf("outcome = %q, want created", result.Outcome)
	}
	if result.Session.ID != "sess-1" {
		t.Fatalf("session id = %q, want bare sess-1", result.Session.ID)
	}

	// Both addressing forms resolve to the same row.
	record, err := engine.CurrentSession(context.Background(), "sessions/sess-1")
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if record.ID != "sess-1" || record.Language != "pt-BR" {
		t.Fatalf("record = %+v", record)
	}
}

func TestParseSessionNameAcceptsResourceAndBareNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "sessions/sess-1", want: "sess-1"},
		{input: "sess-1", want: "sess-1"},
		{input: "", wantErr: true},
		{input: "accounts/sess-1", wantErr: true},
		{input: "sessions/", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseSessionName(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseSessionName(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseSessionName(%q): %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("parseSessionName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

type conflictJournal struct{}

func (conflictJournal) AppendEvents(context.Context, string, []storage.EventRecord) ([]storage.EventRecord, error) {
	return nil, fmt.Errorf("insert session event: %w", storage.ErrConflict)
}

func (conflictJournal) ListEvents(context.Context, string, uint64, int) ([]storage.EventRecord, error) {
	return nil, nil
}

func (conflictJournal) ListSessionIDsWithEvents(context.Context, string, int) ([]string, error) {
	return nil, nil
}

func TestExecuteMapsAppendConflict(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(EngineConfig{
		Journal:  conflictJournal{},
		Sessions: openTempStore(t),
		Defaults: session.Defaults{Language: "en", Timezone: "UTC"},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, err = engine.Execute(context.Background(), newCommand(t, "sess-1", session.CommandTypeCreateIfNotExists, session.CreatePayload{}))
	requireErrorCode(t, err, apperrors.CodeEventOutOfOrder)
}

func TestRecordLoginMaterializesAndIndexes(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	engine := newTestEngine(t, store)

	record, err := engine.RecordLogin(context.Background(), "sess-1", session.LoggedInPayload{UserID: "user-1", Roles: []string{"admin"}})
	if err != nil {
		t.Fatalf("record login: %v", err)
	}
	if record.UserID != "user-1" || !reflect.DeepEqual(record.Roles, []string{"admin"}) {
		t.Fatalf("record = %+v", record)
	}
	if record.Language != "en" || record.Timezone != "UTC" {
		t.Fatalf("locale = %q/%q, want defaults", record.Language, record.Timezone)
	}

	ids, err := store.ListSessionIDsByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"sess-1"}) {
		t.Fatalf("ids = %v", ids)
	}
}
