package server

import (
	"context"
	"reflect"
	"testing"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/session"
)

func newTestReactor(t *testing.T, engine *Engine) *Reactor {
	t.Helper()
	reactor, err := NewReactor(engine)
	if err != nil {
		t.Fatalf("new reactor: %v", err)
	}
	reactor.retryDelay = 0
	return reactor
}

func TestHandleUserDeletedLogsOutAllSessions(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	engine := newTestEngine(t, store)
	reactor := newTestReactor(t, engine)

	for _, sessionID := range []string{"sess-1", "sess-2"} {
		if _, err := engine.RecordLogin(context.Background(), sessionID, session.LoggedInPayload{UserID: "user-1", Roles: []string{"admin"}}); err != nil {
			t.Fatalf("login %s: %v", sessionID, err)
		}
	}
	if _, err := engine.RecordLogin(context.Background(), "sess-other", session.LoggedInPayload{UserID: "user-2"}); err != nil {
		t.Fatalf("login other: %v", err)
	}

	if err := reactor.HandleUserDeleted(context.Background(), "users/user-1"); err != nil {
		t.Fatalf("handle user deleted: %v", err)
	}

	for _, sessionID := range []string{"sess-1", "sess-2"} {
		record, err := engine.CurrentSession(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("current session %s: %v", sessionID, err)
		}
		if record.UserID != "" || len(record.Roles) != 0 || record.Expire != nil {
			t.Fatalf("%s = %+v, want logged-out normal form", sessionID, record)
		}
	}

	other, err := engine.CurrentSession(context.Background(), "sess-other")
	if err != nil {
		t.Fatalf("current session other: %v", err)
	}
	if other.UserID != "user-2" {
		t.Fatalf("other session = %+v, want untouched", other)
	}

	ids, err := store.ListSessionIDsByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("index still lists %v", ids)
	}
}

func TestHandleUserDeletedIsIdempotent(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))
	reactor := newTestReactor(t, engine)

	if _, err := engine.RecordLogin(context.Background(), "sess-1", session.LoggedInPayload{UserID: "user-1"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := reactor.HandleUserDeleted(context.Background(), "users/user-1"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := reactor.HandleUserDeleted(context.Background(), "users/user-1"); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	record, err := engine.CurrentSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if record.UserID != "" {
		t.Fatalf("record = %+v", record)
	}
}

func TestHandleRolesUpdatedReplacesSnapshot(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))
	reactor := newTestReactor(t, engine)

	if _, err := engine.RecordLogin(context.Background(), "sess-1", session.LoggedInPayload{UserID: "user-1", Roles: []string{"admin"}}); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := reactor.HandleRolesUpdated(context.Background(), "users/user-1", []string{"editor", "viewer"}); err != nil {
		t.Fatalf("handle roles updated: %v", err)
	}

	record, err := engine.CurrentSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if !reflect.DeepEqual(record.Roles, []string{"editor", "viewer"}) {
		t.Fatalf("roles = %v", record.Roles)
	}
	if record.UserID != "user-1" {
		t.Fatalf("user = %q, want login preserved", record.UserID)
	}
}

func TestHandleRolesUpdatedForUnknownUserIsNoOp(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, openTempStore(t))
	reactor := newTestReactor(t, engine)

	if err := reactor.HandleRolesUpdated(context.Background(), "users/ghost", []string{"admin"}); err != nil {
		t.Fatalf("handle roles updated: %v", err)
	}
}

func TestParseUserNameAcceptsResourceAndBareNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "users/user-1", want: "user-1"},
		{input: "user-1", want: "user-1"},
		{input: "", wantErr: true},
		{input: "accounts/user-1", wantErr: true},
		{input: "users/", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseUserName(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseUserName(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseUserName(%q): %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("parseUserName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
