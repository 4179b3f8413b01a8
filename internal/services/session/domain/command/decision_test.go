package command

import (
	"testing"
	"time"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
)

func TestAcceptDecisionCarriesOutcomeAndEvents(t *testing.T) {
	t.Parallel()

	evt := event.Event{SessionID: "s1"}
	decision := Accept(OutcomeCreated, evt)

	if decision.Outcome != OutcomeCreated {
		t.Fatalf("outcome = %q, want %q", decision.Outcome, OutcomeCreated)
	}
	if len(decision.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(decision.Events))
	}
	if decision.Events[0].SessionID != "s1" {
		t.Fatalf("event session id = %s, want s1", decision.Events[0].SessionID)
	}
	if decision.Rejected() {
		t.Fatal("expected accepted decision")
	}
}

func TestRejectDecisionCarriesRejectionsOnly(t *testing.T) {
	t.Parallel()

	decision := Reject(Rejection{Code: "SESSION_NOT_FOUND"})

	if !decision.Rejected() {
		t.Fatal("expected rejected decision")
	}
	if len(decision.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(decision.Events))
	}
	if decision.Rejections[0].Code != "SESSION_NOT_FOUND" {
		t.Fatalf("rejection code = %s", decision.Rejections[0].Code)
	}
}

func TestDecisionValidate(t *testing.T) {
	t.Parallel()

	if err := (Decision{}).Validate(); err == nil {
		t.Fatal("expected error for empty decision")
	}
	if err := Accept(OutcomeExists).Validate(); err != nil {
		t.Fatalf("accept without events should be valid: %v", err)
	}
	if err := Reject(Rejection{Code: "NOPE"}).Validate(); err != nil {
		t.Fatalf("reject only should be valid: %v", err)
	}
	mixed := Decision{Outcome: OutcomeCreated, Rejections: []Rejection{{Code: "NOPE"}}}
	if err := mixed.Validate(); err == nil {
		t.Fatal("expected error for mixed decision")
	}
}

func TestWithTriggerAppends(t *testing.T) {
	t.Parallel()

	decision := Accept(OutcomeLoggedOut).WithTrigger(Trigger{Type: "logout", UserID: "u1", SessionID: "s1"})
	if len(decision.Triggers) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(decision.Triggers))
	}
	if decision.Triggers[0].UserID != "u1" {
		t.Fatalf("trigger user = %s, want u1", decision.Triggers[0].UserID)
	}
}

func TestNewEventCopiesCommandEnvelope(t *testing.T) {
	t.Parallel()

	cmd := Command{SessionID: "s1", Type: "session.logout", RequestID: "req-1"}
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	evt := NewEvent(cmd, event.Type("session.logged_out"), []byte(`{}`), now)

	if evt.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", evt.SessionID)
	}
	if evt.Type != event.Type("session.logged_out") {
		t.Errorf("Type = %q, want session.logged_out", evt.Type)
	}
	if evt.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", evt.RequestID)
	}
	if !evt.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", evt.Timestamp, now)
	}
}
