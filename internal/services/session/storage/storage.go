package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested session or event record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// EventRecord stores one journal entry. Seq is assigned by the store on
// append and is strictly increasing per session.
type EventRecord struct {
	SessionID   string
	Seq         uint64
	Type        string
	RequestID   string
	Timestamp   time.Time
	PayloadJSON string
}

// SessionRecord stores one materialized session projection row.
type SessionRecord struct {
	ID        string
	UserID    string
	Roles     []string
	Expire    *time.Time
	Language  string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventStore persists the append-only session event journal.
type EventStore interface {
	// AppendEvents atomically appends events for one session, assigning
	// consecutive per-session sequence numbers. It returns the records
	// with sequence numbers filled in.
	AppendEvents(ctx context.Context, sessionID string, events []EventRecord) ([]EventRecord, error)
	// ListEvents lists one session's journal in sequence order starting
	// after afterSeq. A limit of zero or less means no limit.
	ListEvents(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]EventRecord, error)
	// ListSessionIDsWithEvents lists distinct session ids present in the
	// journal in ascending order starting after afterID, up to limit.
	ListSessionIDsWithEvents(ctx context.Context, afterID string, limit int) ([]string, error)
}

// SessionStore persists the session projection and its by-user index.
type SessionStore interface {
	// PutSession upserts one projection row and keeps the by-user index
	// in step within the same transaction.
	PutSession(ctx context.Context, record SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (SessionRecord, error)
	// ListSessionIDsByUser lists session ids currently logged in as the
	// given user, in ascending id order.
	ListSessionIDsByUser(ctx context.Context, userID string) ([]string, error)
}
