// Package projection folds journal events into the materialized session
// read model.
package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/sessionhub/internal/services/session/domain/event"
	"github.com/louisbranch/sessionhub/internal/services/session/domain/session"
	"github.com/louisbranch/sessionhub/internal/services/session/storage"
)

const replayPageSize = 256

// Publisher receives (old, new) row pairs after each applied event. The old
// row for an absent session is the synthesized default row.
type Publisher interface {
	PublishChange(sessionID string, oldRecord, newRecord storage.SessionRecord)
}

// Applier folds journal events into stored projection rows, one event at a
// time in journal order.
type Applier struct {
	Sessions  storage.SessionStore
	Defaults  session.Defaults
	Publisher Publisher
}

// Apply folds one event into the session's stored row and publishes the
// resulting change. It returns the row after the event. Events that leave an
// absent session absent persist and publish nothing.
//
// Callers must apply a session's events in journal order; the engine's
// per-session serialization guarantees that for the live path.
func (a *Applier) Apply(ctx context.Context, evt event.Event) (storage.SessionRecord, error) {
	if a == nil || a.Sessions == nil {
		return storage.SessionRecord{}, fmt.Errorf("projection store is not configured")
	}

	oldRecord, found, err := a.loadRecord(ctx, evt.SessionID)
	if err != nil {
		return storage.SessionRecord{}, err
	}

	state, err := session.Fold(StateFromRecord(oldRecord, found), evt, a.Defaults)
	if err != nil {
		return storage.SessionRecord{}, err
	}
	if !state.Exists {
		return oldRecord, nil
	}

	createdAt := oldRecord.CreatedAt
	if !found {
		createdAt = evt.Timestamp
	}
	newRecord := RecordFromState(evt.SessionID, state, createdAt, evt.Timestamp)
	if err := a.Sessions.PutSession(ctx, newRecord); err != nil {
		return storage.SessionRecord{}, fmt.Errorf("persist session projection: %w", err)
	}

	if a.Publisher != nil {
		published := oldRecord
		if !found {
			published = DefaultRecord(evt.SessionID, a.Defaults)
		}
		a.Publisher.PublishChange(evt.SessionID, published, newRecord)
	}
	return newRecord, nil
}

// Replay rebuilds the projection for every session present in the journal.
// Replay writes final rows only and publishes no changes; it exists for
// rebuilding the read model, not for live consumption.
func (a *Applier) Replay(ctx context.Context, journal storage.EventStore) error {
	if a == nil || a.Sessions == nil {
		return fmt.Errorf("projection store is not configured")
	}
	if journal == nil {
		return fmt.Errorf("journal is required")
	}

	afterID := ""
	for {
		ids, err := journal.ListSessionIDsWithEvents(ctx, afterID, replayPageSize)
		if err != nil {
			return fmt.Errorf("list journal sessions: %w", err)
		}
		for _, sessionID := range ids {
			if err := a.ReplaySession(ctx, journal, sessionID); err != nil {
				return err
			}
		}
		if len(ids) < replayPageSize {
			return nil
		}
		afterID = ids[len(ids)-1]
	}
}

// ReplaySession rebuilds one session's row from its full journal.
func (a *Applier) ReplaySession(ctx context.Context, journal storage.EventStore, sessionID string) error {
	if a == nil || a.Sessions == nil {
		return fmt.Errorf("projection store is not configured")
	}

	state := session.State{}
	var record storage.SessionRecord
	afterSeq := uint64(0)
	for {
		records, err := journal.ListEvents(ctx, sessionID, afterSeq, replayPageSize)
		if err != nil {
			return fmt.Errorf("list journal events for %s: %w", sessionID, err)
		}
		for _, eventRecord := range records {
			evt := EventFromRecord(eventRecord)
			next, err := session.Fold(state, evt, a.Defaults)
			if err != nil {
				return fmt.Errorf("replay %s seq %d: %w", sessionID, evt.Seq, err)
			}
			if next.Exists && !state.Exists {
				record.CreatedAt = evt.Timestamp
			}
			if next.Exists {
				record.UpdatedAt = evt.Timestamp
			}
			state = next
			afterSeq = evt.Seq
		}
		if len(records) < replayPageSize {
			break
		}
	}

	if !state.Exists {
		return nil
	}
	row := RecordFromState(sessionID, state, record.CreatedAt, record.UpdatedAt)
	if err := a.Sessions.PutSession(ctx, row); err != nil {
		return fmt.Errorf("persist replayed session %s: %w", sessionID, err)
	}
	return nil
}

func (a *Applier) loadRecord(ctx context.Context, sessionID string) (storage.SessionRecord, bool, error) {
	record, err := a.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.SessionRecord{}, false, nil
		}
		return storage.SessionRecord{}, false, fmt.Errorf("load session projection: %w", err)
	}
	return record, true, nil
}
