package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/louisbranch/sessionhub/internal/services/session/storage"
)

// AppendEvents atomically appends events to one session's journal, assigning
// consecutive sequence numbers after the current maximum.
func (s *Store) AppendEvents(ctx context.Context, sessionID string, events []storage.EventRecord) ([]storage.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if len(events) == 0 {
		return nil, nil
	}

	normalized := make([]storage.EventRecord, 0, len(events))
	for _, record := range events {
		normalizedRecord, err := normalizeEventRecord(sessionID, record)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, normalizedRecord)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin journal append: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback journal append: %v", cause, rollbackErr)
		}
		return cause
	}

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM session_events WHERE session_id = ?", sessionID,
	).Scan(&maxSeq); err != nil {
		return nil, rollbackWith(fmt.Errorf("read journal head: %w", err))
	}

	seq := uint64(0)
	if maxSeq.Valid {
		seq = uint64(maxSeq.Int64)
	}
	for i := range normalized {
		seq++
		normalized[i].Seq = seq
		if _, err := tx.ExecContext(ctx, `
INSERT INTO session_events (session_id, seq, type, request_id, payload_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
			normalized[i].SessionID,
			normalized[i].Seq,
			normalized[i].Type,
			normalized[i].RequestID,
			normalized[i].PayloadJSON,
			toMillis(normalized[i].Timestamp),
		); err != nil {
			if isUniqueConstraintError(err) {
				return nil, rollbackWith(storage.ErrConflict)
			}
			return nil, rollbackWith(fmt.Errorf("append event: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit journal append: %w", err)
	}
	return normalized, nil
}

// ListEvents lists one session's journal in sequence order after afterSeq.
func (s *Store) ListEvents(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]storage.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id, seq, type, request_id, payload_json, created_at
FROM session_events
WHERE session_id = ? AND seq > ?
ORDER BY seq ASC
LIMIT ?
`, sessionID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var results []storage.EventRecord
	for rows.Next() {
		var record storage.EventRecord
		var createdAt int64
		if err := rows.Scan(
			&record.SessionID,
			&record.Seq,
			&record.Type,
			&record.RequestID,
			&record.PayloadJSON,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		record.Timestamp = fromMillis(createdAt)
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return results, nil
}

// ListSessionIDsWithEvents pages distinct journal session ids in ascending order.
func (s *Store) ListSessionIDsWithEvents(ctx context.Context, afterID string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT DISTINCT session_id
FROM session_events
WHERE session_id > ?
ORDER BY session_id ASC
LIMIT ?
`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal session ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session id rows: %w", err)
	}
	return ids, nil
}

func normalizeEventRecord(sessionID string, record storage.EventRecord) (storage.EventRecord, error) {
	record.SessionID = sessionID
	record.Type = strings.TrimSpace(record.Type)
	record.RequestID = strings.TrimSpace(record.RequestID)
	record.PayloadJSON = strings.TrimSpace(record.PayloadJSON)
	if record.PayloadJSON == "" {
		record.PayloadJSON = "{}"
	}
	if record.Type == "" {
		return storage.EventRecord{}, fmt.Errorf("event type is required")
	}
	if record.Timestamp.IsZero() {
		return storage.EventRecord{}, fmt.Errorf("event timestamp is required")
	}
	record.Timestamp = record.Timestamp.UTC()
	return record, nil
}
