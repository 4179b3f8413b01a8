package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/sessionhub/internal/services/session/storage"
)

// PutSession upserts one projection row. The by-user index is updated in the
// same transaction: logged-in rows gain an index entry, logged-out rows lose
// theirs, so index lookups never see a stale login.
func (s *Store) PutSession(ctx context.Context, record storage.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeSessionRecord(record)
	if err != nil {
		return err
	}

	rolesJSON, err := json.Marshal(normalized.Roles)
	if err != nil {
		return fmt.Errorf("encode session roles: %w", err)
	}
	var expireAt sql.NullInt64
	if normalized.Expire != nil {
		expireAt = sql.NullInt64{Int64: toMillis(*normalized.Expire), Valid: true}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback session write: %v", cause, rollbackErr)
		}
		return cause
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (
	id, user_id, roles_json, expire_at, language, timezone, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	user_id = excluded.user_id,
	roles_json = excluded.roles_json,
	expire_at = excluded.expire_at,
	language = excluded.language,
	timezone = excluded.timezone,
	updated_at = excluded.updated_at
`,
		normalized.ID,
		normalized.UserID,
		string(rolesJSON),
		expireAt,
		normalized.Language,
		normalized.Timezone,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	); err != nil {
		return rollbackWith(fmt.Errorf("put session: %w", err))
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sessions_by_user WHERE session_id = ? AND user_id != ?",
		normalized.ID, normalized.UserID,
	); err != nil {
		return rollbackWith(fmt.Errorf("clear session user index: %w", err))
	}
	if normalized.UserID != "" {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions_by_user (user_id, session_id) VALUES (?, ?)
ON CONFLICT(user_id, session_id) DO NOTHING
`, normalized.UserID, normalized.ID); err != nil {
			return rollbackWith(fmt.Errorf("put session user index: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session write: %w", err)
	}
	return nil
}

// GetSession loads one projection row by session id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionRecord{}, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.SessionRecord{}, fmt.Errorf("session id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_id, roles_json, expire_at, language, timezone, created_at, updated_at
FROM sessions
WHERE id = ?
`, sessionID)

	var record storage.SessionRecord
	var rolesJSON string
	var expireAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&rolesJSON,
		&expireAt,
		&record.Language,
		&record.Timezone,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionRecord{}, storage.ErrNotFound
		}
		return storage.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	if err := json.Unmarshal([]byte(rolesJSON), &record.Roles); err != nil {
		return storage.SessionRecord{}, fmt.Errorf("decode session roles: %w", err)
	}
	if expireAt.Valid {
		value := fromMillis(expireAt.Int64)
		record.Expire = &value
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListSessionIDsByUser lists session ids currently logged in as one user.
func (s *Store) ListSessionIDsByUser(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id
FROM sessions_by_user
WHERE user_id = ?
ORDER BY session_id ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by user: %w", err)
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

func normalizeSessionRecord(record storage.SessionRecord) (storage.SessionRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.UserID = strings.TrimSpace(record.UserID)
	record.Language = strings.TrimSpace(record.Language)
	record.Timezone = strings.TrimSpace(record.Timezone)
	if record.ID == "" {
		return storage.SessionRecord{}, fmt.Errorf("session id is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.SessionRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.SessionRecord{}, fmt.Errorf("updated_at is required")
	}
	if record.Roles == nil {
		record.Roles = []string{}
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	if record.Expire != nil {
		expire := record.Expire.UTC()
		record.Expire = &expire
	}
	return record, nil
}
