package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ersonp/clanid/internal/domain/entities"
)

// LogAction logs an action to the audit log.
func (r *Repository) LogAction(ctx context.Context, action string, memberID int64, details map[string]any) error {
	return logAction(ctx, r.db, action, memberID, details)
}

func logAction(ctx context.Context, q querier, action string, memberID int64, details map[string]any) error {
	var detailsJSON sql.NullString
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(data), Valid: true}
	}

	var memberIDArg sql.NullInt64
	if memberID != 0 {
		memberIDArg = sql.NullInt64{Int64: memberID, Valid: true}
	}

	query := `INSERT INTO audit_log (action, member_id, details, created_at) VALUES (?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query, action, memberIDArg, detailsJSON, timeNow())
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	return nil
}

// FindAuditLogByAction finds audit log entries by action type, newest first.
func (r *Repository) FindAuditLogByAction(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	query := `
		SELECT id, action, member_id, details, created_at
		FROM audit_log
		WHERE action = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, action, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []entities.AuditEntry
	if limit > 0 {
		entries = make([]entities.AuditEntry, 0, limit)
	}

	for rows.Next() {
		var entry entities.AuditEntry
		var memberID sql.NullInt64
		var details sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&memberID,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		entry.MemberID = memberID.Int64

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details: %w", err)
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
