package sqlite

import (
	"context"
	"fmt"

	"github.com/ersonp/clanid/internal/domain/entities"
)

// MergeMembers folds absorbID into keepID inside one transaction. The absorbed
// member row is deleted only after every alias and record points at keepID.
func (r *Repository) MergeMembers(ctx context.Context, keepID, absorbID int64) (*entities.MergeReport, error) {
	if keepID == absorbID {
		return nil, &entities.MergeIntegrityError{KeepID: keepID, AbsorbID: absorbID, Reason: "cannot merge a member into itself"}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	keep, err := findMemberByID(ctx, tx, keepID)
	if err != nil {
		return nil, err
	}
	if keep == nil {
		return nil, &entities.MergeIntegrityError{KeepID: keepID, AbsorbID: absorbID, Reason: fmt.Sprintf("member %d not found", keepID)}
	}
	absorb, err := findMemberByID(ctx, tx, absorbID)
	if err != nil {
		return nil, err
	}
	if absorb == nil {
		return nil, &entities.MergeIntegrityError{KeepID: keepID, AbsorbID: absorbID, Reason: fmt.Sprintf("member %d not found", absorbID)}
	}

	now := timeNow()
	report := &entities.MergeReport{
		RunID:      generateUUID(),
		KeepID:     keepID,
		AbsorbID:   absorbID,
		AbsorbName: absorb.DisplayName,
		MergedAt:   now,
	}

	// Aliases whose (key, source) keep already owns are dropped, not moved
	res, err := tx.ExecContext(ctx, `
		DELETE FROM aliases
		WHERE member_id = ? AND EXISTS (
			SELECT 1 FROM aliases k
			WHERE k.member_id = ? AND k.normalized_key = aliases.normalized_key AND k.source = aliases.source
		)
	`, absorbID, keepID)
	if err != nil {
		return nil, fmt.Errorf("discarding duplicate aliases: %w", err)
	}
	report.AliasesDiscarded = rowsAffected(res)

	if _, err := tx.ExecContext(ctx, `
		UPDATE aliases SET preferred = 0
		WHERE member_id = ? AND preferred = 1 AND source IN (
			SELECT source FROM aliases WHERE member_id = ? AND preferred = 1
		)
	`, absorbID, keepID); err != nil {
		return nil, fmt.Errorf("demoting preferred aliases: %w", err)
	}

	res, err = tx.ExecContext(ctx, `UPDATE aliases SET member_id = ? WHERE member_id = ?`, keepID, absorbID)
	if err != nil {
		return nil, fmt.Errorf("moving aliases: %w", err)
	}
	report.AliasesMoved = rowsAffected(res)

	res, err = tx.ExecContext(ctx,
		`UPDATE dependent_records SET member_id = ?, linked_at = ? WHERE member_id = ?`,
		keepID, now, absorbID,
	)
	if err != nil {
		return nil, fmt.Errorf("relinking records: %w", err)
	}
	report.RecordsRelinked = rowsAffected(res)

	if absorb.LastSeenAt.After(keep.LastSeenAt) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE members SET last_seen_at = ? WHERE id = ?`,
			absorb.LastSeenAt.UTC(), keepID,
		); err != nil {
			return nil, fmt.Errorf("updating last seen: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, absorbID); err != nil {
		return nil, fmt.Errorf("deleting absorbed member: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO merge_log (run_id, keep_id, absorb_id, absorb_name, aliases_moved, aliases_discarded, records_relinked, merged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		report.KeepID,
		report.AbsorbID,
		report.AbsorbName,
		report.AliasesMoved,
		report.AliasesDiscarded,
		report.RecordsRelinked,
		report.MergedAt,
	); err != nil {
		return nil, fmt.Errorf("writing merge log: %w", err)
	}

	details := map[string]any{
		"run_id":            report.RunID,
		"absorb_id":         absorbID,
		"absorb_name":       absorb.DisplayName,
		"aliases_moved":     report.AliasesMoved,
		"aliases_discarded": report.AliasesDiscarded,
		"records_relinked":  report.RecordsRelinked,
	}
	if err := logAction(ctx, tx, entities.ActionMemberMerged, keepID, details); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing merge: %w", err)
	}

	r.logger.Info().
		Int64("keep_id", keepID).
		Int64("absorb_id", absorbID).
		Int("aliases_moved", report.AliasesMoved).
		Int("records_relinked", report.RecordsRelinked).
		Msg("merged members")

	return report, nil
}

// ListMergeLog lists executed merges, newest first.
func (r *Repository) ListMergeLog(ctx context.Context, limit int) ([]entities.MergeReport, error) {
	query := `
		SELECT run_id, keep_id, absorb_id, absorb_name, aliases_moved, aliases_discarded, records_relinked, merged_at
		FROM merge_log
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("querying merge log: %w", err)
	}
	defer rows.Close()

	var result []entities.MergeReport
	for rows.Next() {
		var m entities.MergeReport
		if err := rows.Scan(
			&m.RunID,
			&m.KeepID,
			&m.AbsorbID,
			&m.AbsorbName,
			&m.AliasesMoved,
			&m.AliasesDiscarded,
			&m.RecordsRelinked,
			&m.MergedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning merge log: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
