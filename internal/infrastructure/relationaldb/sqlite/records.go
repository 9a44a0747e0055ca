package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ersonp/clanid/internal/domain/entities"
)

const recordColumns = `r.id, r.kind, r.external_id, r.raw_name, r.source, r.member_id, r.observed_at, r.linked_at`

func scanRecord(s scanner) (entities.DependentRecord, error) {
	var rec entities.DependentRecord
	var kind, source string
	var memberID sql.NullInt64
	var linkedAt sql.NullTime
	if err := s.Scan(
		&rec.ID,
		&kind,
		&rec.ExternalID,
		&rec.RawName,
		&source,
		&memberID,
		&rec.ObservedAt,
		&linkedAt,
	); err != nil {
		return rec, err
	}
	rec.Kind = entities.RecordKind(kind)
	rec.Source = entities.Source(source)
	if memberID.Valid {
		id := memberID.Int64
		rec.MemberID = &id
	}
	if linkedAt.Valid {
		t := linkedAt.Time
		rec.LinkedAt = &t
	}
	return rec, nil
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]entities.DependentRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var result []entities.DependentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// UpsertRecords inserts records keyed by (kind, external_id) in one
// transaction. Existing records keep their member reference.
func (r *Repository) UpsertRecords(ctx context.Context, records []entities.DependentRecord) (int, int, error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	for i := range records {
		if err := prepareRecord(&records[i]); err != nil {
			return 0, 0, fmt.Errorf("record %d: %w", i, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted, updated int
	for i := range records {
		rec := &records[i]

		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM dependent_records WHERE kind = ? AND external_id = ?`,
			string(rec.Kind), rec.ExternalID,
		).Scan(&id)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx, `
				INSERT INTO dependent_records (kind, external_id, raw_name, source, member_id, observed_at, linked_at)
				VALUES (?, ?, ?, ?, NULL, ?, NULL)
			`, string(rec.Kind), rec.ExternalID, rec.RawName, string(rec.Source), rec.ObservedAt)
			if err != nil {
				return 0, 0, fmt.Errorf("inserting record %s/%s: %w", rec.Kind, rec.ExternalID, err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return 0, 0, fmt.Errorf("reading record id: %w", err)
			}
			rec.MemberID = nil
			rec.LinkedAt = nil
			inserted++

		case err != nil:
			return 0, 0, fmt.Errorf("looking up record %s/%s: %w", rec.Kind, rec.ExternalID, err)

		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE dependent_records SET raw_name = ?, source = ?, observed_at = ? WHERE id = ?`,
				rec.RawName, string(rec.Source), rec.ObservedAt, id,
			); err != nil {
				return 0, 0, fmt.Errorf("updating record %s/%s: %w", rec.Kind, rec.ExternalID, err)
			}
			stored, err := scanRecord(tx.QueryRowContext(ctx,
				`SELECT `+recordColumns+` FROM dependent_records r WHERE r.id = ?`, id,
			))
			if err != nil {
				return 0, 0, fmt.Errorf("reading record %s/%s: %w", rec.Kind, rec.ExternalID, err)
			}
			rec.MemberID = stored.MemberID
			rec.LinkedAt = stored.LinkedAt
			updated++
		}
		rec.ID = id
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing records: %w", err)
	}
	return inserted, updated, nil
}

func prepareRecord(rec *entities.DependentRecord) error {
	if !rec.Kind.IsValid() {
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
	if rec.ExternalID == "" {
		return errors.New("external_id is required")
	}
	if rec.Source == "" {
		rec.Source = rec.Kind.DefaultSource()
	}
	if !rec.Source.IsValid() {
		return fmt.Errorf("unknown source %q", rec.Source)
	}
	if rec.ObservedAt.IsZero() {
		rec.ObservedAt = timeNow()
	}
	rec.ObservedAt = rec.ObservedAt.UTC()
	return nil
}

// FindRecordByID finds a record by ID.
func (r *Repository) FindRecordByID(ctx context.Context, id int64) (*entities.DependentRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM dependent_records r WHERE r.id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	return &rec, nil
}

// ListRecordsNeedingLink lists unlinked or orphaned records after afterID.
func (r *Repository) ListRecordsNeedingLink(ctx context.Context, source entities.Source, afterID int64, limit int) ([]entities.DependentRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM dependent_records r
		LEFT JOIN members m ON m.id = r.member_id
		WHERE (r.member_id IS NULL OR m.id IS NULL)
			AND r.id > ?
			AND (? = '' OR r.source = ?)
		ORDER BY r.id ASC
		LIMIT ?
	`
	return r.queryRecords(ctx, query, afterID, string(source), string(source), limitArg(limit))
}

// ListRecordsByMember lists records linked to a member.
func (r *Repository) ListRecordsByMember(ctx context.Context, memberID int64, limit int) ([]entities.DependentRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM dependent_records r
		WHERE r.member_id = ?
		ORDER BY r.id ASC
		LIMIT ?
	`
	return r.queryRecords(ctx, query, memberID, limitArg(limit))
}

// SetRecordMember writes a record's member reference. A non-nil memberID is
// written only if that member exists at write time.
func (r *Repository) SetRecordMember(ctx context.Context, recordID int64, memberID *int64, linkedAt time.Time) error {
	var linked sql.NullTime
	if memberID != nil {
		linked = sql.NullTime{Time: linkedAt.UTC(), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE dependent_records SET member_id = ?, linked_at = ?
		WHERE id = ? AND (? IS NULL OR EXISTS (SELECT 1 FROM members WHERE id = ?))
	`, nullInt64(memberID), linked, recordID, nullInt64(memberID), nullInt64(memberID))
	if err != nil {
		return fmt.Errorf("setting record member: %w", err)
	}
	if rowsAffected(res) > 0 {
		return nil
	}

	rec, err := r.FindRecordByID(ctx, recordID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record not found: %d", recordID)
	}
	return &entities.MemberNotFoundError{ID: *memberID}
}

// FindOrphanedRecords lists records referencing a member that no longer exists.
func (r *Repository) FindOrphanedRecords(ctx context.Context, limit int) ([]entities.DependentRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM dependent_records r
		LEFT JOIN members m ON m.id = r.member_id
		WHERE r.member_id IS NOT NULL AND m.id IS NULL
		ORDER BY r.id ASC
		LIMIT ?
	`
	return r.queryRecords(ctx, query, limitArg(limit))
}

// CountRecords returns the number of records and how many reference an existing member.
func (r *Repository) CountRecords(ctx context.Context) (int, int, error) {
	query := `
		SELECT COUNT(r.id), COUNT(m.id)
		FROM dependent_records r
		LEFT JOIN members m ON m.id = r.member_id
	`
	var total, linked int
	if err := r.db.QueryRowContext(ctx, query).Scan(&total, &linked); err != nil {
		return 0, 0, fmt.Errorf("counting records: %w", err)
	}
	return total, linked, nil
}

// UpsertUnresolved records that recordID carries an unresolved name.
func (r *Repository) UpsertUnresolved(ctx context.Context, name entities.UnresolvedName, recordID int64) error {
	var candidates sql.NullString
	if len(name.Candidates) > 0 {
		data, err := json.Marshal(name.Candidates)
		if err != nil {
			return fmt.Errorf("marshaling candidates: %w", err)
		}
		candidates = sql.NullString{String: string(data), Valid: true}
	}

	seen := name.LastSeenAt
	if seen.IsZero() {
		seen = timeNow()
	}
	seen = seen.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO unresolved_names (normalized_key, source, raw_name, candidates, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_key, source) DO UPDATE SET
			raw_name = excluded.raw_name,
			candidates = excluded.candidates,
			last_seen_at = CASE WHEN excluded.last_seen_at > unresolved_names.last_seen_at
				THEN excluded.last_seen_at ELSE unresolved_names.last_seen_at END
	`, name.NormalizedKey, string(name.Source), name.RawName, candidates, seen, seen); err != nil {
		return fmt.Errorf("upserting unresolved name: %w", err)
	}

	if recordID != 0 {
		if err := detachOccurrence(ctx, tx, recordID, name.NormalizedKey, name.Source); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO unresolved_occurrences (record_id, normalized_key, source)
			VALUES (?, ?, ?)
			ON CONFLICT(record_id) DO UPDATE SET
				normalized_key = excluded.normalized_key,
				source = excluded.source
		`, recordID, name.NormalizedKey, string(name.Source)); err != nil {
			return fmt.Errorf("recording unresolved occurrence: %w", err)
		}
	}

	return tx.Commit()
}

// DetachUnresolved removes the occurrence recordID carries and drops the
// unresolved name it pointed at once no other record carries it.
func (r *Repository) DetachUnresolved(ctx context.Context, recordID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := detachOccurrence(ctx, tx, recordID, "", ""); err != nil {
		return err
	}
	return tx.Commit()
}

// detachOccurrence deletes recordID's occurrence unless it already points at
// (keepKey, keepSource), then prunes the previous name if it has no
// occurrences left.
func detachOccurrence(ctx context.Context, tx *sql.Tx, recordID int64, keepKey string, keepSource entities.Source) error {
	var key, source string
	err := tx.QueryRowContext(ctx,
		`SELECT normalized_key, source FROM unresolved_occurrences WHERE record_id = ?`,
		recordID,
	).Scan(&key, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finding unresolved occurrence: %w", err)
	}
	if key == keepKey && source == string(keepSource) {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM unresolved_occurrences WHERE record_id = ?`, recordID,
	); err != nil {
		return fmt.Errorf("deleting unresolved occurrence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM unresolved_names
		WHERE normalized_key = ? AND source = ?
			AND NOT EXISTS (SELECT 1 FROM unresolved_occurrences o
				WHERE o.normalized_key = ? AND o.source = ?)
	`, key, source, key, source); err != nil {
		return fmt.Errorf("pruning unresolved name: %w", err)
	}
	return nil
}

// ClearUnresolved removes the unresolved row for (key, source).
func (r *Repository) ClearUnresolved(ctx context.Context, key string, source entities.Source) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM unresolved_occurrences WHERE normalized_key = ? AND source = ?`,
		key, string(source),
	); err != nil {
		return fmt.Errorf("clearing unresolved occurrences: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM unresolved_names WHERE normalized_key = ? AND source = ?`,
		key, string(source),
	); err != nil {
		return fmt.Errorf("clearing unresolved name: %w", err)
	}
	return tx.Commit()
}

// ListUnresolved lists unresolved names, most frequent first.
func (r *Repository) ListUnresolved(ctx context.Context, limit int) ([]entities.UnresolvedName, error) {
	query := `
		SELECT u.normalized_key, u.source, u.raw_name, u.candidates, u.first_seen_at, u.last_seen_at,
			(SELECT COUNT(*) FROM unresolved_occurrences o
				WHERE o.normalized_key = u.normalized_key AND o.source = u.source) AS occurrences
		FROM unresolved_names u
		ORDER BY occurrences DESC, u.normalized_key ASC, u.source ASC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("querying unresolved names: %w", err)
	}
	defer rows.Close()

	var result []entities.UnresolvedName
	for rows.Next() {
		var u entities.UnresolvedName
		var source string
		var candidates sql.NullString
		if err := rows.Scan(
			&u.NormalizedKey,
			&source,
			&u.RawName,
			&candidates,
			&u.FirstSeenAt,
			&u.LastSeenAt,
			&u.Occurrences,
		); err != nil {
			return nil, fmt.Errorf("scanning unresolved name: %w", err)
		}
		u.Source = entities.Source(source)
		if candidates.Valid && candidates.String != "" {
			if err := json.Unmarshal([]byte(candidates.String), &u.Candidates); err != nil {
				return nil, fmt.Errorf("unmarshaling candidates: %w", err)
			}
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
