package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ersonp/clanid/internal/domain/entities"
)

const memberColumns = `m.id, m.display_name, m.display_key, m.status, m.last_seen_at, m.created_at`

const aliasColumns = `a.id, a.member_id, a.raw_name, a.normalized_key, a.source, a.preferred, a.first_seen_at, a.last_seen_at`

func scanMember(s scanner) (*entities.Member, error) {
	var m entities.Member
	var status string
	if err := s.Scan(
		&m.ID,
		&m.DisplayName,
		&m.DisplayKey,
		&status,
		&m.LastSeenAt,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Status = entities.MemberStatus(status)
	return &m, nil
}

func scanAlias(s scanner) (entities.Alias, error) {
	var a entities.Alias
	var source string
	if err := s.Scan(
		&a.ID,
		&a.MemberID,
		&a.RawName,
		&a.NormalizedKey,
		&source,
		&a.Preferred,
		&a.FirstSeenAt,
		&a.LastSeenAt,
	); err != nil {
		return a, err
	}
	a.Source = entities.Source(source)
	return a, nil
}

// queryMember runs a single-row member query. Returns nil if absent.
func queryMember(ctx context.Context, q querier, query string, args ...any) (*entities.Member, error) {
	m, err := scanMember(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning member: %w", err)
	}
	return m, nil
}

func queryMembers(ctx context.Context, q querier, query string, args ...any) ([]*entities.Member, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()

	var result []*entities.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func queryAliases(ctx context.Context, q querier, query string, args ...any) ([]entities.Alias, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying aliases: %w", err)
	}
	defer rows.Close()

	var result []entities.Alias
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func findMemberByID(ctx context.Context, q querier, id int64) (*entities.Member, error) {
	return queryMember(ctx, q, `SELECT `+memberColumns+` FROM members m WHERE m.id = ?`, id)
}

func findByKey(ctx context.Context, q querier, key string, source entities.Source) (*entities.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM aliases a
		JOIN members m ON m.id = a.member_id
		WHERE a.normalized_key = ? AND a.source = ?
	`
	return queryMember(ctx, q, query, key, string(source))
}

func findByKeyAnySource(ctx context.Context, q querier, key string) (*entities.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM aliases a
		JOIN members m ON m.id = a.member_id
		WHERE a.normalized_key = ?
		ORDER BY a.id ASC
		LIMIT 1
	`
	return queryMember(ctx, q, query, key)
}

func findActiveByDisplayFold(ctx context.Context, q querier, fold string) (*entities.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members m WHERE m.display_fold = ? AND m.status = 'active'`
	return queryMember(ctx, q, query, fold)
}

// GetOrCreate returns the member owning rawName for source, creating one when
// no alias, cross-source alias, or active display name matches.
func (r *Repository) GetOrCreate(ctx context.Context, rawName string, source entities.Source) (*entities.Member, bool, error) {
	key := entities.NormalizeName(rawName)
	if key == "" {
		return nil, false, fmt.Errorf("%w: %q normalizes to an empty key", entities.ErrInvalidName, rawName)
	}
	if !source.IsValid() {
		return nil, false, fmt.Errorf("unknown source %q", source)
	}

	type result struct {
		member  *entities.Member
		created bool
	}

	res, err := withRetry(ctx, r, "get_or_create", func() (result, error) {
		m, created, err := r.getOrCreate(ctx, rawName, key, source)
		return result{member: m, created: created}, err
	})
	if err != nil {
		return nil, false, fmt.Errorf("getting or creating member for %q: %w", rawName, err)
	}
	return res.member, res.created, nil
}

func (r *Repository) getOrCreate(ctx context.Context, rawName, key string, source entities.Source) (*entities.Member, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m, err := findByKey(ctx, tx, key, source)
	if err != nil {
		return nil, false, err
	}
	if m != nil {
		return m, false, tx.Commit()
	}

	now := timeNow()

	m, err = findByKeyAnySource(ctx, tx, key)
	if err != nil {
		return nil, false, err
	}
	if m == nil {
		m, err = findActiveByDisplayFold(ctx, tx, entities.FoldName(rawName))
		if err != nil {
			return nil, false, err
		}
	}
	if m != nil {
		if err := insertAlias(ctx, tx, m.ID, rawName, key, source, now); err != nil {
			return nil, false, err
		}
		return m, false, tx.Commit()
	}

	display := entities.CleanDisplayName(rawName)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO members (display_name, display_key, display_fold, status, last_seen_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, display, key, entities.FoldName(display), string(entities.StatusActive), now, now)
	if err != nil {
		return nil, false, fmt.Errorf("inserting member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("reading member id: %w", err)
	}

	if err := insertAlias(ctx, tx, id, rawName, key, source, now); err != nil {
		return nil, false, err
	}

	details := map[string]any{"raw_name": rawName, "source": string(source)}
	if err := logAction(ctx, tx, entities.ActionMemberCreated, id, details); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing member: %w", err)
	}

	return &entities.Member{
		ID:          id,
		DisplayName: display,
		DisplayKey:  key,
		Status:      entities.StatusActive,
		LastSeenAt:  now,
		CreatedAt:   now,
	}, true, nil
}

// insertAlias adds a (key, source) alias as the member's preferred spelling
// for that source.
func insertAlias(ctx context.Context, tx *sql.Tx, memberID int64, rawName, key string, source entities.Source, seenAt time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE aliases SET preferred = 0 WHERE member_id = ? AND source = ? AND preferred = 1`,
		memberID, string(source),
	); err != nil {
		return fmt.Errorf("clearing preferred alias: %w", err)
	}

	query := `
		INSERT INTO aliases (member_id, raw_name, normalized_key, source, preferred, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, memberID, rawName, key, string(source), seenAt, seenAt); err != nil {
		return fmt.Errorf("inserting alias: %w", err)
	}
	return nil
}

// FindByKey finds the member owning the exact (key, source) alias.
func (r *Repository) FindByKey(ctx context.Context, key string, source entities.Source) (*entities.Member, error) {
	return findByKey(ctx, r.db, key, source)
}

// FindByKeyAnySource finds the member owning key under any source, preferring
// the oldest alias.
func (r *Repository) FindByKeyAnySource(ctx context.Context, key string) (*entities.Member, error) {
	return findByKeyAnySource(ctx, r.db, key)
}

// ListAliases lists the aliases of a member.
func (r *Repository) ListAliases(ctx context.Context, memberID int64) ([]entities.Alias, error) {
	query := `
		SELECT ` + aliasColumns + `
		FROM aliases a
		WHERE a.member_id = ?
		ORDER BY a.source ASC, a.id ASC
	`
	return queryAliases(ctx, r.db, query, memberID)
}

// ListAllAliases lists every alias.
func (r *Repository) ListAllAliases(ctx context.Context) ([]entities.Alias, error) {
	return queryAliases(ctx, r.db, `SELECT `+aliasColumns+` FROM aliases a ORDER BY a.member_id ASC, a.id ASC`)
}

// AddAlias records an observation of rawName for a member.
func (r *Repository) AddAlias(ctx context.Context, memberID int64, rawName string, source entities.Source, seenAt time.Time) (entities.AliasOutcome, error) {
	key := entities.NormalizeName(rawName)
	if key == "" {
		return "", fmt.Errorf("%w: %q normalizes to an empty key", entities.ErrInvalidName, rawName)
	}
	if !source.IsValid() {
		return "", fmt.Errorf("unknown source %q", source)
	}
	if seenAt.IsZero() {
		seenAt = timeNow()
	}
	seenAt = seenAt.UTC()

	return withRetry(ctx, r, "add_alias", func() (entities.AliasOutcome, error) {
		return r.addAlias(ctx, memberID, rawName, key, source, seenAt)
	})
}

func (r *Repository) addAlias(ctx context.Context, memberID int64, rawName, key string, source entities.Source, seenAt time.Time) (entities.AliasOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	member, err := findMemberByID(ctx, tx, memberID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", &entities.MemberNotFoundError{ID: memberID}
	}

	var ownerID int64
	err = tx.QueryRowContext(ctx,
		`SELECT member_id FROM aliases WHERE normalized_key = ? AND source = ?`,
		key, string(source),
	).Scan(&ownerID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := insertAlias(ctx, tx, memberID, rawName, key, source, seenAt); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing alias: %w", err)
		}
		return entities.AliasCreated, nil

	case err != nil:
		return "", fmt.Errorf("looking up alias owner: %w", err)

	case ownerID == memberID:
		if _, err := tx.ExecContext(ctx,
			`UPDATE aliases SET last_seen_at = ? WHERE normalized_key = ? AND source = ? AND last_seen_at < ?`,
			seenAt, key, string(source), seenAt,
		); err != nil {
			return "", fmt.Errorf("refreshing alias: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing alias: %w", err)
		}
		return entities.AliasRefreshed, nil
	}

	conflict := &entities.ConflictingAliasError{
		Key:         key,
		Source:      source,
		OwnerID:     ownerID,
		RequestedID: memberID,
	}
	details := map[string]any{
		"raw_name":     rawName,
		"key":          key,
		"source":       string(source),
		"owner_id":     ownerID,
		"requested_id": memberID,
	}
	if err := logAction(ctx, tx, entities.ActionAliasConflict, memberID, details); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing alias conflict: %w", err)
	}
	return "", conflict
}

// FindMemberByID finds a member by its ID.
func (r *Repository) FindMemberByID(ctx context.Context, id int64) (*entities.Member, error) {
	return findMemberByID(ctx, r.db, id)
}

// FindMemberByDisplayName finds a member by display name (case-insensitive).
func (r *Repository) FindMemberByDisplayName(ctx context.Context, name string) (*entities.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members m
		WHERE m.display_fold = ?
		ORDER BY CASE m.status WHEN 'active' THEN 0 ELSE 1 END, m.id ASC
		LIMIT 1
	`
	return queryMember(ctx, r.db, query, entities.FoldName(name))
}

// ListMembers lists members ordered by ID.
func (r *Repository) ListMembers(ctx context.Context, status entities.MemberStatus, limit, offset int) ([]*entities.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members m
		WHERE (? = '' OR m.status = ?)
		ORDER BY m.id ASC
		LIMIT ? OFFSET ?
	`
	return queryMembers(ctx, r.db, query, string(status), string(status), limitArg(limit), offset)
}

// CountMembers returns the number of members.
func (r *Repository) CountMembers(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return count, nil
}

// CountAliases returns the number of aliases.
func (r *Repository) CountAliases(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM aliases`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting aliases: %w", err)
	}
	return count, nil
}

// SetMemberStatus changes a member's lifecycle status.
func (r *Repository) SetMemberStatus(ctx context.Context, id int64, status entities.MemberStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid member status %q", status)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	member, err := findMemberByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if member == nil {
		return &entities.MemberNotFoundError{ID: id}
	}
	if member.Status == status {
		return nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE members SET status = ? WHERE id = ?`, string(status), id)
	if isUniqueViolation(err) {
		return fmt.Errorf("reactivating %q: %w", member.DisplayName, entities.ErrDisplayNameTaken)
	}
	if err != nil {
		return fmt.Errorf("updating member status: %w", err)
	}

	details := map[string]any{"from": string(member.Status), "to": string(status)}
	if err := logAction(ctx, tx, entities.ActionStatusChanged, id, details); err != nil {
		return err
	}
	return tx.Commit()
}

// TouchMember advances a member's last-seen timestamp.
func (r *Repository) TouchMember(ctx context.Context, id int64, seenAt time.Time) error {
	seenAt = seenAt.UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET last_seen_at = ? WHERE id = ? AND last_seen_at < ?`,
		seenAt, id, seenAt,
	)
	if err != nil {
		return fmt.Errorf("touching member: %w", err)
	}
	return nil
}
