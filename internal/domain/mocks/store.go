package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/clanid/internal/domain/entities"
)

type aliasKey struct {
	key    string
	source entities.Source
}

// Store is an in-memory implementation of ports.Store with the same
// uniqueness and merge semantics as the SQLite adapter.
type Store struct {
	mu sync.Mutex

	Members     map[int64]*entities.Member
	Aliases     map[aliasKey]*entities.Alias
	Records     map[int64]*entities.DependentRecord
	Unresolved  map[aliasKey]*entities.UnresolvedName
	Occurrences map[int64]aliasKey
	MergeLog    []entities.MergeReport
	Audit       []entities.AuditEntry

	// Err, when set, is returned by every method.
	Err error
	// RecordErrs fails SetRecordMember for specific record IDs.
	RecordErrs map[int64]error
	// AliasListings counts ListAllAliases calls.
	AliasListings int

	nextMember int64
	nextAlias  int64
	nextRecord int64
	nextAudit  int64
}

// NewStore creates a new mock Store.
func NewStore() *Store {
	return &Store{
		Members:     make(map[int64]*entities.Member),
		Aliases:     make(map[aliasKey]*entities.Alias),
		Records:     make(map[int64]*entities.DependentRecord),
		Unresolved:  make(map[aliasKey]*entities.UnresolvedName),
		Occurrences: make(map[int64]aliasKey),
		RecordErrs:  make(map[int64]error),
	}
}

// EnsureSchema is a no-op.
func (s *Store) EnsureSchema(_ context.Context) error {
	return s.Err
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// AddMember inserts a member with a fixed ID, for test setup.
func (s *Store) AddMember(id int64, name string, lastSeen time.Time) *entities.Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &entities.Member{
		ID:          id,
		DisplayName: name,
		DisplayKey:  entities.NormalizeName(name),
		Status:      entities.StatusActive,
		LastSeenAt:  lastSeen,
		CreatedAt:   lastSeen,
	}
	s.Members[id] = m
	if id > s.nextMember {
		s.nextMember = id
	}
	return m
}

func copyMember(m *entities.Member) *entities.Member {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func (s *Store) insertAlias(memberID int64, rawName, key string, source entities.Source, seenAt time.Time) {
	for _, a := range s.Aliases {
		if a.MemberID == memberID && a.Source == source {
			a.Preferred = false
		}
	}
	s.nextAlias++
	s.Aliases[aliasKey{key, source}] = &entities.Alias{
		ID:            s.nextAlias,
		MemberID:      memberID,
		RawName:       rawName,
		NormalizedKey: key,
		Source:        source,
		Preferred:     true,
		FirstSeenAt:   seenAt,
		LastSeenAt:    seenAt,
	}
}

func (s *Store) findAnySource(key string) *entities.Member {
	var best *entities.Alias
	for _, a := range s.Aliases {
		if a.NormalizedKey == key && (best == nil || a.ID < best.ID) {
			best = a
		}
	}
	if best == nil {
		return nil
	}
	return s.Members[best.MemberID]
}

func (s *Store) logAction(action string, memberID int64, details map[string]any) {
	s.nextAudit++
	s.Audit = append(s.Audit, entities.AuditEntry{
		ID:        s.nextAudit,
		Action:    action,
		MemberID:  memberID,
		Details:   details,
		CreatedAt: time.Now(),
	})
}

// GetOrCreate returns the member owning rawName for source, creating one if needed.
func (s *Store) GetOrCreate(_ context.Context, rawName string, source entities.Source) (*entities.Member, bool, error) {
	if s.Err != nil {
		return nil, false, s.Err
	}
	key := entities.NormalizeName(rawName)
	if key == "" {
		return nil, false, fmt.Errorf("%w: %q", entities.ErrInvalidName, rawName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.Aliases[aliasKey{key, source}]; ok {
		return copyMember(s.Members[a.MemberID]), false, nil
	}

	now := time.Now()
	m := s.findAnySource(key)
	if m == nil {
		fold := entities.FoldName(rawName)
		for _, candidate := range s.Members {
			if candidate.IsActive() && entities.FoldName(candidate.DisplayName) == fold {
				m = candidate
				break
			}
		}
	}
	if m != nil {
		s.insertAlias(m.ID, rawName, key, source, now)
		return copyMember(m), false, nil
	}

	s.nextMember++
	display := entities.CleanDisplayName(rawName)
	m = &entities.Member{
		ID:          s.nextMember,
		DisplayName: display,
		DisplayKey:  key,
		Status:      entities.StatusActive,
		LastSeenAt:  now,
		CreatedAt:   now,
	}
	s.Members[m.ID] = m
	s.insertAlias(m.ID, rawName, key, source, now)
	s.logAction(entities.ActionMemberCreated, m.ID, map[string]any{"raw_name": rawName, "source": string(source)})
	return copyMember(m), true, nil
}

// FindByKey finds the member owning the exact (key, source) alias.
func (s *Store) FindByKey(_ context.Context, key string, source entities.Source) (*entities.Member, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.Aliases[aliasKey{key, source}]
	if !ok {
		return nil, nil
	}
	return copyMember(s.Members[a.MemberID]), nil
}

// FindByKeyAnySource finds the member owning key under any source.
func (s *Store) FindByKeyAnySource(_ context.Context, key string) (*entities.Member, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMember(s.findAnySource(key)), nil
}

func (s *Store) sortedAliases(filter func(*entities.Alias) bool) []entities.Alias {
	var result []entities.Alias
	for _, a := range s.Aliases {
		if filter(a) {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].MemberID != result[j].MemberID {
			return result[i].MemberID < result[j].MemberID
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// ListAliases lists the aliases of a member.
func (s *Store) ListAliases(_ context.Context, memberID int64) ([]entities.Alias, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAliases(func(a *entities.Alias) bool { return a.MemberID == memberID }), nil
}

// ListAllAliases lists every alias.
func (s *Store) ListAllAliases(_ context.Context) ([]entities.Alias, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AliasListings++
	return s.sortedAliases(func(*entities.Alias) bool { return true }), nil
}

// AddAlias records an observation of rawName for a member.
func (s *Store) AddAlias(_ context.Context, memberID int64, rawName string, source entities.Source, seenAt time.Time) (entities.AliasOutcome, error) {
	if s.Err != nil {
		return "", s.Err
	}
	key := entities.NormalizeName(rawName)
	if key == "" {
		return "", fmt.Errorf("%w: %q", entities.ErrInvalidName, rawName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Members[memberID]; !ok {
		return "", &entities.MemberNotFoundError{ID: memberID}
	}

	existing, ok := s.Aliases[aliasKey{key, source}]
	switch {
	case !ok:
		s.insertAlias(memberID, rawName, key, source, seenAt)
		return entities.AliasCreated, nil
	case existing.MemberID == memberID:
		if seenAt.After(existing.LastSeenAt) {
			existing.LastSeenAt = seenAt
		}
		return entities.AliasRefreshed, nil
	}

	s.logAction(entities.ActionAliasConflict, memberID, map[string]any{
		"raw_name": rawName,
		"key":      key,
		"source":   string(source),
		"owner_id": existing.MemberID,
	})
	return "", &entities.ConflictingAliasError{
		Key:         key,
		Source:      source,
		OwnerID:     existing.MemberID,
		RequestedID: memberID,
	}
}

// FindMemberByID finds a member by its ID.
func (s *Store) FindMemberByID(_ context.Context, id int64) (*entities.Member, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMember(s.Members[id]), nil
}

// FindMemberByDisplayName finds a member by display name (case-insensitive).
func (s *Store) FindMemberByDisplayName(_ context.Context, name string) (*entities.Member, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fold := entities.FoldName(name)
	var best *entities.Member
	for _, m := range s.sortedMembers("") {
		if entities.FoldName(m.DisplayName) != fold {
			continue
		}
		if m.IsActive() {
			return copyMember(m), nil
		}
		if best == nil {
			best = m
		}
	}
	return copyMember(best), nil
}

func (s *Store) sortedMembers(status entities.MemberStatus) []*entities.Member {
	result := make([]*entities.Member, 0, len(s.Members))
	for _, m := range s.Members {
		if status == "" || m.Status == status {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ListMembers lists members ordered by ID.
func (s *Store) ListMembers(_ context.Context, status entities.MemberStatus, limit, offset int) ([]*entities.Member, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.sortedMembers(status)
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	result := make([]*entities.Member, len(all))
	for i, m := range all {
		result[i] = copyMember(m)
	}
	return result, nil
}

// CountMembers returns the number of members.
func (s *Store) CountMembers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Members), s.Err
}

// CountAliases returns the number of aliases.
func (s *Store) CountAliases(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Aliases), s.Err
}

// SetMemberStatus changes a member's lifecycle status.
func (s *Store) SetMemberStatus(_ context.Context, id int64, status entities.MemberStatus) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.Members[id]
	if !ok {
		return &entities.MemberNotFoundError{ID: id}
	}
	if m.Status == status {
		return nil
	}
	if status == entities.StatusActive {
		fold := entities.FoldName(m.DisplayName)
		for _, other := range s.Members {
			if other.ID != id && other.IsActive() && entities.FoldName(other.DisplayName) == fold {
				return entities.ErrDisplayNameTaken
			}
		}
	}
	s.logAction(entities.ActionStatusChanged, id, map[string]any{"from": string(m.Status), "to": string(status)})
	m.Status = status
	return nil
}

// TouchMember advances a member's last-seen timestamp.
func (s *Store) TouchMember(_ context.Context, id int64, seenAt time.Time) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.Members[id]; ok && seenAt.After(m.LastSeenAt) {
		m.LastSeenAt = seenAt
	}
	return nil
}

// MergeMembers folds absorbID into keepID.
func (s *Store) MergeMembers(_ context.Context, keepID, absorbID int64) (*entities.MergeReport, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if keepID == absorbID {
		return nil, &entities.MergeIntegrityError{KeepID: keepID, AbsorbID: absorbID, Reason: "cannot merge a member into itself"}
	}
	keep, ok := s.Members[keepID]
	if !ok {
		return nil, &entities.MergeIntegrityError{KeepID: keepID, AbsorbID: absorbID, Reason: fmt.Sprintf("member %d not found", keepID)}
	}
	absorb, ok := s.Members[absorbID]
	if !ok {
		return nil, &entities.MergeIntegrityError{KeepID: keepID, AbsorbID: absorbID, Reason: fmt.Sprintf("member %d not found", absorbID)}
	}

	now := time.Now()
	report := &entities.MergeReport{
		RunID:      uuid.New().String(),
		KeepID:     keepID,
		AbsorbID:   absorbID,
		AbsorbName: absorb.DisplayName,
		MergedAt:   now,
	}

	keepPreferred := make(map[entities.Source]bool)
	for _, a := range s.Aliases {
		if a.MemberID == keepID && a.Preferred {
			keepPreferred[a.Source] = true
		}
	}
	for _, a := range s.Aliases {
		if a.MemberID != absorbID {
			continue
		}
		if keepPreferred[a.Source] {
			a.Preferred = false
		}
		a.MemberID = keepID
		report.AliasesMoved++
	}

	for _, r := range s.Records {
		if r.MemberID != nil && *r.MemberID == absorbID {
			id := keepID
			r.MemberID = &id
			r.LinkedAt = &now
			report.RecordsRelinked++
		}
	}

	if absorb.LastSeenAt.After(keep.LastSeenAt) {
		keep.LastSeenAt = absorb.LastSeenAt
	}
	delete(s.Members, absorbID)

	s.MergeLog = append(s.MergeLog, *report)
	s.logAction(entities.ActionMemberMerged, keepID, map[string]any{"absorb_id": absorbID})
	return report, nil
}

// ListMergeLog lists executed merges, newest first.
func (s *Store) ListMergeLog(_ context.Context, limit int) ([]entities.MergeReport, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []entities.MergeReport
	for i := len(s.MergeLog) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, s.MergeLog[i])
	}
	return result, nil
}

// LogAction logs an action to the audit log.
func (s *Store) LogAction(_ context.Context, action string, memberID int64, details map[string]any) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logAction(action, memberID, details)
	return nil
}

// FindAuditLogByAction finds audit log entries by action type, newest first.
func (s *Store) FindAuditLogByAction(_ context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []entities.AuditEntry
	for i := len(s.Audit) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		if s.Audit[i].Action == action {
			result = append(result, s.Audit[i])
		}
	}
	return result, nil
}
