package mocks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ersonp/clanid/internal/domain/entities"
)

func copyRecord(r *entities.DependentRecord) entities.DependentRecord {
	c := *r
	if r.MemberID != nil {
		id := *r.MemberID
		c.MemberID = &id
	}
	if r.LinkedAt != nil {
		t := *r.LinkedAt
		c.LinkedAt = &t
	}
	return c
}

// UpsertRecords inserts records keyed by (kind, external_id).
func (s *Store) UpsertRecords(_ context.Context, records []entities.DependentRecord) (int, int, error) {
	if s.Err != nil {
		return 0, 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted, updated int
	for i := range records {
		rec := &records[i]
		if !rec.Kind.IsValid() {
			return 0, 0, fmt.Errorf("unknown record kind %q", rec.Kind)
		}
		if rec.ExternalID == "" {
			return 0, 0, errors.New("external_id is required")
		}
		if rec.Source == "" {
			rec.Source = rec.Kind.DefaultSource()
		}
		if rec.ObservedAt.IsZero() {
			rec.ObservedAt = time.Now()
		}

		var existing *entities.DependentRecord
		for _, r := range s.Records {
			if r.Kind == rec.Kind && r.ExternalID == rec.ExternalID {
				existing = r
				break
			}
		}

		if existing != nil {
			existing.RawName = rec.RawName
			existing.Source = rec.Source
			existing.ObservedAt = rec.ObservedAt
			*rec = copyRecord(existing)
			updated++
			continue
		}

		s.nextRecord++
		rec.ID = s.nextRecord
		rec.MemberID = nil
		rec.LinkedAt = nil
		stored := copyRecord(rec)
		s.Records[rec.ID] = &stored
		inserted++
	}
	return inserted, updated, nil
}

// PutRecord stores a record as-is, for test setup of legacy rows.
func (s *Store) PutRecord(rec entities.DependentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := copyRecord(&rec)
	s.Records[rec.ID] = &stored
	if rec.ID > s.nextRecord {
		s.nextRecord = rec.ID
	}
}

// FindRecordByID finds a record by ID.
func (s *Store) FindRecordByID(_ context.Context, id int64) (*entities.DependentRecord, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.Records[id]
	if !ok {
		return nil, nil
	}
	c := copyRecord(r)
	return &c, nil
}

func (s *Store) sortedRecords(filter func(*entities.DependentRecord) bool, limit int) []entities.DependentRecord {
	var result []entities.DependentRecord
	for _, r := range s.Records {
		if filter(r) {
			result = append(result, copyRecord(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *Store) isOrphan(r *entities.DependentRecord) bool {
	if r.MemberID == nil {
		return false
	}
	_, ok := s.Members[*r.MemberID]
	return !ok
}

// ListRecordsNeedingLink lists unlinked or orphaned records after afterID.
func (s *Store) ListRecordsNeedingLink(_ context.Context, source entities.Source, afterID int64, limit int) ([]entities.DependentRecord, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedRecords(func(r *entities.DependentRecord) bool {
		if r.ID <= afterID || (source != "" && r.Source != source) {
			return false
		}
		return r.MemberID == nil || s.isOrphan(r)
	}, limit), nil
}

// ListRecordsByMember lists records linked to a member.
func (s *Store) ListRecordsByMember(_ context.Context, memberID int64, limit int) ([]entities.DependentRecord, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedRecords(func(r *entities.DependentRecord) bool {
		return r.MemberID != nil && *r.MemberID == memberID
	}, limit), nil
}

// SetRecordMember writes or clears a record's member reference.
func (s *Store) SetRecordMember(_ context.Context, recordID int64, memberID *int64, linkedAt time.Time) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.RecordErrs[recordID]; err != nil {
		return err
	}
	r, ok := s.Records[recordID]
	if !ok {
		return fmt.Errorf("record not found: %d", recordID)
	}
	if memberID == nil {
		r.MemberID = nil
		r.LinkedAt = nil
		return nil
	}
	if _, ok := s.Members[*memberID]; !ok {
		return &entities.MemberNotFoundError{ID: *memberID}
	}
	id := *memberID
	r.MemberID = &id
	r.LinkedAt = &linkedAt
	return nil
}

// FindOrphanedRecords lists records referencing a member that no longer exists.
func (s *Store) FindOrphanedRecords(_ context.Context, limit int) ([]entities.DependentRecord, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedRecords(s.isOrphan, limit), nil
}

// CountRecords returns the number of records and how many reference an existing member.
func (s *Store) CountRecords(_ context.Context) (int, int, error) {
	if s.Err != nil {
		return 0, 0, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	linked := 0
	for _, r := range s.Records {
		if r.MemberID != nil && !s.isOrphan(r) {
			linked++
		}
	}
	return len(s.Records), linked, nil
}

// UpsertUnresolved records that recordID carries an unresolved name.
func (s *Store) UpsertUnresolved(_ context.Context, name entities.UnresolvedName, recordID int64) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := aliasKey{name.NormalizedKey, name.Source}
	seen := name.LastSeenAt
	if seen.IsZero() {
		seen = time.Now()
	}
	if u, ok := s.Unresolved[k]; ok {
		u.RawName = name.RawName
		u.Candidates = name.Candidates
		if seen.After(u.LastSeenAt) {
			u.LastSeenAt = seen
		}
	} else {
		stored := name
		stored.FirstSeenAt = seen
		stored.LastSeenAt = seen
		s.Unresolved[k] = &stored
	}
	if recordID != 0 {
		if prev, ok := s.Occurrences[recordID]; ok && prev != k {
			s.detach(recordID)
		}
		s.Occurrences[recordID] = k
	}
	return nil
}

// DetachUnresolved removes recordID's occurrence and prunes its name when
// no other record carries it.
func (s *Store) DetachUnresolved(_ context.Context, recordID int64) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detach(recordID)
	return nil
}

func (s *Store) detach(recordID int64) {
	k, ok := s.Occurrences[recordID]
	if !ok {
		return
	}
	delete(s.Occurrences, recordID)
	for _, other := range s.Occurrences {
		if other == k {
			return
		}
	}
	delete(s.Unresolved, k)
}

// ClearUnresolved removes the unresolved row for (key, source).
func (s *Store) ClearUnresolved(_ context.Context, key string, source entities.Source) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := aliasKey{key, source}
	delete(s.Unresolved, k)
	for id, occ := range s.Occurrences {
		if occ == k {
			delete(s.Occurrences, id)
		}
	}
	return nil
}

// ListUnresolved lists unresolved names, most frequent first.
func (s *Store) ListUnresolved(_ context.Context, limit int) ([]entities.UnresolvedName, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[aliasKey]int)
	for _, k := range s.Occurrences {
		counts[k]++
	}

	result := make([]entities.UnresolvedName, 0, len(s.Unresolved))
	for k, u := range s.Unresolved {
		c := *u
		c.Occurrences = counts[k]
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Occurrences != result[j].Occurrences {
			return result[i].Occurrences > result[j].Occurrences
		}
		if result[i].NormalizedKey != result[j].NormalizedKey {
			return result[i].NormalizedKey < result[j].NormalizedKey
		}
		return result[i].Source < result[j].Source
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
