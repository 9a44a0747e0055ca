package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/ports"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

const defaultBatchSize = 500

// LinkOptions controls a link or relink pass.
type LinkOptions struct {
	// CreateIdentities creates a member for an unresolved name when no
	// suggestion reaches the threshold. Names with suggestions stay unresolved.
	CreateIdentities bool
	// BatchSize is the page size of a relink pass.
	BatchSize int
	// Workers > 1 relinks each source in its own goroutine.
	Workers int
	// Source restricts a relink pass to one source. Empty means all.
	Source entities.Source
}

// LinkReport summarizes a link pass.
type LinkReport struct {
	RunID         string                 `json:"run_id"`
	Scanned       int                    `json:"scanned"`
	Linked        int                    `json:"linked"`
	Created       int                    `json:"created"`
	AlreadyLinked int                    `json:"already_linked"`
	Unresolved    int                    `json:"unresolved"`
	Ambiguous     int                    `json:"ambiguous"`
	EmptyName     int                    `json:"empty_name"`
	Repaired      int                    `json:"repaired"` // Orphaned references cleared
	Errors        []entities.RecordError `json:"errors,omitempty"`
	Partial       bool                   `json:"partial"` // Stopped by cancellation or deadline
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
}

func newLinkReport() *LinkReport {
	return &LinkReport{
		RunID:     uuid.New().String(),
		StartedAt: timeNow(),
	}
}

func (r *LinkReport) add(outcome entities.LinkOutcome) {
	r.Scanned++
	if outcome.Linked {
		r.Linked++
		if outcome.Created {
			r.Created++
		}
		return
	}
	switch outcome.Reason {
	case entities.SkipAlreadyLinked:
		r.AlreadyLinked++
	case entities.SkipUnresolved:
		r.Unresolved++
	case entities.SkipAmbiguous:
		r.Ambiguous++
	case entities.SkipEmptyName:
		r.EmptyName++
	}
}

func (r *LinkReport) merge(other *LinkReport) {
	r.Scanned += other.Scanned
	r.Linked += other.Linked
	r.Created += other.Created
	r.AlreadyLinked += other.AlreadyLinked
	r.Unresolved += other.Unresolved
	r.Ambiguous += other.Ambiguous
	r.EmptyName += other.EmptyName
	r.Repaired += other.Repaired
	r.Errors = append(r.Errors, other.Errors...)
	r.Partial = r.Partial || other.Partial
}

// IngestReport summarizes an ingest: the upsert counts and the link pass
// over the ingested records.
type IngestReport struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	*LinkReport
}

// LinkerService attaches dependent records to members. It only writes
// foreign keys; new identities come from IdentityStore.GetOrCreate.
type LinkerService struct {
	identities ports.IdentityStore
	records    ports.RecordStore
	matcher    *MatcherService
	logger     zerolog.Logger
}

// NewLinkerService creates a new LinkerService.
func NewLinkerService(identities ports.IdentityStore, records ports.RecordStore, matcher *MatcherService, logger zerolog.Logger) *LinkerService {
	return &LinkerService{
		identities: identities,
		records:    records,
		matcher:    matcher,
		logger:     logger,
	}
}

// Link links one record. A record already linked to an existing member is
// left alone; a reference to a deleted member is cleared and relinked.
func (s *LinkerService) Link(ctx context.Context, rec *entities.DependentRecord, opts LinkOptions) (entities.LinkOutcome, error) {
	return s.link(ctx, rec, opts, nil)
}

func (s *LinkerService) link(ctx context.Context, rec *entities.DependentRecord, opts LinkOptions, cache *candidateCache) (entities.LinkOutcome, error) {
	if rec.MemberID != nil {
		m, err := s.identities.FindMemberByID(ctx, *rec.MemberID)
		if err != nil {
			return entities.LinkOutcome{}, fmt.Errorf("checking linked member: %w", err)
		}
		if m != nil {
			return entities.Skipped(entities.SkipAlreadyLinked), nil
		}

		s.logger.Debug().
			Int64("record_id", rec.ID).
			Int64("member_id", *rec.MemberID).
			Msg("clearing orphaned member reference")
		if err := s.records.SetRecordMember(ctx, rec.ID, nil, timeNow()); err != nil {
			return entities.LinkOutcome{}, fmt.Errorf("clearing orphaned reference: %w", err)
		}
		rec.MemberID = nil
		rec.LinkedAt = nil
	}

	key := entities.NormalizeName(rec.RawName)
	if key == "" {
		return entities.Skipped(entities.SkipEmptyName), nil
	}

	match, err := s.matcher.Resolve(ctx, rec.RawName, rec.Source)
	if err != nil {
		return entities.LinkOutcome{}, err
	}
	if match.IsResolved() {
		if err := s.attach(ctx, rec, match.MemberID, key, cache); err != nil {
			return entities.LinkOutcome{}, err
		}
		return entities.Linked(match.MemberID), nil
	}

	cands, err := cache.get(ctx, s.matcher)
	if err != nil {
		return entities.LinkOutcome{}, err
	}
	suggestions := s.matcher.SuggestFrom(cands, rec.RawName, 0)

	if opts.CreateIdentities && len(suggestions) == 0 {
		m, created, err := s.identities.GetOrCreate(ctx, rec.RawName, rec.Source)
		if err != nil {
			return entities.LinkOutcome{}, fmt.Errorf("creating member: %w", err)
		}
		if created {
			cache.invalidate()
		}
		if err := s.attach(ctx, rec, m.ID, key, cache); err != nil {
			return entities.LinkOutcome{}, err
		}
		if created {
			s.logger.Debug().
				Int64("member_id", m.ID).
				Str("raw_name", rec.RawName).
				Str("source", string(rec.Source)).
				Msg("created member")
		}
		outcome := entities.Linked(m.ID)
		outcome.Created = created
		return outcome, nil
	}

	name := entities.UnresolvedName{
		NormalizedKey: key,
		Source:        rec.Source,
		RawName:       rec.RawName,
		Candidates:    suggestions,
		LastSeenAt:    rec.ObservedAt,
	}
	if err := s.records.UpsertUnresolved(ctx, name, rec.ID); err != nil {
		return entities.LinkOutcome{}, fmt.Errorf("recording unresolved name: %w", err)
	}

	reason := entities.SkipUnresolved
	if s.matcher.Classify(rec.RawName, suggestions) != nil {
		reason = entities.SkipAmbiguous
	}
	s.logger.Debug().
		Int64("record_id", rec.ID).
		Str("raw_name", rec.RawName).
		Int("candidates", len(suggestions)).
		Str("reason", string(reason)).
		Msg("record left unlinked")
	return entities.Skipped(reason), nil
}

// attach writes the foreign key and records the observation against the member.
func (s *LinkerService) attach(ctx context.Context, rec *entities.DependentRecord, memberID int64, key string, cache *candidateCache) error {
	now := timeNow()
	if err := s.records.SetRecordMember(ctx, rec.ID, &memberID, now); err != nil {
		return fmt.Errorf("linking record: %w", err)
	}
	id := memberID
	rec.MemberID = &id
	rec.LinkedAt = &now

	seen := rec.ObservedAt
	if seen.IsZero() {
		seen = now
	}

	outcome, err := s.identities.AddAlias(ctx, memberID, rec.RawName, rec.Source, seen)
	if err == nil && outcome == entities.AliasCreated {
		cache.invalidate()
	}
	if errors.Is(err, entities.ErrConflictingAlias) {
		s.logger.Warn().
			Err(err).
			Int64("record_id", rec.ID).
			Msg("alias owned by another member; keeping existing alias")
	} else if err != nil {
		return fmt.Errorf("recording alias: %w", err)
	}

	if err := s.identities.TouchMember(ctx, memberID, seen); err != nil {
		return fmt.Errorf("touching member: %w", err)
	}
	if err := s.records.ClearUnresolved(ctx, key, rec.Source); err != nil {
		return fmt.Errorf("clearing unresolved name: %w", err)
	}
	// The record may have been unresolved under an earlier spelling.
	if err := s.records.DetachUnresolved(ctx, rec.ID); err != nil {
		return fmt.Errorf("detaching unresolved occurrence: %w", err)
	}
	return nil
}

// RelinkAll links every unlinked or orphaned record, in ascending ID order.
// Per-record failures are collected in the report. Cancellation or a
// deadline stops the pass and returns the partial report; re-running resumes.
func (s *LinkerService) RelinkAll(ctx context.Context, opts LinkOptions) (*LinkReport, error) {
	report := newLinkReport()

	sources := []entities.Source{opts.Source}
	if opts.Workers > 1 && opts.Source == "" {
		sources = entities.AllSources
	}

	cache := &candidateCache{}
	if len(sources) == 1 {
		if err := s.relinkSource(ctx, sources[0], opts, report, cache); err != nil {
			return nil, err
		}
	} else {
		var mu sync.Mutex
		g := new(errgroup.Group)
		g.SetLimit(opts.Workers)
		for _, source := range sources {
			g.Go(func() error {
				partial := &LinkReport{}
				if err := s.relinkSource(ctx, source, opts, partial, cache); err != nil {
					return fmt.Errorf("relinking %s: %w", source, err)
				}
				mu.Lock()
				report.merge(partial)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	report.FinishedAt = timeNow()

	if report.Repaired > 0 {
		details := map[string]any{"run_id": report.RunID, "count": report.Repaired}
		if err := s.identities.LogAction(ctx, entities.ActionRecordsRepaired, 0, details); err != nil {
			s.logger.Warn().Err(err).Msg("failed to audit repaired records")
		}
	}

	s.logger.Info().
		Str("run_id", report.RunID).
		Int("scanned", report.Scanned).
		Int("linked", report.Linked).
		Int("created", report.Created).
		Int("unresolved", report.Unresolved+report.Ambiguous).
		Int("errors", len(report.Errors)).
		Bool("partial", report.Partial).
		Msg("relink pass finished")

	return report, nil
}

// relinkSource pages through records needing a link with keyset pagination.
// source "" covers every source.
func (s *LinkerService) relinkSource(ctx context.Context, source entities.Source, opts LinkOptions, report *LinkReport, cache *candidateCache) error {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var afterID int64
	for {
		if ctx.Err() != nil {
			report.Partial = true
			return nil
		}

		batch, err := s.records.ListRecordsNeedingLink(ctx, source, afterID, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				report.Partial = true
				return nil
			}
			return fmt.Errorf("listing records: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		for i := range batch {
			if ctx.Err() != nil {
				report.Partial = true
				return nil
			}
			rec := &batch[i]
			afterID = rec.ID

			wasOrphan := rec.MemberID != nil
			outcome, err := s.link(ctx, rec, opts, cache)
			if err != nil {
				if ctx.Err() != nil {
					report.Partial = true
					return nil
				}
				s.logger.Warn().Err(err).Int64("record_id", rec.ID).Msg("link failed")
				report.Errors = append(report.Errors, entities.NewRecordError(rec, err))
				continue
			}
			if wasOrphan {
				report.Repaired++
			}
			report.add(outcome)
		}

		if len(batch) < batchSize {
			return nil
		}
	}
}

// Ingest upserts records and links each of them.
func (s *LinkerService) Ingest(ctx context.Context, records []entities.DependentRecord, opts LinkOptions) (*IngestReport, error) {
	inserted, updated, err := s.records.UpsertRecords(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("storing records: %w", err)
	}

	report := &IngestReport{
		Inserted:   inserted,
		Updated:    updated,
		LinkReport: newLinkReport(),
	}

	cache := &candidateCache{}
	for i := range records {
		if ctx.Err() != nil {
			report.Partial = true
			break
		}
		rec := &records[i]
		wasLinked := rec.MemberID != nil

		outcome, err := s.link(ctx, rec, opts, cache)
		if err != nil {
			if ctx.Err() != nil {
				report.Partial = true
				break
			}
			report.Errors = append(report.Errors, entities.NewRecordError(rec, err))
			continue
		}
		if wasLinked && outcome.Reason != entities.SkipAlreadyLinked {
			report.Repaired++
		}
		report.add(outcome)
	}

	report.FinishedAt = timeNow()

	s.logger.Info().
		Int("inserted", inserted).
		Int("updated", updated).
		Int("linked", report.Linked).
		Int("created", report.Created).
		Int("errors", len(report.Errors)).
		Msg("ingest finished")

	return report, nil
}

// candidateCache shares one suggestion snapshot across a pass. Creating a
// member or alias drops the snapshot so later records score against it.
// A nil cache loads a fresh snapshot on every call.
type candidateCache struct {
	mu    sync.Mutex
	cands *Candidates
}

func (c *candidateCache) get(ctx context.Context, matcher *MatcherService) (*Candidates, error) {
	if c == nil {
		return matcher.LoadCandidates(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cands == nil {
		cands, err := matcher.LoadCandidates(ctx)
		if err != nil {
			return nil, err
		}
		c.cands = cands
	}
	return c.cands, nil
}

func (c *candidateCache) invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cands = nil
	c.mu.Unlock()
}
