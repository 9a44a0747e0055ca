package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/ports"
)

// AuditTotals holds store-wide counts.
type AuditTotals struct {
	Members       int `json:"members"`
	ActiveMembers int `json:"active_members"`
	Aliases       int `json:"aliases"`
	Records       int `json:"records"`
	LinkedRecords int `json:"linked_records"`
	Unresolved    int `json:"unresolved"`
	Duplicates    int `json:"duplicates"`
	Orphaned      int `json:"orphaned"`
}

// UnresolvedEntry is an unresolved name with its ambiguity label.
type UnresolvedEntry struct {
	entities.UnresolvedName
	Ambiguous bool `json:"ambiguous"`
}

// AuditReport is the operator view of reconciliation state.
type AuditReport struct {
	GeneratedAt  time.Time                     `json:"generated_at"`
	Totals       AuditTotals                   `json:"totals"`
	Unresolved   []UnresolvedEntry             `json:"unresolved"`
	Duplicates   []entities.DuplicateCandidate `json:"duplicates"`
	Orphans      []entities.DependentRecord    `json:"orphans"`
	RecentMerges []entities.MergeReport        `json:"recent_merges,omitempty"`
}

// AuditOptions limits report sections. Zero means no limit.
type AuditOptions struct {
	Limit int
}

// AuditService builds audit reports.
type AuditService struct {
	store   ports.Store
	matcher *MatcherService
	merger  *MergerService
}

// NewAuditService creates a new AuditService.
func NewAuditService(store ports.Store, matcher *MatcherService, merger *MergerService) *AuditService {
	return &AuditService{
		store:   store,
		matcher: matcher,
		merger:  merger,
	}
}

// Build collects unresolved names, duplicate candidates, orphaned records,
// and totals.
func (s *AuditService) Build(ctx context.Context, opts AuditOptions) (*AuditReport, error) {
	report := &AuditReport{GeneratedAt: timeNow()}

	unresolved, err := s.store.ListUnresolved(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing unresolved names: %w", err)
	}
	report.Unresolved = make([]UnresolvedEntry, 0, len(unresolved))
	for _, u := range unresolved {
		classifyErr := s.matcher.Classify(u.RawName, u.Candidates)
		report.Unresolved = append(report.Unresolved, UnresolvedEntry{
			UnresolvedName: u,
			Ambiguous:      errors.Is(classifyErr, entities.ErrAmbiguousMatch),
		})
	}

	duplicates, err := s.merger.DetectDuplicates(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting duplicates: %w", err)
	}
	report.Duplicates = duplicates

	orphans, err := s.store.FindOrphanedRecords(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("finding orphaned records: %w", err)
	}
	report.Orphans = orphans

	merges, err := s.store.ListMergeLog(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("listing merge log: %w", err)
	}
	report.RecentMerges = merges

	if err := s.fillTotals(ctx, report); err != nil {
		return nil, err
	}

	return report, nil
}

func (s *AuditService) fillTotals(ctx context.Context, report *AuditReport) error {
	t := &report.Totals
	var err error

	if t.Members, err = s.store.CountMembers(ctx); err != nil {
		return fmt.Errorf("counting members: %w", err)
	}
	active, err := s.store.ListMembers(ctx, entities.StatusActive, 0, 0)
	if err != nil {
		return fmt.Errorf("listing active members: %w", err)
	}
	t.ActiveMembers = len(active)

	if t.Aliases, err = s.store.CountAliases(ctx); err != nil {
		return fmt.Errorf("counting aliases: %w", err)
	}
	if t.Records, t.LinkedRecords, err = s.store.CountRecords(ctx); err != nil {
		return fmt.Errorf("counting records: %w", err)
	}

	allUnresolved, err := s.store.ListUnresolved(ctx, 0)
	if err != nil {
		return fmt.Errorf("counting unresolved names: %w", err)
	}
	t.Unresolved = len(allUnresolved)
	t.Duplicates = len(report.Duplicates)

	allOrphans, err := s.store.FindOrphanedRecords(ctx, 0)
	if err != nil {
		return fmt.Errorf("counting orphaned records: %w", err)
	}
	t.Orphaned = len(allOrphans)

	return nil
}
