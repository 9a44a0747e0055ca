package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/ports"
)

// MergeFailure is a plan pair that could not be merged.
type MergeFailure struct {
	Pair    entities.MergePair `json:"pair"`
	Message string             `json:"message"`
	Err     error              `json:"-"`
}

// MergePlanReport summarizes an operator merge plan.
type MergePlanReport struct {
	Merged []entities.MergeReport `json:"merged"`
	Failed []MergeFailure         `json:"failed,omitempty"`
	Relink *LinkReport            `json:"relink,omitempty"`
}

// MergerService executes operator-confirmed merges and flags likely duplicates.
// It never decides on its own that two members are the same person.
type MergerService struct {
	identities ports.IdentityStore
	linker     *LinkerService
	logger     zerolog.Logger
}

// NewMergerService creates a new MergerService. linker may be nil, in which
// case merge plans skip the follow-up relink pass.
func NewMergerService(identities ports.IdentityStore, linker *LinkerService, logger zerolog.Logger) *MergerService {
	return &MergerService{
		identities: identities,
		linker:     linker,
		logger:     logger,
	}
}

// Merge folds absorbID into keepID.
func (s *MergerService) Merge(ctx context.Context, keepID, absorbID int64) (*entities.MergeReport, error) {
	report, err := s.identities.MergeMembers(ctx, keepID, absorbID)
	if err != nil {
		return nil, fmt.Errorf("merging %d into %d: %w", absorbID, keepID, err)
	}

	s.logger.Info().
		Str("run_id", report.RunID).
		Int64("keep_id", keepID).
		Int64("absorb_id", absorbID).
		Int("aliases_moved", report.AliasesMoved).
		Int("aliases_discarded", report.AliasesDiscarded).
		Int("records_relinked", report.RecordsRelinked).
		Msg("merge complete")

	return report, nil
}

// ApplyMergePlan merges each pair in its own transaction. A failing pair is
// reported and the rest continue. After any successful merge, a relink pass
// picks up names that now resolve.
func (s *MergerService) ApplyMergePlan(ctx context.Context, pairs []entities.MergePair, relink LinkOptions) (*MergePlanReport, error) {
	result := &MergePlanReport{}

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		report, err := s.Merge(ctx, pair.KeepID, pair.AbsorbID)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Int64("keep_id", pair.KeepID).
				Int64("absorb_id", pair.AbsorbID).
				Msg("merge failed")
			result.Failed = append(result.Failed, MergeFailure{Pair: pair, Message: err.Error(), Err: err})
			continue
		}
		result.Merged = append(result.Merged, *report)
	}

	if len(result.Merged) > 0 && s.linker != nil {
		relinkReport, err := s.linker.RelinkAll(ctx, relink)
		if err != nil {
			return result, fmt.Errorf("relinking after merge: %w", err)
		}
		result.Relink = relinkReport
	}

	return result, nil
}

type keyOwner struct {
	memberID int64
	display  bool
}

// DetectDuplicates flags member pairs whose display names normalize to the
// same key or whose alias sets share a normalized key. Each pair appears
// once, lower ID first.
func (s *MergerService) DetectDuplicates(ctx context.Context) ([]entities.DuplicateCandidate, error) {
	members, err := s.identities.ListMembers(ctx, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	aliases, err := s.identities.ListAllAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}

	names := make(map[int64]string, len(members))
	owners := make(map[string][]keyOwner)
	for _, m := range members {
		names[m.ID] = m.DisplayName
		if m.DisplayKey != "" {
			owners[m.DisplayKey] = append(owners[m.DisplayKey], keyOwner{memberID: m.ID, display: true})
		}
	}
	for _, a := range aliases {
		owners[a.NormalizedKey] = append(owners[a.NormalizedKey], keyOwner{memberID: a.MemberID})
	}

	type pairKey struct{ a, b int64 }
	found := make(map[pairKey]*entities.DuplicateCandidate)

	keys := make([]string, 0, len(owners))
	for k := range owners {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		list := owners[key]
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				x, y := list[i], list[j]
				if x.memberID == y.memberID {
					continue
				}
				if x.memberID > y.memberID {
					x, y = y, x
				}

				pk := pairKey{x.memberID, y.memberID}
				c, ok := found[pk]
				if !ok {
					c = &entities.DuplicateCandidate{
						MemberA: x.memberID,
						MemberB: y.memberID,
						NameA:   names[x.memberID],
						NameB:   names[y.memberID],
					}
					found[pk] = c
				}

				reason := entities.DuplicateAliasOverlap
				if x.display && y.display {
					reason = entities.DuplicateDisplayName
				}
				addReason(c, reason)
				if reason == entities.DuplicateAliasOverlap {
					addSharedKey(c, key)
				}
			}
		}
	}

	result := make([]entities.DuplicateCandidate, 0, len(found))
	for _, c := range found {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].MemberA != result[j].MemberA {
			return result[i].MemberA < result[j].MemberA
		}
		return result[i].MemberB < result[j].MemberB
	})
	return result, nil
}

func addReason(c *entities.DuplicateCandidate, reason entities.DuplicateReason) {
	for _, r := range c.Reasons {
		if r == reason {
			return
		}
	}
	c.Reasons = append(c.Reasons, reason)
}

func addSharedKey(c *entities.DuplicateCandidate, key string) {
	for _, k := range c.SharedKeys {
		if k == key {
			return
		}
	}
	c.SharedKeys = append(c.SharedKeys, key)
}
