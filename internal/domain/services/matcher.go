package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/ports"
)

// MatcherOptions tunes fuzzy suggestion.
type MatcherOptions struct {
	SuggestThreshold float64 // Minimum confidence for a suggestion
	AmbiguityMargin  float64 // Candidates this close to the top score make a match ambiguous
	SuggestLimit     int     // Default number of suggestions
}

// DefaultMatcherOptions returns the default matcher tuning.
func DefaultMatcherOptions() MatcherOptions {
	return MatcherOptions{
		SuggestThreshold: 0.75,
		AmbiguityMargin:  0.05,
		SuggestLimit:     5,
	}
}

// MatcherService resolves raw names to members. Resolution is exact only;
// fuzzy scoring is exposed separately as suggestions for an operator.
type MatcherService struct {
	identities ports.IdentityStore
	opts       MatcherOptions
}

// NewMatcherService creates a new MatcherService.
func NewMatcherService(identities ports.IdentityStore, opts MatcherOptions) *MatcherService {
	if opts.SuggestThreshold <= 0 {
		opts.SuggestThreshold = DefaultMatcherOptions().SuggestThreshold
	}
	if opts.SuggestLimit <= 0 {
		opts.SuggestLimit = DefaultMatcherOptions().SuggestLimit
	}
	return &MatcherService{
		identities: identities,
		opts:       opts,
	}
}

// Options returns the matcher tuning in effect.
func (s *MatcherService) Options() MatcherOptions {
	return s.opts
}

// Resolve looks up the exact (key, source) alias, then the key under any
// other source. It never guesses.
func (s *MatcherService) Resolve(ctx context.Context, rawName string, source entities.Source) (entities.MatchResult, error) {
	key := entities.NormalizeName(rawName)
	if key == "" {
		return entities.Unresolved(key), nil
	}

	m, err := s.identities.FindByKey(ctx, key, source)
	if err != nil {
		return entities.MatchResult{}, fmt.Errorf("finding alias: %w", err)
	}
	if m != nil {
		return entities.Resolved(m.ID, entities.ViaExact, key), nil
	}

	m, err = s.identities.FindByKeyAnySource(ctx, key)
	if err != nil {
		return entities.MatchResult{}, fmt.Errorf("finding cross-source alias: %w", err)
	}
	if m != nil {
		return entities.Resolved(m.ID, entities.ViaCrossSource, key), nil
	}

	return entities.Unresolved(key), nil
}

// Candidates is a snapshot of the members and aliases suggestions are
// scored against. A batch pass loads it once and reuses it.
type Candidates struct {
	members []*entities.Member
	aliases []entities.Alias
}

// LoadCandidates reads the current members and aliases.
func (s *MatcherService) LoadCandidates(ctx context.Context) (*Candidates, error) {
	members, err := s.identities.ListMembers(ctx, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	aliases, err := s.identities.ListAllAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}
	return &Candidates{members: members, aliases: aliases}, nil
}

// Suggest ranks members whose aliases or display names resemble rawName.
// Scores below the threshold are dropped. limit <= 0 uses the configured limit.
func (s *MatcherService) Suggest(ctx context.Context, rawName string, limit int) ([]entities.Suggestion, error) {
	if entities.NormalizeName(rawName) == "" {
		return nil, nil
	}
	cands, err := s.LoadCandidates(ctx)
	if err != nil {
		return nil, err
	}
	return s.SuggestFrom(cands, rawName, limit), nil
}

// SuggestFrom ranks suggestions against a loaded candidate snapshot.
func (s *MatcherService) SuggestFrom(cands *Candidates, rawName string, limit int) []entities.Suggestion {
	key := entities.NormalizeName(rawName)
	if key == "" || cands == nil {
		return nil
	}
	if limit <= 0 {
		limit = s.opts.SuggestLimit
	}

	byID := make(map[int64]*entities.Member, len(cands.members))
	best := make(map[int64]entities.Suggestion, len(cands.members))
	consider := func(memberID int64, candidateKey, spelling string) {
		m, ok := byID[memberID]
		if !ok {
			return
		}
		score := Similarity(key, candidateKey)
		if score < s.opts.SuggestThreshold {
			return
		}
		if cur, ok := best[memberID]; ok && cur.Confidence >= score {
			return
		}
		best[memberID] = entities.Suggestion{
			MemberID:    memberID,
			DisplayName: m.DisplayName,
			Alias:       spelling,
			Confidence:  score,
		}
	}

	for _, m := range cands.members {
		byID[m.ID] = m
		consider(m.ID, m.DisplayKey, m.DisplayName)
	}
	for _, a := range cands.aliases {
		consider(a.MemberID, a.NormalizedKey, a.RawName)
	}

	result := make([]entities.Suggestion, 0, len(best))
	for _, sg := range best {
		result = append(result, sg)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Confidence != result[j].Confidence {
			return result[i].Confidence > result[j].Confidence
		}
		return result[i].MemberID < result[j].MemberID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Classify returns *entities.AmbiguousMatchError when two or more
// suggestions sit within the ambiguity margin of the top score.
// Suggestions must be sorted by confidence, highest first.
func (s *MatcherService) Classify(rawName string, suggestions []entities.Suggestion) error {
	if len(suggestions) < 2 {
		return nil
	}

	top := suggestions[0].Confidence
	var near []entities.Suggestion
	for _, sg := range suggestions {
		if top-sg.Confidence <= s.opts.AmbiguityMargin+1e-9 {
			near = append(near, sg)
		}
	}
	if len(near) < 2 {
		return nil
	}
	return &entities.AmbiguousMatchError{RawName: rawName, Candidates: near}
}

// Similarity scores two normalized keys in [0, 1]: the larger of the
// Levenshtein ratio and the substring containment ratio.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := math.Max(float64(la), float64(lb))

	ratio := 1 - float64(levenshtein.ComputeDistance(a, b))/longest

	var containment float64
	if strings.Contains(a, b) || strings.Contains(b, a) {
		containment = math.Min(float64(la), float64(lb)) / longest
	}

	return math.Max(ratio, containment)
}
