package handlers

import (
	"context"
	"errors"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/services"
)

// LinkHandler handles relink passes and name lookups.
type LinkHandler struct {
	linker  *services.LinkerService
	matcher *services.MatcherService
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(linker *services.LinkerService, matcher *services.MatcherService) *LinkHandler {
	return &LinkHandler{
		linker:  linker,
		matcher: matcher,
	}
}

// ResolveResult is a deterministic lookup plus, when it fails, the
// suggestions an operator would review.
type ResolveResult struct {
	RawName     string                `json:"raw_name"`
	Source      entities.Source       `json:"source"`
	Match       entities.MatchResult  `json:"match"`
	Suggestions []entities.Suggestion `json:"suggestions,omitempty"`
	Ambiguous   bool                  `json:"ambiguous"`
}

// Relink runs a relink pass over unlinked and orphaned records.
func (h *LinkHandler) Relink(ctx context.Context, opts services.LinkOptions) (*services.LinkReport, error) {
	return h.linker.RelinkAll(ctx, opts)
}

// Resolve looks up rawName without writing anything.
func (h *LinkHandler) Resolve(ctx context.Context, rawName string, source entities.Source) (*ResolveResult, error) {
	match, err := h.matcher.Resolve(ctx, rawName, source)
	if err != nil {
		return nil, err
	}

	result := &ResolveResult{
		RawName: rawName,
		Source:  source,
		Match:   match,
	}
	if match.IsResolved() || match.Key == "" {
		return result, nil
	}

	suggestions, err := h.matcher.Suggest(ctx, rawName, 0)
	if err != nil {
		return nil, err
	}
	result.Suggestions = suggestions
	result.Ambiguous = errors.Is(h.matcher.Classify(rawName, suggestions), entities.ErrAmbiguousMatch)

	return result, nil
}

// Suggest ranks members resembling rawName.
func (h *LinkHandler) Suggest(ctx context.Context, rawName string, limit int) ([]entities.Suggestion, error) {
	return h.matcher.Suggest(ctx, rawName, limit)
}
