package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/services"
	"github.com/ersonp/clanid/internal/infrastructure/logging"
	"github.com/ersonp/clanid/internal/infrastructure/parsers"
)

// MergeHandler handles operator merges and duplicate detection.
type MergeHandler struct {
	merger *services.MergerService
}

// NewMergeHandler creates a new merge handler.
func NewMergeHandler(merger *services.MergerService) *MergeHandler {
	return &MergeHandler{
		merger: merger,
	}
}

// MergePlanOptions controls a plan run.
type MergePlanOptions struct {
	Format string
	DryRun bool // Validate the plan without merging
	Relink services.LinkOptions
}

// MergePlanResult contains the result of a plan run.
type MergePlanResult struct {
	Pairs  []entities.MergePair
	Errors []services.ImportError
	Report *services.MergePlanReport // nil on dry run or invalid plan
}

// HandlePair merges one pair and relinks.
func (h *MergeHandler) HandlePair(ctx context.Context, keepID, absorbID int64, relink services.LinkOptions) (*services.MergePlanReport, error) {
	report, err := h.merger.ApplyMergePlan(ctx, []entities.MergePair{{KeepID: keepID, AbsorbID: absorbID}}, relink)
	if err != nil {
		return nil, err
	}
	if len(report.Failed) > 0 {
		return report, report.Failed[0].Err
	}
	return report, nil
}

// HandlePlan reads a merge plan file and applies it. A plan with invalid
// rows is rejected as a whole.
func (h *MergeHandler) HandlePlan(ctx context.Context, filePath string, opts MergePlanOptions) (*MergePlanResult, error) {
	data, format, err := readInput(filePath, opts.Format)
	if err != nil {
		return nil, err
	}

	raw, err := parsers.ParseMergePairs(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing merge plan: %w", err)
	}

	pairs, errs := services.ConvertMergePairs(raw)
	result := &MergePlanResult{Pairs: pairs, Errors: errs}
	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("file", filePath).
		Int("pairs", len(pairs)).
		Int("invalid", len(errs)).
		Msg("parsed merge plan")
	if len(errs) > 0 || opts.DryRun || len(pairs) == 0 {
		return result, nil
	}

	report, err := h.merger.ApplyMergePlan(ctx, pairs, opts.Relink)
	result.Report = report
	if err != nil {
		return result, err
	}
	return result, nil
}

// Duplicates lists likely duplicate members for operator review.
func (h *MergeHandler) Duplicates(ctx context.Context) ([]entities.DuplicateCandidate, error) {
	return h.merger.DetectDuplicates(ctx)
}
