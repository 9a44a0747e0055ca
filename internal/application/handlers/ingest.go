package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/clanid/internal/domain/services"
	"github.com/ersonp/clanid/internal/infrastructure/logging"
	"github.com/ersonp/clanid/internal/infrastructure/parsers"
)

// IngestHandler handles record batch ingestion.
type IngestHandler struct {
	linker *services.LinkerService
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(linker *services.LinkerService) *IngestHandler {
	return &IngestHandler{
		linker: linker,
	}
}

// IngestOptions controls ingestion behavior.
type IngestOptions struct {
	Format string // "json", "yaml", "csv", or "auto"
	DryRun bool   // Validate without saving
	Link   services.LinkOptions
}

// IngestResult contains the result of ingestion.
type IngestResult struct {
	FilePath string
	Parsed   int
	Valid    int
	Errors   []services.ImportError
	Report   *services.IngestReport // nil on dry run or when nothing was valid
}

// Handle reads a batch file, stores its valid records, and links them.
// Invalid rows are reported and skipped.
func (h *IngestHandler) Handle(ctx context.Context, filePath string, opts IngestOptions) (*IngestResult, error) {
	data, format, err := readInput(filePath, opts.Format)
	if err != nil {
		return nil, err
	}

	raw, err := parsers.ParseRecords(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}

	records, errs := services.ConvertRecords(raw)
	result := &IngestResult{
		FilePath: filePath,
		Parsed:   len(raw),
		Valid:    len(records),
		Errors:   errs,
	}

	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("file", filePath).
		Str("format", string(format)).
		Int("parsed", result.Parsed).
		Int("invalid", len(errs)).
		Bool("dry_run", opts.DryRun).
		Msg("parsed record batch")

	if opts.DryRun || len(records) == 0 {
		return result, nil
	}

	report, err := h.linker.Ingest(ctx, records, opts.Link)
	if err != nil {
		return nil, err
	}
	result.Report = report

	return result, nil
}
