package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/ports"
	"github.com/ersonp/clanid/internal/infrastructure/parsers"
)

// AliasListResult contains the result of applying an alias list.
type AliasListResult struct {
	Created   int           `json:"created"`
	Refreshed int           `json:"refreshed"`
	Conflicts int           `json:"conflicts"`
	Errors    []ImportError `json:"errors,omitempty"`
}

// AliasListService applies operator alias lists for known name changes.
type AliasListService struct {
	identities ports.IdentityStore
	logger     zerolog.Logger
}

// NewAliasListService creates a new AliasListService.
func NewAliasListService(identities ports.IdentityStore, logger zerolog.Logger) *AliasListService {
	return &AliasListService{
		identities: identities,
		logger:     logger,
	}
}

// Apply maps each raw name to the member with the given display name.
// An entry without a source applies to every source. Conflicting aliases
// are reported; the existing alias is kept.
func (s *AliasListService) Apply(ctx context.Context, entries []parsers.RawAlias) (*AliasListResult, error) {
	result := &AliasListResult{}

	for i := range entries {
		entry := &entries[i]
		line := entry.LineNum
		if line == 0 {
			line = i + 1
		}

		if entities.NormalizeName(entry.RawName) == "" {
			result.Errors = append(result.Errors, ImportError{Line: line, Field: "raw_name", Value: entry.RawName, Message: "raw_name is empty"})
			continue
		}
		if strings.TrimSpace(entry.DisplayName) == "" {
			result.Errors = append(result.Errors, ImportError{Line: line, Field: "display_name", Message: "missing required field: display_name"})
			continue
		}

		sources := entities.AllSources
		if entry.Source != "" {
			source, err := entities.ParseSource(entry.Source)
			if err != nil {
				result.Errors = append(result.Errors, ImportError{Line: line, Field: "source", Value: entry.Source, Message: err.Error()})
				continue
			}
			sources = []entities.Source{source}
		}

		member, err := s.identities.FindMemberByDisplayName(ctx, entry.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("finding member %q: %w", entry.DisplayName, err)
		}
		if member == nil {
			result.Errors = append(result.Errors, ImportError{
				Line:    line,
				Field:   "display_name",
				Value:   entry.DisplayName,
				Message: fmt.Sprintf("member not found: %s", entry.DisplayName),
			})
			continue
		}

		for _, source := range sources {
			outcome, err := s.identities.AddAlias(ctx, member.ID, entry.RawName, source, timeNow())
			var conflict *entities.ConflictingAliasError
			switch {
			case errors.As(err, &conflict):
				result.Conflicts++
				result.Errors = append(result.Errors, ImportError{
					Line:    line,
					Field:   "raw_name",
					Value:   entry.RawName,
					Message: conflict.Error(),
				})
				s.logger.Warn().Err(err).Int("line", line).Msg("alias conflict")
			case err != nil:
				return nil, fmt.Errorf("adding alias %q: %w", entry.RawName, err)
			case outcome == entities.AliasCreated:
				result.Created++
			default:
				result.Refreshed++
			}
		}
	}

	return result, nil
}
