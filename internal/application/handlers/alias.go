package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/ports"
	"github.com/ersonp/clanid/internal/domain/services"
	"github.com/ersonp/clanid/internal/infrastructure/logging"
	"github.com/ersonp/clanid/internal/infrastructure/parsers"
)

// AliasHandler handles alias lists and single alias edits.
type AliasHandler struct {
	service    *services.AliasListService
	identities ports.IdentityStore
}

// NewAliasHandler creates a new alias handler.
func NewAliasHandler(service *services.AliasListService, identities ports.IdentityStore) *AliasHandler {
	return &AliasHandler{
		service:    service,
		identities: identities,
	}
}

// HandleFile applies an alias list file.
func (h *AliasHandler) HandleFile(ctx context.Context, filePath, format string) (*services.AliasListResult, error) {
	data, f, err := readInput(filePath, format)
	if err != nil {
		return nil, err
	}

	entries, err := parsers.ParseAliases(data, f)
	if err != nil {
		return nil, fmt.Errorf("parsing alias list: %w", err)
	}

	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("file", filePath).
		Int("entries", len(entries)).
		Msg("parsed alias list")

	return h.service.Apply(ctx, entries)
}

// Add records rawName as an alias of a member.
func (h *AliasHandler) Add(ctx context.Context, memberID int64, rawName string, source entities.Source) (entities.AliasOutcome, error) {
	return h.identities.AddAlias(ctx, memberID, rawName, source, time.Now().UTC())
}

// List lists a member's aliases.
func (h *AliasHandler) List(ctx context.Context, memberID int64) ([]entities.Alias, error) {
	m, err := h.identities.FindMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &entities.MemberNotFoundError{ID: memberID}
	}
	return h.identities.ListAliases(ctx, memberID)
}
