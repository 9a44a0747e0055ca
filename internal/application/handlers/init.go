// Package handlers contains application use case handlers.
package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/clanid/internal/domain/ports"
	"github.com/ersonp/clanid/internal/infrastructure/config"
)

// InitHandler handles workspace initialization.
type InitHandler struct {
	schema ports.SchemaManager
}

// NewInitHandler creates a new init handler. schema may be nil when no
// clan database is opened yet.
func NewInitHandler(schema ports.SchemaManager) *InitHandler {
	return &InitHandler{
		schema: schema,
	}
}

// InitResult contains the result of initialization.
type InitResult struct {
	ConfigPath string
	Config     *config.Config
}

// Handle writes the default config and creates the schema.
func (h *InitHandler) Handle(ctx context.Context, basePath string) (*InitResult, error) {
	if config.Exists(basePath) {
		return nil, fmt.Errorf("clanid already initialized in %s", basePath)
	}

	if err := config.WriteDefault(basePath); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if h.schema != nil {
		if err := h.schema.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &InitResult{
		ConfigPath: config.ConfigFilePath(basePath),
		Config:     cfg,
	}, nil
}
