package handlers

import (
	"context"

	"github.com/ersonp/clanid/internal/domain/services"
)

// AuditHandler builds audit reports.
type AuditHandler struct {
	service *services.AuditService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(service *services.AuditService) *AuditHandler {
	return &AuditHandler{
		service: service,
	}
}

// Handle builds the report.
func (h *AuditHandler) Handle(ctx context.Context, limit int) (*services.AuditReport, error) {
	return h.service.Build(ctx, services.AuditOptions{Limit: limit})
}
