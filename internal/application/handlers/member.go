package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/domain/ports"
)

// recentRecordLimit caps the records shown with a member.
const recentRecordLimit = 20

// MemberHandler handles member listing and lifecycle.
type MemberHandler struct {
	identities ports.IdentityStore
	records    ports.RecordStore
}

// NewMemberHandler creates a new member handler.
func NewMemberHandler(identities ports.IdentityStore, records ports.RecordStore) *MemberHandler {
	return &MemberHandler{
		identities: identities,
		records:    records,
	}
}

// MemberDetail is a member with its aliases and recent records.
type MemberDetail struct {
	Member  *entities.Member           `json:"member"`
	Aliases []entities.Alias           `json:"aliases"`
	Records []entities.DependentRecord `json:"records"`
}

// List lists members. An empty status lists all.
func (h *MemberHandler) List(ctx context.Context, status entities.MemberStatus, limit, offset int) ([]*entities.Member, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("invalid status %q (valid: active, departed)", status)
	}
	return h.identities.ListMembers(ctx, status, limit, offset)
}

// Show finds a member by ID or display name.
func (h *MemberHandler) Show(ctx context.Context, ref string) (*MemberDetail, error) {
	m, err := h.find(ctx, ref)
	if err != nil {
		return nil, err
	}

	aliases, err := h.identities.ListAliases(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}
	records, err := h.records.ListRecordsByMember(ctx, m.ID, recentRecordLimit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	return &MemberDetail{Member: m, Aliases: aliases, Records: records}, nil
}

// SetStatus marks a member active or departed.
func (h *MemberHandler) SetStatus(ctx context.Context, ref string, status entities.MemberStatus) (*entities.Member, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid status %q (valid: active, departed)", status)
	}
	m, err := h.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := h.identities.SetMemberStatus(ctx, m.ID, status); err != nil {
		return nil, err
	}
	m.Status = status
	return m, nil
}

func (h *MemberHandler) find(ctx context.Context, ref string) (*entities.Member, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		m, err := h.identities.FindMemberByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}

	m, err := h.identities.FindMemberByDisplayName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrMemberNotFound, ref)
	}
	return m, nil
}
