package entities

import "time"

// MemberStatus is the lifecycle state of a canonical member.
type MemberStatus string

const (
	StatusActive   MemberStatus = "active"
	StatusDeparted MemberStatus = "departed"
)

// IsValid reports whether the status is a known lifecycle state.
func (s MemberStatus) IsValid() bool {
	return s == StatusActive || s == StatusDeparted
}

// Member represents one real clan member. ID is assigned once by the store
// and is the only key dependent records join on.
type Member struct {
	ID          int64        `json:"id"`
	DisplayName string       `json:"display_name"` // Primary display name (e.g., "Jake STL 314")
	DisplayKey  string       `json:"display_key"`  // NormalizeName(DisplayName), used for duplicate detection
	Status      MemberStatus `json:"status"`
	LastSeenAt  time.Time    `json:"last_seen_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsActive reports whether the member is still part of the clan.
func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}
