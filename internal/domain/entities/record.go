package entities

import (
	"fmt"
	"strings"
	"time"
)

// RecordKind is the type of external fact carrying a raw name.
type RecordKind string

const (
	KindChatMessage  RecordKind = "chat_message"
	KindStatSnapshot RecordKind = "stat_snapshot"
)

// IsValid reports whether the kind is known.
func (k RecordKind) IsValid() bool {
	return k == KindChatMessage || k == KindStatSnapshot
}

// DefaultSource returns the source a record kind normally comes from.
func (k RecordKind) DefaultSource() Source {
	if k == KindChatMessage {
		return SourceChat
	}
	return SourceStats
}

// ParseRecordKind parses a record kind.
func ParseRecordKind(s string) (RecordKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat_message", "chat", "message":
		return KindChatMessage, nil
	case "stat_snapshot", "stats", "snapshot":
		return KindStatSnapshot, nil
	default:
		return "", fmt.Errorf("unknown record kind %q (valid: chat_message, stat_snapshot)", s)
	}
}

// DependentRecord is an external-origin fact (chat message, stat snapshot)
// that names a member by raw string and optionally references the member
// it was linked to.
type DependentRecord struct {
	ID         int64      `json:"id"`
	Kind       RecordKind `json:"kind"`
	ExternalID string     `json:"external_id"`
	RawName    string     `json:"raw_name"`
	Source     Source     `json:"source"`
	MemberID   *int64     `json:"member_id,omitempty"`
	ObservedAt time.Time  `json:"observed_at"`
	LinkedAt   *time.Time `json:"linked_at,omitempty"`
}

// IsLinked reports whether the record carries a member reference. The
// reference may still be orphaned; only the store can tell.
func (r *DependentRecord) IsLinked() bool {
	return r.MemberID != nil
}

// UnresolvedName is the audit row for a raw name no pass could resolve.
type UnresolvedName struct {
	NormalizedKey string       `json:"normalized_key"`
	Source        Source       `json:"source"`
	RawName       string       `json:"raw_name"` // Latest spelling seen
	Occurrences   int          `json:"occurrences"`
	Candidates    []Suggestion `json:"candidates,omitempty"`
	FirstSeenAt   time.Time    `json:"first_seen_at"`
	LastSeenAt    time.Time    `json:"last_seen_at"`
}
