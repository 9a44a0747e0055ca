package entities

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies which external system produced an observed name.
type Source string

const (
	SourceStats Source = "stats" // Stats-tracking platform usernames
	SourceChat  Source = "chat"  // Chat platform display names
)

// AllSources lists every known source, in a stable order.
var AllSources = []Source{SourceStats, SourceChat}

// IsValid reports whether the source is known.
func (s Source) IsValid() bool {
	return s == SourceStats || s == SourceChat
}

// ParseSource parses a source tag, accepting a few spellings seen in exports.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stats", "stat", "tracker":
		return SourceStats, nil
	case "chat", "discord":
		return SourceChat, nil
	default:
		return "", fmt.Errorf("unknown source %q (valid: stats, chat)", s)
	}
}

// Alias maps a normalized raw-name key seen on one source to a member.
// RawName keeps the spelling as first observed, separators included.
type Alias struct {
	ID            int64     `json:"id"`
	MemberID      int64     `json:"member_id"`
	RawName       string    `json:"raw_name"`
	NormalizedKey string    `json:"normalized_key"`
	Source        Source    `json:"source"`
	Preferred     bool      `json:"preferred"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// AliasOutcome describes what recording an alias observation did.
type AliasOutcome string

const (
	AliasCreated   AliasOutcome = "created"   // New (key, source) pair for the member
	AliasRefreshed AliasOutcome = "refreshed" // Pair already owned by the member; last_seen bumped
)
