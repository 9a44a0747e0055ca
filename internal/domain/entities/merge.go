package entities

import "time"

// MergeReport records what a merge moved, for audit.
type MergeReport struct {
	RunID            string    `json:"run_id"`
	KeepID           int64     `json:"keep_id"`
	AbsorbID         int64     `json:"absorb_id"`
	AbsorbName       string    `json:"absorb_name"`
	AliasesMoved     int       `json:"aliases_moved"`
	AliasesDiscarded int       `json:"aliases_discarded"`
	RecordsRelinked  int       `json:"records_relinked"`
	MergedAt         time.Time `json:"merged_at"`
}

// MergePair is an operator-confirmed (keep, absorb) pair.
type MergePair struct {
	KeepID   int64 `json:"keep" yaml:"keep"`
	AbsorbID int64 `json:"absorb" yaml:"absorb"`
}

// DuplicateReason explains why two members were flagged.
type DuplicateReason string

const (
	DuplicateDisplayName  DuplicateReason = "display_name"  // Display names normalize to the same key
	DuplicateAliasOverlap DuplicateReason = "alias_overlap" // Alias sets share a normalized key
)

// DuplicateCandidate is a pair of members that may be the same person.
// Candidates are flagged only; an operator decides whether to merge.
type DuplicateCandidate struct {
	MemberA    int64             `json:"member_a"` // Lower ID
	MemberB    int64             `json:"member_b"`
	NameA      string            `json:"name_a"`
	NameB      string            `json:"name_b"`
	Reasons    []DuplicateReason `json:"reasons"`
	SharedKeys []string          `json:"shared_keys,omitempty"`
}
