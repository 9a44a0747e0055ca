package entities

// MatchStatus is the outcome class of a deterministic resolve.
type MatchStatus string

const (
	MatchResolved   MatchStatus = "resolved"
	MatchUnresolved MatchStatus = "unresolved"
)

// MatchVia records which lookup produced a resolution.
type MatchVia string

const (
	ViaExact       MatchVia = "exact"        // Alias for (key, source)
	ViaCrossSource MatchVia = "cross_source" // Alias for key under another source
)

// MatchResult is either Resolved(MemberID) or Unresolved.
type MatchResult struct {
	Status   MatchStatus `json:"status"`
	MemberID int64       `json:"member_id,omitempty"`
	Via      MatchVia    `json:"via,omitempty"`
	Key      string      `json:"key"`
}

// Resolved returns a resolved match.
func Resolved(memberID int64, via MatchVia, key string) MatchResult {
	return MatchResult{Status: MatchResolved, MemberID: memberID, Via: via, Key: key}
}

// Unresolved returns an unresolved match for key.
func Unresolved(key string) MatchResult {
	return MatchResult{Status: MatchUnresolved, Key: key}
}

// IsResolved reports whether the match found a member.
func (m MatchResult) IsResolved() bool {
	return m.Status == MatchResolved
}

// Suggestion is a fuzzy candidate offered for operator review. It is never
// used to link a record.
type Suggestion struct {
	MemberID    int64   `json:"member_id"`
	DisplayName string  `json:"display_name"`
	Alias       string  `json:"alias"` // Best-scoring alias spelling
	Confidence  float64 `json:"confidence"`
}

// SkipReason explains why the linker left a record unlinked or untouched.
type SkipReason string

const (
	SkipAlreadyLinked SkipReason = "already_linked"
	SkipUnresolved    SkipReason = "unresolved"
	SkipAmbiguous     SkipReason = "ambiguous"
	SkipEmptyName     SkipReason = "empty_name"
)

// LinkOutcome is Linked(MemberID) or Skipped(Reason).
type LinkOutcome struct {
	Linked   bool       `json:"linked"`
	MemberID int64      `json:"member_id,omitempty"`
	Created  bool       `json:"created,omitempty"` // Member was created by this link
	Reason   SkipReason `json:"reason,omitempty"`
}

// Linked returns a linked outcome.
func Linked(memberID int64) LinkOutcome {
	return LinkOutcome{Linked: true, MemberID: memberID}
}

// Skipped returns a skipped outcome.
func Skipped(reason SkipReason) LinkOutcome {
	return LinkOutcome{Reason: reason}
}
