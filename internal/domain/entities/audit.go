package entities

import "time"

// Audit actions written by the store.
const (
	ActionMemberCreated   = "member_created"
	ActionAliasConflict   = "alias_conflict"
	ActionMemberMerged    = "member_merged"
	ActionStatusChanged   = "status_changed"
	ActionRecordsRepaired = "records_repaired"
)

// AuditEntry represents a logged action in the system.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	MemberID  int64          `json:"member_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RecordError is a per-record failure collected during a batch pass.
type RecordError struct {
	RecordID int64  `json:"record_id"`
	RawName  string `json:"raw_name"`
	Err      error  `json:"-"`
	Message  string `json:"message"`
}

func (e RecordError) Error() string {
	return e.Message
}

// NewRecordError wraps err for record r.
func NewRecordError(r *DependentRecord, err error) RecordError {
	return RecordError{
		RecordID: r.ID,
		RawName:  r.RawName,
		Err:      err,
		Message:  err.Error(),
	}
}
