package ports

import (
	"context"
	"time"

	"github.com/ersonp/clanid/internal/domain/entities"
)

// RecordStore holds dependent records and the unresolved-name audit. Writes
// here only set foreign keys; they never invent identities.
type RecordStore interface {
	// UpsertRecords inserts records, keyed by (kind, external_id). Existing
	// records keep their link; raw name and observation time are refreshed.
	// IDs are filled in on the given slice.
	UpsertRecords(ctx context.Context, records []entities.DependentRecord) (inserted, updated int, err error)

	// FindRecordByID finds a record by ID. Returns nil if absent.
	FindRecordByID(ctx context.Context, id int64) (*entities.DependentRecord, error)

	// ListRecordsNeedingLink lists records with no member reference or a
	// reference to a member that no longer exists, with ID > afterID, in ID
	// order. An empty source lists all sources.
	ListRecordsNeedingLink(ctx context.Context, source entities.Source, afterID int64, limit int) ([]entities.DependentRecord, error)

	// ListRecordsByMember lists records linked to a member.
	ListRecordsByMember(ctx context.Context, memberID int64, limit int) ([]entities.DependentRecord, error)

	// SetRecordMember writes (or clears, with nil) a record's member reference.
	SetRecordMember(ctx context.Context, recordID int64, memberID *int64, linkedAt time.Time) error

	// FindOrphanedRecords lists records referencing a member that no longer exists.
	FindOrphanedRecords(ctx context.Context, limit int) ([]entities.DependentRecord, error)

	// CountRecords returns the number of records and how many reference an
	// existing member.
	CountRecords(ctx context.Context) (total, linked int, err error)

	// UpsertUnresolved records that recordID carries an unresolved name.
	// Occurrences count distinct records, so repeated passes do not inflate it.
	UpsertUnresolved(ctx context.Context, name entities.UnresolvedName, recordID int64) error

	// DetachUnresolved removes the occurrence recordID carries, dropping the
	// unresolved name once no record carries it.
	DetachUnresolved(ctx context.Context, recordID int64) error

	// ClearUnresolved removes the unresolved row for (key, source) and its
	// occurrences.
	ClearUnresolved(ctx context.Context, key string, source entities.Source) error

	// ListUnresolved lists unresolved names, most frequent first.
	ListUnresolved(ctx context.Context, limit int) ([]entities.UnresolvedName, error)
}

// Store is the full backing store used by the CLI.
type Store interface {
	SchemaManager
	IdentityStore
	RecordStore
}
