package ports

import (
	"context"
	"time"

	"github.com/ersonp/clanid/internal/domain/entities"
)

// IdentityStore is the single source of truth for who is who. Every
// mutation runs as one atomic unit; (normalized key, source) maps to exactly
// one member at any time.
type IdentityStore interface {
	// GetOrCreate returns the member owning rawName for source, creating a
	// member and its preferred alias when none exists. It is the only way new
	// identities are created. created reports whether a member was inserted.
	// Concurrent calls for the same key yield one member.
	GetOrCreate(ctx context.Context, rawName string, source entities.Source) (member *entities.Member, created bool, err error)

	// FindByKey finds the member owning the exact (key, source) alias.
	// Returns nil if absent.
	FindByKey(ctx context.Context, key string, source entities.Source) (*entities.Member, error)

	// FindByKeyAnySource finds the member owning key under any source.
	// Returns nil if absent.
	FindByKeyAnySource(ctx context.Context, key string) (*entities.Member, error)

	// ListAliases lists the aliases of a member.
	ListAliases(ctx context.Context, memberID int64) ([]entities.Alias, error)

	// ListAllAliases lists every alias, for suggestion scoring.
	ListAllAliases(ctx context.Context) ([]entities.Alias, error)

	// AddAlias records an observation of rawName for a member. A pair already
	// owned by another member yields *entities.ConflictingAliasError and the
	// existing alias is left untouched.
	AddAlias(ctx context.Context, memberID int64, rawName string, source entities.Source, seenAt time.Time) (entities.AliasOutcome, error)

	// FindMemberByID finds a member by its ID. Returns nil if absent.
	FindMemberByID(ctx context.Context, id int64) (*entities.Member, error)

	// FindMemberByDisplayName finds a member by display name (case-insensitive).
	// Active members win over departed ones. Returns nil if absent.
	FindMemberByDisplayName(ctx context.Context, name string) (*entities.Member, error)

	// ListMembers lists members ordered by ID. An empty status lists all.
	ListMembers(ctx context.Context, status entities.MemberStatus, limit, offset int) ([]*entities.Member, error)

	// CountMembers returns the number of members.
	CountMembers(ctx context.Context) (int, error)

	// CountAliases returns the number of aliases.
	CountAliases(ctx context.Context) (int, error)

	// SetMemberStatus changes a member's lifecycle status.
	SetMemberStatus(ctx context.Context, id int64, status entities.MemberStatus) error

	// TouchMember advances a member's last-seen timestamp (never backwards).
	TouchMember(ctx context.Context, id int64, seenAt time.Time) error

	// MergeMembers folds absorbID into keepID in one transaction: aliases are
	// re-pointed, dependent records re-linked, and absorbID deleted last.
	// A failed precondition returns *entities.MergeIntegrityError before any
	// mutation.
	MergeMembers(ctx context.Context, keepID, absorbID int64) (*entities.MergeReport, error)

	// ListMergeLog lists executed merges, newest first.
	ListMergeLog(ctx context.Context, limit int) ([]entities.MergeReport, error)

	// LogAction logs an action to the audit log.
	LogAction(ctx context.Context, action string, memberID int64, details map[string]any) error

	// FindAuditLogByAction finds audit log entries by action type.
	FindAuditLogByAction(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error)
}
