// Package ports defines the storage contracts the reconciliation services depend on.
package ports

import "context"

// SchemaManager handles storage lifecycle operations.
// It is separate from the data interfaces because in-memory implementations
// have no schema, and it keeps IdentityStore and RecordStore focused on data.
type SchemaManager interface {
	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the underlying connection.
	Close() error
}
