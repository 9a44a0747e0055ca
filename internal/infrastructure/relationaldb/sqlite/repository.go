// Package sqlite provides a SQLite implementation of the identity and record stores.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ersonp/clanid/internal/infrastructure/config"
)

// generateUUID returns a new UUID string.
func generateUUID() string {
	return uuid.New().String()
}

// timeNow returns the current time (can be mocked in tests).
var timeNow = func() time.Time {
	return time.Now().UTC()
}

const (
	defaultBusyTimeoutMS = 5000
	defaultRetryAttempts = 5
	defaultRetryDelay    = 20 * time.Millisecond
)

// Repository implements ports.Store using SQLite.
type Repository struct {
	db            *sql.DB
	path          string
	retryAttempts uint
	retryDelay    time.Duration
	logger        zerolog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithRetry sets how identity writes that lose a uniqueness or lock race are retried.
func WithRetry(cfg config.StoreConfig) Option {
	return func(r *Repository) {
		if cfg.RetryAttempts > 0 {
			r.retryAttempts = uint(cfg.RetryAttempts)
		}
		if cfg.RetryDelayMS > 0 {
			r.retryDelay = time.Duration(cfg.RetryDelayMS) * time.Millisecond
		}
	}
}

// WithLogger sets the repository logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig, opts ...Option) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Every connection to :memory: opens its own empty database
	if isMemoryPath(cfg.Path) {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}

	r := &Repository{
		db:            db,
		path:          cfg.Path,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// buildDSN applies pragmas on every pooled connection rather than only the
// first one. Writers take the lock up front so read-then-write transactions
// queue on busy_timeout instead of failing on lock upgrade.
func buildDSN(cfg config.SQLiteConfig) string {
	if strings.Contains(cfg.Path, "?") {
		return cfg.Path
	}

	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = defaultBusyTimeoutMS
	}

	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
	if !isMemoryPath(cfg.Path) {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	params.Set("_time_format", "sqlite")
	params.Set("_txlock", "immediate")

	return cfg.Path + "?" + params.Encode()
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Canonical members (one row per real person)
	CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		display_name TEXT NOT NULL,
		display_key TEXT NOT NULL,
		display_fold TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'departed')),
		last_seen_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_members_active_display ON members(display_fold) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_members_display_key ON members(display_key);

	-- Aliases (normalized key per source, owned by exactly one member)
	CREATE TABLE IF NOT EXISTS aliases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL REFERENCES members(id),
		raw_name TEXT NOT NULL,
		normalized_key TEXT NOT NULL,
		source TEXT NOT NULL,
		preferred INTEGER NOT NULL DEFAULT 0,
		first_seen_at TIMESTAMP NOT NULL,
		last_seen_at TIMESTAMP NOT NULL,
		UNIQUE(normalized_key, source)
	);
	CREATE INDEX IF NOT EXISTS idx_aliases_member ON aliases(member_id);
	CREATE INDEX IF NOT EXISTS idx_aliases_key ON aliases(normalized_key);

	-- Dependent records (external facts naming a member; member_id may be stale)
	CREATE TABLE IF NOT EXISTS dependent_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		external_id TEXT NOT NULL,
		raw_name TEXT NOT NULL,
		source TEXT NOT NULL,
		member_id INTEGER,
		observed_at TIMESTAMP NOT NULL,
		linked_at TIMESTAMP,
		UNIQUE(kind, external_id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_member ON dependent_records(member_id);
	CREATE INDEX IF NOT EXISTS idx_records_source ON dependent_records(source, id);

	-- Unresolved names awaiting an operator
	CREATE TABLE IF NOT EXISTS unresolved_names (
		normalized_key TEXT NOT NULL,
		source TEXT NOT NULL,
		raw_name TEXT NOT NULL,
		candidates TEXT,
		first_seen_at TIMESTAMP NOT NULL,
		last_seen_at TIMESTAMP NOT NULL,
		PRIMARY KEY (normalized_key, source)
	);

	-- Records carrying an unresolved name (one row per record)
	CREATE TABLE IF NOT EXISTS unresolved_occurrences (
		record_id INTEGER PRIMARY KEY,
		normalized_key TEXT NOT NULL,
		source TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_unresolved_occurrences_key ON unresolved_occurrences(normalized_key, source);

	-- Executed merges
	CREATE TABLE IF NOT EXISTS merge_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		keep_id INTEGER NOT NULL,
		absorb_id INTEGER NOT NULL,
		absorb_name TEXT NOT NULL,
		aliases_moved INTEGER NOT NULL,
		aliases_discarded INTEGER NOT NULL,
		records_relinked INTEGER NOT NULL,
		merged_at TIMESTAMP NOT NULL
	);

	-- Audit log (tracks identity mutations)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		member_id INTEGER,
		details TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_member ON audit_log(member_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// withRetry runs fn, retrying when it loses a uniqueness or lock race.
func withRetry[T any](ctx context.Context, r *Repository, op string, fn func() (T, error)) (T, error) {
	return retry.DoWithData(
		fn,
		retry.Context(ctx),
		retry.Attempts(r.retryAttempts),
		retry.Delay(r.retryDelay),
		retry.MaxJitter(r.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Debug().
				Str("op", op).
				Uint("attempt", n+1).
				Err(err).
				Msg("retrying store write")
		}),
	)
}

// limitArg maps a non-positive limit to SQLite's "no limit".
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
