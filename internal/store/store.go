package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial nodes table
// 2 - Shared clock table, updated_seq index
const currentSchemaVersion = 2

// DefaultPollInterval is how often a file-backed store looks for children
// written by other handles on the same database.
const DefaultPollInterval = 250 * time.Millisecond

// Store is an SQLite-backed keyed collection store with child-added
// notifications.
//
// Notifications cover writes from every handle on the database file. Writes
// through this handle are delivered before the write call returns; writes
// from other handles or processes are picked up by polling the nodes table
// for seq values past the last one seen.
//
// Thread-safety: all methods are safe for concurrent use. Writes are
// serialized by an internal mutex, which also orders notifications.
type Store struct {
	db     *sql.DB
	clock  *Clock
	keys   KeyGenerator
	logger *slog.Logger

	overwritesAsAdds bool
	pollInterval     time.Duration

	mu        sync.Mutex // Serializes writes, notifications and observer registration
	closed    bool
	observers map[*Observation]struct{}
	polled    int64 // highest updated_seq already dispatched to observers

	pollStop chan struct{}
	pollDone chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithKeyGenerator overrides the generator used by Push.
// Default: UUIDv7Generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(s *Store) {
		s.keys = g
	}
}

// WithOverwritesAsAdds reports overwrites of existing children to observers
// as child-added events.
func WithOverwritesAsAdds() Option {
	return func(s *Store) {
		s.overwritesAsAdds = true
	}
}

// WithPollInterval sets how often the store looks for children written by
// other handles. Zero or negative disables polling.
// Default: DefaultPollInterval; always disabled for ":memory:".
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		s.pollInterval = d
	}
}

// WithLogger sets the logger used for store diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open creates or opens a SQLite database at the given path.
// Use ":memory:" for a private in-memory store.
//
// This function is idempotent - safe to call multiple times on the same path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and ":memory:" databases
	// are per connection, so keep exactly one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	lastSeq, err := readClock(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read last seq: %w", err)
	}

	s := &Store{
		db:           db,
		clock:        NewClockAt(lastSeq),
		keys:         UUIDv7Generator{},
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		observers:    make(map[*Observation]struct{}),
		polled:       lastSeq,
	}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" && s.pollInterval > 0 {
		s.pollStop = make(chan struct{})
		s.pollDone = make(chan struct{})
		go s.pollLoop()
	}

	return s, nil
}

// Close cancels every observation and closes the database connection.
// Subsequent operations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for obs := range s.observers {
		obs.stop()
	}
	s.observers = make(map[*Observation]struct{})
	s.mu.Unlock()

	if s.pollStop != nil {
		close(s.pollStop)
		<-s.pollDone
	}

	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the store is open and the database reachable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// LastSeq returns the highest seq this handle has written or observed.
func (s *Store) LastSeq() int64 {
	return s.clock.Current()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema version.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
