// Package store is the durable, transactional store for sessions, events,
// survey text, and detection outcomes. SQLite in WAL mode with a single
// writer; all session-derived tables carry the hierarchical columns
// (survey_id, platform_id, respondent_id) so aggregation is index-only.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/veridata/surveyguard/internal/clock"
)

type DB struct {
	conn  *sql.DB
	mu    sync.Mutex // serializes writers; reads go through the pool
	clock clock.Clock
	idgen clock.IDGen
}

// Option tweaks store construction; used by tests to inject time and IDs.
type Option func(*DB)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// WithIDGen overrides the ID generator.
func WithIDGen(g clock.IDGen) Option {
	return func(db *DB) { db.idgen = g }
}

// New opens (or creates) the database at path and applies migrations.
func New(path string, opts ...Option) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, clock: clock.System{}, idgen: clock.UUID{}}
	for _, o := range opts {
		o(db)
	}

	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

// NewMemory opens an in-memory database, used by tests.
func NewMemory(opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", "file:surveyguard?mode=memory&cache=shared&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, clock: clock.System{}, idgen: clock.UUID{}}
	for _, o := range opts {
		o(db)
	}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn exposes the underlying pool for read-only aggregation queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}
