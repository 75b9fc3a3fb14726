package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a cache entry is missing or expired.
var ErrNotFound = errors.New("storage: not found")

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Analysis is a stored hierarchy result for one uploaded document.
type Analysis struct {
	Checksum  string          `json:"checksum"`
	Name      string          `json:"name"`
	Hierarchy json.RawMessage `json:"hierarchy"`
	CreatedAt time.Time       `json:"created_at"`
}

// CacheStats summarises what the cache currently holds.
type CacheStats struct {
	Searches      int        `json:"searches"`
	Analyses      int        `json:"analyses"`
	OldestSearch  *time.Time `json:"oldest_search,omitempty"`
	SchemaVersion int        `json:"schema_version"`
}

// NormalizeQuery lower-cases q and collapses runs of whitespace so that
// trivially different spellings share a cache entry.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// ---------------------------------------------------------------------------
// Storage
// ---------------------------------------------------------------------------

// Storage is a thread-safe wrapper around a SQLite database that caches
// external provider responses. Graph state is never persisted here.
type Storage struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// ============================= LIFECYCLE ==================================

// New opens (or creates) the SQLite database at dbPath, applies the
// recommended PRAGMAs, runs any pending migrations and returns a ready
// *Storage.
func New(dbPath string) (*Storage, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open db %q: %w", dbPath, err)
	}

	// Only one writer at a time for SQLite.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("storage: set pragma %q: %w", p, err)
		}
	}

	s := &Storage{db: conn, now: time.Now}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// ============================ MIGRATIONS ==================================

// migrate ensures the schema_migrations table exists, then applies every
// unapplied Migration from the package-level Migrations slice.
func (s *Storage) migrate() error {
	const createMigTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		description TEXT
	)`
	if _, err := s.db.Exec(createMigTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range Migrations {
		var exists int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration v%d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := s.db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration v%d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// =========================== SEARCH CACHE =================================

// SaveSearch upserts the encoded results for query.
func (s *Storage) SaveSearch(ctx context.Context, query string, results json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `INSERT OR REPLACE INTO search_cache (query, results, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, NormalizeQuery(query), string(results), s.now().UnixMilli()); err != nil {
		return fmt.Errorf("storage: save search %q: %w", query, err)
	}
	return nil
}

// GetSearch returns the cached results for query. Entries older than
// maxAge are treated as missing; maxAge <= 0 disables expiry.
func (s *Storage) GetSearch(ctx context.Context, query string, maxAge time.Duration) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		results   string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT results, created_at FROM search_cache WHERE query = ?`, NormalizeQuery(query),
	).Scan(&results, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get search %q: %w", query, err)
	}
	if maxAge > 0 && s.now().Sub(time.UnixMilli(createdAt)) > maxAge {
		return nil, ErrNotFound
	}
	return json.RawMessage(results), nil
}

// PurgeSearchesBefore deletes cache entries created before t and reports
// how many were removed.
func (s *Storage) PurgeSearchesBefore(ctx context.Context, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM search_cache WHERE created_at < ?`, t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("storage: purge searches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage: purge searches: %w", err)
	}
	return int(n), nil
}

// ============================== ANALYSES ==================================

// SaveAnalysis upserts a hierarchy result keyed by content checksum.
func (s *Storage) SaveAnalysis(ctx context.Context, a *Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := a.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	const q = `INSERT OR REPLACE INTO analyses (checksum, name, hierarchy, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, a.Checksum, a.Name, string(a.Hierarchy), created.UnixMilli()); err != nil {
		return fmt.Errorf("storage: save analysis %q: %w", a.Checksum, err)
	}
	return nil
}

// GetAnalysis retrieves a stored analysis, or ErrNotFound.
func (s *Storage) GetAnalysis(ctx context.Context, checksum string) (*Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a := &Analysis{Checksum: checksum}
	var (
		hierarchy string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, hierarchy, created_at FROM analyses WHERE checksum = ?`, checksum,
	).Scan(&a.Name, &hierarchy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get analysis %q: %w", checksum, err)
	}
	a.Hierarchy = json.RawMessage(hierarchy)
	a.CreatedAt = time.UnixMilli(createdAt)
	return a, nil
}

// =============================== STATS ====================================

// Stats reports row counts for the cache tables.
func (s *Storage) Stats(ctx context.Context) (*CacheStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &CacheStats{SchemaVersion: SchemaVersion}
	var oldest sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at) FROM search_cache`,
	).Scan(&stats.Searches, &oldest); err != nil {
		return nil, fmt.Errorf("storage: count searches: %w", err)
	}
	if oldest.Valid {
		t := time.UnixMilli(oldest.Int64)
		stats.OldestSearch = &t
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&stats.Analyses); err != nil {
		return nil, fmt.Errorf("storage: count analyses: %w", err)
	}
	return stats, nil
}
