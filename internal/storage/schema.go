package storage

// ---------------------------------------------------------------------------
// Schema version
// ---------------------------------------------------------------------------

// SchemaVersion is the current database schema version.
const SchemaVersion = 2

// ---------------------------------------------------------------------------
// Migration support
// ---------------------------------------------------------------------------

// Migration describes a single schema migration that can be applied to the
// database. Migrations are ordered by Version and applied once each.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the ordered list of all schema migrations.
// Apply them sequentially; skip any whose Version is already recorded
// in the schema_migrations table.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Search response cache",
		SQL: `
CREATE TABLE IF NOT EXISTS search_cache (
    query       TEXT PRIMARY KEY,
    results     TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_cache_created ON search_cache(created_at);
`,
	},
	{
		Version:     2,
		Description: "Hierarchy analyses keyed by content checksum",
		SQL: `
CREATE TABLE IF NOT EXISTS analyses (
    checksum    TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    hierarchy   TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);
`,
	},
}
