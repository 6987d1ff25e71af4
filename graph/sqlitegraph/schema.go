package sqlitegraph

// SQLite schema DDL constants

const schemaNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    labels TEXT NOT NULL,
    properties TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

// Edges carry no UNIQUE(source_id, target_id, type) constraint: duplicate
// prevention is a relation policy, not a storage rule.
const schemaEdges = `
CREATE TABLE IF NOT EXISTS edges (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    type TEXT NOT NULL,
    source_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    target_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    properties TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    modified_at DATETIME NOT NULL
)`

const indexEdgesSource = `CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, type)`
const indexEdgesTarget = `CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, type)`

const pragmaWAL = `PRAGMA journal_mode=WAL`
const pragmaFK = `PRAGMA foreign_keys=ON`
const pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
const pragmaSynchronous = `PRAGMA synchronous=NORMAL`

// allSchemaStatements returns all schema DDL in order
func allSchemaStatements() []string {
	return []string{
		schemaNodes,
		schemaEdges,
		indexEdgesSource,
		indexEdgesTarget,
	}
}

// allPragmas returns all pragma statements
func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaFK,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}
