// Package vectorstore provides the SQLite + sqlite-vec storage layer for
// session, milestone, and knowledge vector rows, plus an FTS5 keyword index
// over the same rows.
package vectorstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/langmartai/lmassist/internal/config"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DB wraps a SQLite connection with sqlite-vec and FTS5 support.
type DB struct {
	conn         *sql.DB
	mu           sync.Mutex // serialize writes
	ftsAvailable bool
	dim          int
}

// Open opens or creates the database at the configured path.
func Open() (*DB, error) {
	return OpenPath(config.VectorDBPath(), config.VectorDim)
}

// OpenPath opens or creates the database at the given path with the given
// vector dimensionality.
func OpenPath(path string, dim int) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	var vecVersion string
	if err := conn.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	db := &DB{conn: conn, dim: dim}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for testing.
func OpenMemory(dim int) (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	db := &DB{conn: conn, dim: dim}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for direct queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS vector_rows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			row_type TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			milestone_index INTEGER NOT NULL DEFAULT -1,
			knowledge_id TEXT NOT NULL DEFAULT '',
			part_id TEXT NOT NULL DEFAULT '',
			project_path TEXT NOT NULL DEFAULT '',
			phase INTEGER NOT NULL DEFAULT -1,
			content_type TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_rows_type ON vector_rows(row_type)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_rows_session ON vector_rows(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_rows_knowledge ON vector_rows(knowledge_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_rows_part ON vector_rows(part_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_rows_milestone ON vector_rows(session_id, milestone_index)`,

		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vector_rows_vec USING vec0(
			row_id INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		)`, db.dim),
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	currentVersion := db.SchemaVersion()
	versionedMigrations := []struct {
		version int
		fn      func() error
	}{
		{1, db.migrateV1}, // baseline version marker
		{2, db.migrateV2}, // FTS5 keyword index
	}
	for _, m := range versionedMigrations {
		if currentVersion < m.version {
			if err := m.fn(); err != nil {
				return fmt.Errorf("migration v%d: %w", m.version, err)
			}
			if err := db.SetMeta("schema_version", strconv.Itoa(m.version)); err != nil {
				return fmt.Errorf("record migration v%d: %w", m.version, err)
			}
		}
	}
	if !db.ftsAvailable {
		var name string
		err := db.conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'vector_rows_fts'`).Scan(&name)
		db.ftsAvailable = err == nil
	}
	return nil
}

func (db *DB) migrateV1() error {
	return nil
}

// migrateV2 creates an FTS5 virtual table over the text column, synced by
// content_rowid. FTS5 may be unavailable on some SQLite builds; failure is
// non-fatal, and hybrid search then runs without its keyword half.
func (db *DB) migrateV2() error {
	_, err := db.conn.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS vector_rows_fts USING fts5(
		text,
		content=vector_rows, content_rowid=id
	)`)
	if err != nil {
		db.ftsAvailable = false
		return nil
	}
	db.ftsAvailable = true
	_, _ = db.conn.Exec(`INSERT INTO vector_rows_fts(vector_rows_fts) VALUES('rebuild')`)
	return nil
}

// SchemaVersion returns the current schema version (0 if unset).
func (db *DB) SchemaVersion() int {
	v, ok := db.GetMeta("schema_version")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// GetMeta reads a value from the schema_meta table.
func (db *DB) GetMeta(key string) (string, bool) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM schema_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetMeta writes a key-value pair to the schema_meta table.
func (db *DB) SetMeta(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO schema_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (db *DB) hasColumn(table, column string) bool {
	rows, err := db.conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid      int
			name     string
			colType  string
			notNull  int
			defaultV sql.NullString
			primaryK int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultV, &primaryK); err != nil {
			continue
		}
		if strings.EqualFold(name, column) {
			return true
		}
	}
	return false
}

// SetEmbeddingMeta records the current embedding provider, model, and
// dimensions. Called after a successful reindex pass.
func (db *DB) SetEmbeddingMeta(provider, model string, dims int) error {
	if err := db.SetMeta("embed_provider", provider); err != nil {
		return err
	}
	if err := db.SetMeta("embed_model", model); err != nil {
		return err
	}
	return db.SetMeta("embed_dims", strconv.Itoa(dims))
}

// CheckEmbeddingMeta compares the given embedding config against what was
// used at the last reindex, returning an error on mismatch. A DB with no
// stored metadata is always compatible (never blocks first use or upgrade).
func (db *DB) CheckEmbeddingMeta(provider, model string, dims int) error {
	storedProvider, hasProvider := db.GetMeta("embed_provider")
	storedModel, hasModel := db.GetMeta("embed_model")
	storedDimsStr, hasDims := db.GetMeta("embed_dims")

	if !hasProvider && !hasModel && !hasDims {
		return nil
	}
	storedDims, _ := strconv.Atoi(storedDimsStr)

	if hasDims && dims > 0 && storedDims > 0 && storedDims != dims {
		return fmt.Errorf("embedding dimensions changed from %d to %d — run 'lmassist reindex --force' to rebuild", storedDims, dims)
	}
	if hasProvider && hasModel && (storedProvider != provider || storedModel != model) {
		return fmt.Errorf("embedding model changed from %s/%s to %s/%s — run 'lmassist reindex --force' to rebuild",
			storedProvider, storedModel, provider, model)
	}
	return nil
}

// FTSAvailable returns true if the FTS5 module is available.
func (db *DB) FTSAvailable() bool {
	return db.ftsAvailable
}

// IntegrityCheck runs SQLite PRAGMA integrity_check.
func (db *DB) IntegrityCheck() error {
	var result string
	if err := db.conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// RowCount returns the total number of vector rows, used by the context
// suggester to short-circuit when the store is empty.
func (db *DB) RowCount() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM vector_rows`).Scan(&n)
	return n, err
}
