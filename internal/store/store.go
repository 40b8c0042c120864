package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quaketools/evcat/internal/catalog"
)

// Schema version tracking:
// 1 - Initial schema (events table, time index)
const currentSchemaVersion = 1

// Store provides durable storage for event version records.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db     *sql.DB
	schema *catalog.Schema
	path   string
}

// Create initializes a new catalog file at the given path with the
// configured field schema. Fails if the file already exists.
func Create(path string, schema *catalog.Schema) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("catalog %q already exists", path)
	}
	return open(path, schema)
}

// Open opens an existing catalog file. Fails if the file does not exist or
// if its column layout does not match the configured schema: the extra-field
// configuration is fixed for the lifetime of a catalog.
func Open(path string, schema *catalog.Schema) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("catalog %q does not exist (run initdb first)", path)
	}
	s, err := open(path, schema)
	if err != nil {
		return nil, err
	}
	if err := s.verifyColumns(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// open creates or opens the database and applies pragmas, DDL, and
// migrations. Idempotent.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout for lock contention, below which our own retry loop sits
//   - immediate transactions so writers take the lock up front
func open(path string, schema *catalog.Schema) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, schema: schema, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Schema returns the field schema this catalog was opened with.
func (s *Store) Schema() *catalog.Schema {
	return s.schema
}

// Path returns the catalog file path.
func (s *Store) Path() string {
	return s.path
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 250",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// columnType maps a declared field type to its SQLite column type.
// Timestamps are stored as fixed-layout UTC text so that lexicographic
// comparison in SQL matches chronological order.
func columnType(ft catalog.FieldType) string {
	switch ft {
	case catalog.TypeInteger:
		return "INTEGER"
	case catalog.TypeReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// applySchema creates the events table from the configured field set and
// runs migrations. Idempotent.
func applySchema(db *sql.DB, schema *catalog.Schema) error {
	var defs []string
	for _, f := range schema.Fields() {
		def := f.Name + " " + columnType(f.Type)
		if !f.Nullable && !f.Extra {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS events (%s, PRIMARY KEY (evid, ver))",
		strings.Join(defs, ", "))
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_events_time ON events(time)"); err != nil {
		return fmt.Errorf("failed to create time index: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("catalog was written by a newer version (schema %d, supported %d)",
			version, currentSchemaVersion)
	}

	// No incremental migrations yet; version 0 databases get the full DDL
	// above and are stamped with the current version.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyColumns checks that the stored column layout matches the configured
// schema. Changing the extra-field configuration after initialization is
// undefined, so a mismatch is refused outright.
func (s *Store) verifyColumns() error {
	rows, err := s.db.Query("PRAGMA table_info(events)")
	if err != nil {
		return fmt.Errorf("read table info: %w", err)
	}
	defer rows.Close()

	var stored []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &primaryKey); err != nil {
			return fmt.Errorf("scan table info: %w", err)
		}
		stored = append(stored, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate table info: %w", err)
	}

	want := s.schema.FieldNames()
	if len(stored) != len(want) {
		return fmt.Errorf("catalog has %d columns, configuration declares %d; "+
			"the extra-field configuration cannot change after initdb", len(stored), len(want))
	}
	for i := range want {
		if stored[i] != want[i] {
			return fmt.Errorf("catalog column %d is %q, configuration declares %q; "+
				"the extra-field configuration cannot change after initdb", i, stored[i], want[i])
		}
	}
	return nil
}
