package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/oss-wishlist/wishlist/internal/config"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 3

// FileName is the database file created under the base directory.
const FileName = "wishlist.db"

// Init initializes the SQLite database at baseDir/wishlist.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.oss-wishlist.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: wishlists and practitioners
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS wishlists (
		  id                  TEXT PRIMARY KEY,
		  number              INTEGER NOT NULL UNIQUE,
		  repository_url      TEXT NOT NULL,
		  repository_url_norm TEXT NOT NULL,
		  title               TEXT NOT NULL,
		  body                TEXT NOT NULL,
		  form_json           TEXT NOT NULL,
		  labels_json         TEXT,
		  approved            INTEGER NOT NULL DEFAULT 0,
		  status              TEXT NOT NULL DEFAULT 'open',
		  maintainer          TEXT NOT NULL,
		  created_at          INTEGER NOT NULL,
		  updated_at          INTEGER NOT NULL,
		  closed_at           INTEGER
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_wishlists_open_repo
		ON wishlists(repository_url_norm)
		WHERE status = 'open';

		CREATE INDEX IF NOT EXISTS idx_wishlists_status_updated
		ON wishlists(status, approved, updated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_wishlists_maintainer
		ON wishlists(maintainer, updated_at DESC);

		CREATE TABLE IF NOT EXISTS practitioners (
		  id            TEXT PRIMARY KEY,
		  login         TEXT NOT NULL,
		  name          TEXT NOT NULL,
		  email         TEXT NOT NULL,
		  title         TEXT,
		  company       TEXT,
		  services_json TEXT NOT NULL,
		  profile_url   TEXT,
		  approved      INTEGER NOT NULL DEFAULT 0,
		  created_at    INTEGER NOT NULL,
		  updated_at    INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_practitioners_login
		ON practitioners(login);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: key/value table backing the client session cache
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS session_cache (
		  key        TEXT PRIMARY KEY,
		  value      BLOB NOT NULL,
		  updated_at INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	// Migration 2 -> 3: provider-qualified maintainers, scheme-less repository keys
	if version < 3 {
		if _, err := db.Exec(`UPDATE wishlists
			SET maintainer = 'github:' || lower(maintainer)
			WHERE instr(maintainer, ':') = 0`); err != nil {
			return fmt.Errorf("migration 3 failed: %w", err)
		}
		if _, err := db.Exec(`UPDATE OR IGNORE practitioners
			SET login = 'github:' || lower(login)
			WHERE instr(login, ':') = 0`); err != nil {
			return fmt.Errorf("migration 3 failed: %w", err)
		}
		if err := rekeyRepositories(db); err != nil {
			return fmt.Errorf("migration 3 failed: %w", err)
		}
		if err := SetUserVersion(db, 3); err != nil {
			return err
		}
	}

	return nil
}

// rekeyRepositories recomputes repository_url_norm for every wishlist. A row
// whose new key collides with another open wishlist keeps its old key.
func rekeyRepositories(db *sql.DB) error {
	rows, err := db.Query(`SELECT id, repository_url FROM wishlists ORDER BY number`)
	if err != nil {
		return err
	}
	type row struct{ id, url string }
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.url); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range all {
		_, err := db.Exec(`UPDATE wishlists SET repository_url_norm = ? WHERE id = ?`,
			wishlist.NormalizeRepoURL(r.url), r.id)
		if err != nil && !isUniqueConstraintError(err) {
			return err
		}
	}
	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
