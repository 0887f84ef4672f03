package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInit(t *testing.T) {
	// Use temp directory for test isolation
	tmpDir := t.TempDir()

	db, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	// Verify database file was created
	dbPath := filepath.Join(tmpDir, FileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file not created at %s", dbPath)
	}

	// Verify WAL mode is active
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}

	for _, table := range []string{"wishlists", "practitioners", "session_cache"} {
		var name string
		err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}
}

func TestInit_CreatesDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	baseDir := filepath.Join(tmpDir, "nested", "path", ".oss-wishlist")

	db, err := Init(baseDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	// Verify nested directories were created
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		t.Errorf("base directory not created at %s", baseDir)
	}
}

func TestUserVersion(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	// After Init, version should be CurrentSchemaVersion (migration ran)
	version, err := GetUserVersion(db)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version after Init = %d, want %d", version, CurrentSchemaVersion)
	}

	// Test setting a higher version
	if err := SetUserVersion(db, 99); err != nil {
		t.Fatalf("SetUserVersion() error = %v", err)
	}

	// Verify version was set
	version, err = GetUserVersion(db)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != 99 {
		t.Errorf("user_version = %d, want 99", version)
	}
}

func TestInit_MigrationIdempotent(t *testing.T) {
	tmpDir := t.TempDir()

	// First Init
	db1, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	db1.Close()

	// Second Init on same DB should succeed (migrations skip if already applied)
	db2, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer db2.Close()

	// Version should still be CurrentSchemaVersion
	version, err := GetUserVersion(db2)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version after second Init = %d, want %d", version, CurrentSchemaVersion)
	}
}

func TestInit_SchemaIndexes(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	// Verify all indexes were created
	indexes := []string{
		"idx_wishlists_open_repo",
		"idx_wishlists_status_updated",
		"idx_wishlists_maintainer",
		"idx_practitioners_login",
	}

	for _, idx := range indexes {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&name)
		if err != nil {
			t.Errorf("index %s not found: %v", idx, err)
		}
	}
}

func TestInit_Migration3RekeysLegacyRows(t *testing.T) {
	tmpDir := t.TempDir()

	db1, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	// Rows as written before provider-qualified maintainers
	legacy := []struct {
		id, url, norm, status, maintainer string
		number                            int
	}{
		{"01A", "https://github.com/acme/one", "https://github.com/acme/one", "open", "Alice", 1},
		{"01B", "http://github.com/acme/one", "http://github.com/acme/one", "open", "bob", 2},
		{"01C", "https://gitlab.com/g/two", "https://gitlab.com/g/two", "open", "gitlab:carol", 3},
	}
	for _, r := range legacy {
		_, err := db1.Exec(`INSERT INTO wishlists
			(id, number, repository_url, repository_url_norm, title, body, form_json, status, maintainer, created_at, updated_at)
			VALUES (?, ?, ?, ?, 't', 'b', '{}', ?, ?, 1, 1)`,
			r.id, r.number, r.url, r.norm, r.status, r.maintainer)
		if err != nil {
			t.Fatalf("insert legacy row: %v", err)
		}
	}
	if _, err := db1.Exec(`INSERT INTO practitioners
		(id, login, name, email, services_json, created_at, updated_at)
		VALUES ('P1', 'Dave', 'Dave', 'd@example.com', '[]', 1, 1)`); err != nil {
		t.Fatalf("insert legacy practitioner: %v", err)
	}
	if err := SetUserVersion(db1, 2); err != nil {
		t.Fatalf("SetUserVersion() error = %v", err)
	}
	db1.Close()

	db2, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer db2.Close()

	want := map[string][2]string{
		"01A": {"github:alice", "github.com/acme/one"},
		// collides with 01A under the new key, keeps its old one
		"01B": {"github:bob", "http://github.com/acme/one"},
		"01C": {"gitlab:carol", "gitlab.com/g/two"},
	}
	for id, w := range want {
		var maintainer, norm string
		if err := db2.QueryRow(`SELECT maintainer, repository_url_norm FROM wishlists WHERE id = ?`, id).Scan(&maintainer, &norm); err != nil {
			t.Fatalf("select %s: %v", id, err)
		}
		if maintainer != w[0] || norm != w[1] {
			t.Errorf("%s = (%q, %q), want (%q, %q)", id, maintainer, norm, w[0], w[1])
		}
	}

	var login string
	if err := db2.QueryRow(`SELECT login FROM practitioners WHERE id = 'P1'`).Scan(&login); err != nil {
		t.Fatalf("select practitioner: %v", err)
	}
	if login != "github:dave" {
		t.Errorf("practitioner login = %q, want github:dave", login)
	}
}
