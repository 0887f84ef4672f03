package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.MaxServices != def.MaxServices {
		t.Fatalf("MaxServices = %d, want %d", cfg.MaxServices, def.MaxServices)
	}
	if cfg.RepoCacheTTL() != 5*time.Minute {
		t.Errorf("RepoCacheTTL() = %v, want 5m", cfg.RepoCacheTTL())
	}
	if cfg.ProviderTimeout() != 10*time.Second {
		t.Errorf("ProviderTimeout() = %v, want 10s", cfg.ProviderTimeout())
	}
	if cfg.Moderation.MaxLinks != 3 || cfg.Moderation.CapsMinLength != 20 || cfg.Moderation.CapsRatio != 0.6 {
		t.Errorf("Moderation = %+v, want defaults 3/20/0.6", cfg.Moderation)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	body := `{"port": 9090, "max_services": 5, "moderation": {"max_links": 1}}`
	if err := os.WriteFile(configPath, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.MaxServices != 5 {
		t.Errorf("MaxServices = %d, want 5", cfg.MaxServices)
	}
	if cfg.Moderation.MaxLinks != 1 {
		t.Errorf("Moderation.MaxLinks = %d, want 1", cfg.Moderation.MaxLinks)
	}
	// Unset nested values keep their defaults
	if cfg.Moderation.CapsRatio != 0.6 {
		t.Errorf("Moderation.CapsRatio = %v, want 0.6", cfg.Moderation.CapsRatio)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"WISHLIST_GITHUB_CLIENT_ID":     "gh-id",
		"WISHLIST_GITHUB_CLIENT_SECRET": " gh-secret ",
		"WISHLIST_ADMINS":               "alice, bob,",
		"WISHLIST_BASE_URL":             "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := DefaultConfig()
	cfg.AdminLogins = []string{"alice"}
	ApplyEnv(cfg, lookup)

	if cfg.GitHubClientID != "gh-id" {
		t.Errorf("GitHubClientID = %q, want gh-id", cfg.GitHubClientID)
	}
	if cfg.GitHubClientSecret != "gh-secret" {
		t.Errorf("GitHubClientSecret = %q, want trimmed gh-secret", cfg.GitHubClientSecret)
	}
	if cfg.BaseURL != DefaultConfig().BaseURL {
		t.Errorf("BaseURL = %q, empty env value must not override", cfg.BaseURL)
	}
	if len(cfg.AdminLogins) != 2 {
		t.Fatalf("AdminLogins = %v, want [alice bob]", cfg.AdminLogins)
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdminLogins = []string{"Alice", "GitLab:Carol"}

	if !cfg.IsAdmin("github:alice") {
		t.Error("IsAdmin(github:alice) = false, want true (bare entry means github, case-insensitive)")
	}
	if !cfg.IsAdmin("gitlab:carol") {
		t.Error("IsAdmin(gitlab:carol) = false, want true")
	}
	if cfg.IsAdmin("gitlab:alice") {
		t.Error("IsAdmin(gitlab:alice) = true, want false (same login on another provider)")
	}
	if cfg.IsAdmin("github:carol") {
		t.Error("IsAdmin(github:carol) = true, want false")
	}
	if cfg.IsAdmin("github:bob") {
		t.Error("IsAdmin(github:bob) = true, want false")
	}
	if cfg.IsAdmin("  ") {
		t.Error("IsAdmin(blank) = true, want false")
	}
}

func TestMerge_ArraysDeduplicated(t *testing.T) {
	base := &Config{DisabledTools: []string{"wishlist_close", " wishlist_approve "}}
	overlay := &Config{DisabledTools: []string{"wishlist_approve", "practitioner_approve"}}

	got := Merge(base, overlay)
	want := []string{"wishlist_close", "wishlist_approve", "practitioner_approve"}
	if len(got.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", got.DisabledTools, want)
	}
	for i := range want {
		if got.DisabledTools[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, got.DisabledTools[i], want[i])
		}
	}
}

func TestMerge_EmptyArraysNil(t *testing.T) {
	got := Merge(&Config{}, &Config{AdminLogins: []string{" "}})
	if got.AdminLogins != nil {
		t.Errorf("AdminLogins = %v, want nil", got.AdminLogins)
	}
}
