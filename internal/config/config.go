package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// ModerationConfig holds the policy parameters of the content moderation filter.
type ModerationConfig struct {
	// MaxLinks is the number of http(s):// occurrences tolerated across checked fields.
	MaxLinks int `json:"max_links,omitempty"`

	// CapsMinLength is the combined length above which the shouting check applies.
	CapsMinLength int `json:"caps_min_length,omitempty"`

	// CapsRatio is the uppercase-to-letters ratio above which text is rejected.
	CapsRatio float64 `json:"caps_ratio,omitempty"`

	// ExtraBlockedTerms are appended to the built-in blocked substrings.
	ExtraBlockedTerms []string `json:"extra_blocked_terms,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// BaseURL is the public URL of the web application (used for OAuth redirects and links).
	BaseURL string `json:"base_url,omitempty"`

	// Bind and Port are the listen address of the web server.
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`

	GitHubClientID     string `json:"github_client_id,omitempty"`
	GitHubClientSecret string `json:"github_client_secret,omitempty"`
	GitLabClientID     string `json:"gitlab_client_id,omitempty"`
	GitLabClientSecret string `json:"gitlab_client_secret,omitempty"`

	// AdminLogins lists accounts allowed to approve wishlists and practitioners,
	// as "provider:login" (e.g. "github:root"). A bare login means a GitHub
	// account. Matching is case-insensitive.
	AdminLogins []string `json:"admin_logins,omitempty"`

	// SessionTTLMinutes is the lifetime of a login session.
	SessionTTLMinutes int `json:"session_ttl_minutes,omitempty"`

	// RepoCacheTTLMinutes bounds how long a cached repository listing stays valid.
	RepoCacheTTLMinutes int `json:"repo_cache_ttl_minutes,omitempty"`

	// ProviderTimeoutSeconds caps repository listing calls to the code host.
	ProviderTimeoutSeconds int `json:"provider_timeout_seconds,omitempty"`

	MaxServices     int `json:"max_services,omitempty"`
	MaxTechnologies int `json:"max_technologies,omitempty"`
	NotesMaxChars   int `json:"notes_max_chars,omitempty"`

	Moderation ModerationConfig `json:"moderation,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:                "http://localhost:8080",
		Bind:                   "127.0.0.1",
		Port:                   8080,
		SessionTTLMinutes:      480,
		RepoCacheTTLMinutes:    5,
		ProviderTimeoutSeconds: 10,
		MaxServices:            3,
		MaxTechnologies:        2,
		NotesMaxChars:          1000,
		Moderation: ModerationConfig{
			MaxLinks:      3,
			CapsMinLength: 20,
			CapsRatio:     0.6,
		},
	}
}

// SessionTTL returns the session lifetime as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// RepoCacheTTL returns the repository cache lifetime as a duration.
func (c *Config) RepoCacheTTL() time.Duration {
	return time.Duration(c.RepoCacheTTLMinutes) * time.Minute
}

// ProviderTimeout returns the repository listing timeout as a duration.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// IsAdmin reports whether the provider-qualified identity is listed in
// AdminLogins.
func (c *Config) IsAdmin(identity string) bool {
	identity = wishlist.ParseIdentity(identity)
	if identity == "" {
		return false
	}
	for _, admin := range c.AdminLogins {
		if wishlist.ParseIdentity(admin) == identity {
			return true
		}
	}
	return false
}

// Load loads configuration from baseDir/config.json and applies environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.oss-wishlist.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides secrets and deployment settings from the environment.
// lookup is usually os.LookupEnv; tests pass a map-backed function.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("WISHLIST_BASE_URL", &cfg.BaseURL)
	set("WISHLIST_GITHUB_CLIENT_ID", &cfg.GitHubClientID)
	set("WISHLIST_GITHUB_CLIENT_SECRET", &cfg.GitHubClientSecret)
	set("WISHLIST_GITLAB_CLIENT_ID", &cfg.GitLabClientID)
	set("WISHLIST_GITLAB_CLIENT_SECRET", &cfg.GitLabClientSecret)

	if v, ok := lookup("WISHLIST_ADMINS"); ok {
		cfg.AdminLogins = mergeStringSlice(cfg.AdminLogins, strings.Split(v, ","))
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.BaseURL = firstString(overlay.BaseURL, base.BaseURL)
	result.Bind = firstString(overlay.Bind, base.Bind)
	result.GitHubClientID = firstString(overlay.GitHubClientID, base.GitHubClientID)
	result.GitHubClientSecret = firstString(overlay.GitHubClientSecret, base.GitHubClientSecret)
	result.GitLabClientID = firstString(overlay.GitLabClientID, base.GitLabClientID)
	result.GitLabClientSecret = firstString(overlay.GitLabClientSecret, base.GitLabClientSecret)

	result.Port = firstInt(overlay.Port, base.Port)
	result.SessionTTLMinutes = firstInt(overlay.SessionTTLMinutes, base.SessionTTLMinutes)
	result.RepoCacheTTLMinutes = firstInt(overlay.RepoCacheTTLMinutes, base.RepoCacheTTLMinutes)
	result.ProviderTimeoutSeconds = firstInt(overlay.ProviderTimeoutSeconds, base.ProviderTimeoutSeconds)
	result.MaxServices = firstInt(overlay.MaxServices, base.MaxServices)
	result.MaxTechnologies = firstInt(overlay.MaxTechnologies, base.MaxTechnologies)
	result.NotesMaxChars = firstInt(overlay.NotesMaxChars, base.NotesMaxChars)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.Moderation.MaxLinks = firstInt(overlay.Moderation.MaxLinks, base.Moderation.MaxLinks)
	result.Moderation.CapsMinLength = firstInt(overlay.Moderation.CapsMinLength, base.Moderation.CapsMinLength)
	result.Moderation.CapsRatio = overlay.Moderation.CapsRatio
	if result.Moderation.CapsRatio == 0 {
		result.Moderation.CapsRatio = base.Moderation.CapsRatio
	}
	result.Moderation.ExtraBlockedTerms = mergeStringSlice(base.Moderation.ExtraBlockedTerms, overlay.Moderation.ExtraBlockedTerms)

	result.AdminLogins = mergeStringSlice(base.AdminLogins, overlay.AdminLogins)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
