package wishlist

import (
	"net/url"
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeRepoURL returns the key used to match repository URLs: host and
// path, lowercased, without the scheme, "www.", a ".git" suffix, query,
// fragment or trailing slashes. http:// and https:// spellings of one
// repository share a key.
func NormalizeRepoURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		s = u.Host + u.Path
	} else if i := strings.IndexAny(s, "?#"); i >= 0 {
		// scheme-less input such as "github.com/acme/widget?tab=readme"
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimRight(s, "/")
	s = strings.TrimSuffix(s, ".git")
	return strings.TrimRight(s, "/")
}

// SplitRepoURL extracts owner and repository name from a code-host URL.
// Nested GitLab groups keep everything but the last segment as owner.
func SplitRepoURL(raw string) (owner, name string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", ""
	}
	path := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
