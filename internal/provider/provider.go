// Package provider lists repositories and identities from code hosts.
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/oauth2"

	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// Names of the supported code hosts.
const (
	NameGitHub = "github"
	NameGitLab = "gitlab"
)

// DefaultTimeout caps a repository listing.
const DefaultTimeout = 10 * time.Second

// maxRepositories bounds how many repositories one listing returns.
const maxRepositories = 300

// Provider is a code host the user signed in with.
type Provider interface {
	Name() string
	User(ctx context.Context, token *oauth2.Token) (*wishlist.User, error)
	Repositories(ctx context.Context, token *oauth2.Token) ([]wishlist.RepositoryCandidate, error)
}

// flightKey identifies a token without keeping the secret as a map key.
func flightKey(token *oauth2.Token) string {
	sum := sha256.Sum256([]byte(token.AccessToken))
	return hex.EncodeToString(sum[:8])
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(n int) *int {
	return &n
}
