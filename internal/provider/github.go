package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/go-github/v71/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/oss-wishlist/wishlist/internal/logging"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// GitHub lists repositories through the GitHub REST API.
type GitHub struct {
	baseURL *url.URL
	timeout time.Duration
	logger  *zap.Logger
	group   singleflight.Group
}

// NewGitHub returns a GitHub provider. A nil baseURL means api.github.com.
func NewGitHub(baseURL *url.URL, timeout time.Duration, logger *zap.Logger) *GitHub {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GitHub{baseURL: baseURL, timeout: timeout, logger: logging.OrNop(logger)}
}

func (g *GitHub) Name() string { return NameGitHub }

func (g *GitHub) client(ctx context.Context, token *oauth2.Token) *github.Client {
	client := github.NewClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)))
	if g.baseURL != nil {
		client.BaseURL = g.baseURL
	}
	return client
}

// User returns the identity behind token.
func (g *GitHub) User(ctx context.Context, token *oauth2.Token) (*wishlist.User, error) {
	if token == nil {
		return nil, errors.New("missing oauth token")
	}
	user, _, err := g.client(ctx, token).Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("github user: %w", err)
	}
	return &wishlist.User{
		ID:        strconv.FormatInt(user.GetID(), 10),
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		Email:     user.GetEmail(),
		AvatarURL: user.GetAvatarURL(),
		Provider:  NameGitHub,
	}, nil
}

// Repositories lists repositories the user owns or maintains in an
// organization, most recently updated first. Concurrent calls for the same
// token share one request.
func (g *GitHub) Repositories(ctx context.Context, token *oauth2.Token) ([]wishlist.RepositoryCandidate, error) {
	if token == nil {
		return nil, errors.New("missing oauth token")
	}
	v, err, _ := g.group.Do(flightKey(token), func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.listRepositories(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return v.([]wishlist.RepositoryCandidate), nil
}

func (g *GitHub) listRepositories(ctx context.Context, token *oauth2.Token) ([]wishlist.RepositoryCandidate, error) {
	client := g.client(ctx, token)
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner,organization_member",
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []wishlist.RepositoryCandidate
	for {
		repos, resp, err := client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("github repositories: %w", err)
		}
		for _, r := range repos {
			if r.GetArchived() {
				continue
			}
			out = append(out, fromGitHub(r))
		}
		if resp.NextPage == 0 || len(out) >= maxRepositories {
			break
		}
		opts.Page = resp.NextPage
	}
	if len(out) > maxRepositories {
		out = out[:maxRepositories]
	}
	g.logger.Debug("listed github repositories", zap.Int("count", len(out)))
	return out, nil
}

func fromGitHub(r *github.Repository) wishlist.RepositoryCandidate {
	c := wishlist.RepositoryCandidate{
		Name:        r.GetName(),
		URL:         r.GetHTMLURL(),
		Owner:       r.GetOwner().GetLogin(),
		Description: strPtr(r.GetDescription()),
		Language:    strPtr(r.GetLanguage()),
	}
	if r.StargazersCount != nil {
		c.Stars = intPtr(r.GetStargazersCount())
	}
	return c
}
