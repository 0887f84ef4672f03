package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/oss-wishlist/wishlist/internal/logging"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// DefaultGitLabURL is the public GitLab instance.
const DefaultGitLabURL = "https://gitlab.com"

// GitLab lists projects through the GitLab v4 REST API.
type GitLab struct {
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
	group   singleflight.Group
}

// NewGitLab returns a GitLab provider. An empty baseURL means gitlab.com.
func NewGitLab(baseURL string, timeout time.Duration, logger *zap.Logger) *GitLab {
	if baseURL == "" {
		baseURL = DefaultGitLabURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GitLab{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout, logger: logging.OrNop(logger)}
}

func (g *GitLab) Name() string { return NameGitLab }

type gitlabUser struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	PublicEmail string `json:"public_email"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url"`
}

type gitlabProject struct {
	Name              string  `json:"name"`
	PathWithNamespace string  `json:"path_with_namespace"`
	WebURL            string  `json:"web_url"`
	Description       *string `json:"description"`
	StarCount         *int    `json:"star_count"`
	Archived          bool    `json:"archived"`
	Namespace         struct {
		FullPath string `json:"full_path"`
	} `json:"namespace"`
}

// User returns the identity behind token.
func (g *GitLab) User(ctx context.Context, token *oauth2.Token) (*wishlist.User, error) {
	if token == nil {
		return nil, errors.New("missing oauth token")
	}
	var u gitlabUser
	if _, err := g.get(ctx, token, "/api/v4/user", nil, &u); err != nil {
		return nil, fmt.Errorf("gitlab user: %w", err)
	}
	email := u.PublicEmail
	if email == "" {
		email = u.Email
	}
	return &wishlist.User{
		ID:        strconv.FormatInt(u.ID, 10),
		Login:     u.Username,
		Name:      u.Name,
		Email:     email,
		AvatarURL: u.AvatarURL,
		Provider:  NameGitLab,
	}, nil
}

// Repositories lists projects the user is a member of, most recently active first.
func (g *GitLab) Repositories(ctx context.Context, token *oauth2.Token) ([]wishlist.RepositoryCandidate, error) {
	if token == nil {
		return nil, errors.New("missing oauth token")
	}
	v, err, _ := g.group.Do(flightKey(token), func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.listProjects(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return v.([]wishlist.RepositoryCandidate), nil
}

func (g *GitLab) listProjects(ctx context.Context, token *oauth2.Token) ([]wishlist.RepositoryCandidate, error) {
	q := url.Values{}
	q.Set("membership", "true")
	q.Set("min_access_level", "30")
	q.Set("order_by", "last_activity_at")
	q.Set("per_page", "100")

	var out []wishlist.RepositoryCandidate
	for page := 1; page > 0 && len(out) < maxRepositories; {
		q.Set("page", strconv.Itoa(page))
		var projects []gitlabProject
		next, err := g.get(ctx, token, "/api/v4/projects", q, &projects)
		if err != nil {
			return nil, fmt.Errorf("gitlab projects: %w", err)
		}
		for _, p := range projects {
			if p.Archived {
				continue
			}
			out = append(out, wishlist.RepositoryCandidate{
				Name:        p.Name,
				URL:         p.WebURL,
				Owner:       p.Namespace.FullPath,
				Description: p.Description,
				Stars:       p.StarCount,
			})
		}
		page = next
	}
	if len(out) > maxRepositories {
		out = out[:maxRepositories]
	}
	g.logger.Debug("listed gitlab projects", zap.Int("count", len(out)))
	return out, nil
}

// get decodes a JSON response and returns the X-Next-Page header (0 when absent).
func (g *GitLab) get(ctx context.Context, token *oauth2.Token, path string, q url.Values, out any) (int, error) {
	u := g.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)).Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	next, _ := strconv.Atoi(resp.Header.Get("X-Next-Page"))
	return next, nil
}
