package ops

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/submission"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// CheckExistingInput contains parameters for the CheckExisting operation.
type CheckExistingInput struct {
	RepositoryURLs []string
}

// CheckExisting reports, for every requested URL, whether an open wishlist
// is bound to that repository. Matching ignores case, the scheme, "www.",
// a ".git" suffix and trailing slashes. The result is keyed by the URLs as
// given.
func CheckExisting(database *sql.DB, env Env, input CheckExistingInput) (map[string]wishlist.ExistenceResult, error) {
	if len(input.RepositoryURLs) > MaxCheckURLs {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("at most %d repository URLs per request", MaxCheckURLs))
	}

	norms := make([]string, 0, len(input.RepositoryURLs))
	seen := make(map[string]bool)
	for _, u := range input.RepositoryURLs {
		n := wishlist.NormalizeRepoURL(u)
		if n != "" && !seen[n] {
			seen[n] = true
			norms = append(norms, n)
		}
	}

	found, err := db.FindOpenByRepoURLs(database, norms)
	if err != nil {
		return nil, err
	}

	out := make(map[string]wishlist.ExistenceResult, len(input.RepositoryURLs))
	for _, u := range input.RepositoryURLs {
		rec, ok := found[wishlist.NormalizeRepoURL(u)]
		if !ok {
			out[u] = wishlist.ExistenceResult{Exists: false}
			continue
		}
		out[u] = wishlist.ExistenceResult{
			Exists:       true,
			IssueURL:     env.IssueURL(rec.Number),
			IssueNumber:  rec.Number,
			IsApproved:   rec.Approved,
			ProjectTitle: submission.ProjectTitle(rec.Title),
		}
	}
	return out, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
