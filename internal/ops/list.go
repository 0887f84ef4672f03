package ops

import (
	"database/sql"
	"strings"

	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/submission"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Status     string // "open", "closed" or "" for both
	Approved   *bool  // nil lists approved and pending
	Maintainer string // optional filter: "provider:login", or a bare login on the default provider
	Limit      int    // default: 20, max: 100
	Offset     int    // default: 0
}

// WishlistSummary is the list view of one wishlist.
type WishlistSummary struct {
	Number        int      `json:"number"`
	Title         string   `json:"title"`
	ProjectTitle  string   `json:"projectTitle"`
	URL           string   `json:"url"`
	RepositoryURL string   `json:"repositoryUrl"`
	Services      []string `json:"services"`
	Urgency       string   `json:"urgency,omitempty"`
	Approved      bool     `json:"approved"`
	Status        string   `json:"status"`
	Maintainer    string   `json:"maintainer"`
	UpdatedAt     int64    `json:"updatedAt"`
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []WishlistSummary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// List retrieves wishlist summaries with pagination, most recently updated first.
func List(database *sql.DB, env Env, input ListInput) (*ListOutput, error) {
	var filters db.WishlistFilters
	switch s := wishlist.Status(strings.ToLower(strings.TrimSpace(input.Status))); s {
	case "":
	case wishlist.StatusOpen, wishlist.StatusClosed:
		filters.Status = &s
	default:
		return nil, errors.NewInvalidRequest("status must be open or closed")
	}
	filters.Approved = input.Approved
	if m := wishlist.ParseIdentity(input.Maintainer); m != "" {
		filters.Maintainer = &m
	}

	limit, offset := page(input.Limit, input.Offset)
	records, total, err := db.ListWishlists(database, filters, limit, offset)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	items := make([]WishlistSummary, 0, len(records))
	for _, rec := range records {
		items = append(items, summarize(env, rec))
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}

func summarize(env Env, rec wishlist.StoredRecord) WishlistSummary {
	services := wishlist.ResolveStrings(rec.FormData, wishlist.FieldServices)
	return WishlistSummary{
		Number:        rec.Number,
		Title:         rec.Title,
		ProjectTitle:  submission.ProjectTitle(rec.Title),
		URL:           env.IssueURL(rec.Number),
		RepositoryURL: rec.RepositoryURL,
		Services:      append([]string{}, env.ServiceCatalog().Titles(services)...),
		Urgency:       wishlist.ResolveString(rec.FormData, wishlist.FieldUrgency),
		Approved:      rec.Approved,
		Status:        string(rec.Status),
		Maintainer:    rec.Maintainer,
		UpdatedAt:     rec.UpdatedAt,
	}
}
