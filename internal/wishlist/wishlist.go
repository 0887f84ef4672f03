package wishlist

import (
	"errors"
	"slices"
	"strings"
)

// Urgency of a wishlist request.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Valid reports whether u is one of the known urgencies.
func (u Urgency) Valid() bool {
	return u == UrgencyLow || u == UrgencyMedium || u == UrgencyHigh
}

// ProjectSize of the project asking for help.
type ProjectSize string

const (
	SizeSmall  ProjectSize = "small"
	SizeMedium ProjectSize = "medium"
	SizeLarge  ProjectSize = "large"
)

// Valid reports whether s is one of the known project sizes.
func (s ProjectSize) Valid() bool {
	return s == SizeSmall || s == SizeMedium || s == SizeLarge
}

// Organization describes who stands behind the project.
type Organization struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Nominee is a person the maintainer suggests as a contact.
type Nominee struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

// Empty reports whether no nominee field is set.
func (n Nominee) Empty() bool {
	return n.Name == "" && n.Email == "" && n.ProfileURL == ""
}

// Limits bounds the multi-select fields of a draft.
type Limits struct {
	MaxServices     int
	MaxTechnologies int
	NotesMaxChars   int
}

// DefaultLimits returns the standard selection limits.
func DefaultLimits() Limits {
	return Limits{MaxServices: 3, MaxTechnologies: 2, NotesMaxChars: 1000}
}

var (
	// ErrServiceLimit is returned when selecting a service beyond MaxServices.
	ErrServiceLimit = errors.New("service selection limit reached")
	// ErrTechnologyLimit is returned when adding a technology beyond MaxTechnologies.
	ErrTechnologyLimit = errors.New("technology limit reached")
)

// Draft is the in-progress form state for one wishlist submission.
type Draft struct {
	MaintainerEmail       string
	ProjectTitle          string
	Services              []string
	Technologies          []string
	Urgency               Urgency
	ProjectSize           ProjectSize
	Timeline              string
	Organization          Organization
	AdditionalNotes       string
	OpenToSponsorship     bool
	PreferredPractitioner string
	Nominee               Nominee

	// OriginalServices is the selection loaded from a stored record in edit mode.
	// It never changes while the user edits Services.
	OriginalServices []string
}

// NewDraft returns an empty draft with the default enum values.
func NewDraft() *Draft {
	return &Draft{
		Urgency:     UrgencyMedium,
		ProjectSize: SizeMedium,
	}
}

// HasService reports whether id is currently selected.
func (d *Draft) HasService(id string) bool {
	return slices.Contains(d.Services, id)
}

// IsOriginalService reports whether id was part of the stored selection.
func (d *Draft) IsOriginalService(id string) bool {
	return slices.Contains(d.OriginalServices, id)
}

// ToggleService selects or deselects a service.
// Selecting beyond lim.MaxServices returns ErrServiceLimit and leaves the selection unchanged.
func (d *Draft) ToggleService(id string, lim Limits) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("service id must not be empty")
	}
	if i := slices.Index(d.Services, id); i >= 0 {
		d.Services = slices.Delete(slices.Clone(d.Services), i, i+1)
		return nil
	}
	if len(d.Services) >= lim.MaxServices {
		return ErrServiceLimit
	}
	d.Services = append(slices.Clone(d.Services), id)
	return nil
}

// CanAddService reports whether another service may be selected.
func (d *Draft) CanAddService(lim Limits) bool {
	return len(d.Services) < lim.MaxServices
}

// AddTechnology adds a technology tag.
// Duplicates (case-insensitive) are ignored; a tag beyond lim.MaxTechnologies returns ErrTechnologyLimit.
func (d *Draft) AddTechnology(tag string, lim Limits) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return errors.New("technology must not be empty")
	}
	if d.HasTechnology(tag) {
		return nil
	}
	if len(d.Technologies) >= lim.MaxTechnologies {
		return ErrTechnologyLimit
	}
	d.Technologies = append(slices.Clone(d.Technologies), tag)
	return nil
}

// HasTechnology reports whether tag is already listed. Tags match after
// Normalize, so "Node  JS" and "node js" are the same tag.
func (d *Draft) HasTechnology(tag string) bool {
	key := Normalize(tag)
	return slices.ContainsFunc(d.Technologies, func(t string) bool {
		return Normalize(t) == key
	})
}

// RemoveTechnology removes a technology tag if present.
func (d *Draft) RemoveTechnology(tag string) {
	key := Normalize(tag)
	d.Technologies = slices.DeleteFunc(slices.Clone(d.Technologies), func(t string) bool {
		return Normalize(t) == key
	})
}

// RepositoryCandidate is a code-hosting repository a wishlist may be attached to.
type RepositoryCandidate struct {
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Owner       string  `json:"owner"`
	Description *string `json:"description,omitempty"`
	Language    *string `json:"language,omitempty"`
	Stars       *int    `json:"stars,omitempty"`
}

// ExistingWishlistRef points at the wishlist already recorded for a repository.
type ExistingWishlistRef struct {
	IssueNumber  int    `json:"issueNumber"`
	IssueURL     string `json:"issueUrl"`
	Approved     bool   `json:"isApproved"`
	ProjectTitle string `json:"projectTitle"`
}

// ExistenceResult is one entry of the bulk existence-check response.
type ExistenceResult struct {
	Exists       bool   `json:"exists"`
	IssueURL     string `json:"issueUrl,omitempty"`
	IssueNumber  int    `json:"issueNumber,omitempty"`
	IsApproved   bool   `json:"isApproved,omitempty"`
	ProjectTitle string `json:"projectTitle,omitempty"`
}

// Ref converts a positive existence result into an ExistingWishlistRef.
func (r ExistenceResult) Ref() (ExistingWishlistRef, bool) {
	if !r.Exists {
		return ExistingWishlistRef{}, false
	}
	return ExistingWishlistRef{
		IssueNumber:  r.IssueNumber,
		IssueURL:     r.IssueURL,
		Approved:     r.IsApproved,
		ProjectTitle: r.ProjectTitle,
	}, true
}

// Status of a stored wishlist.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// StoredRecord is a persisted wishlist as returned by wishlist-by-id.
// FormData keeps the raw stored keys, which may use historical field names.
type StoredRecord struct {
	ID            string         `json:"id"`
	Number        int            `json:"number"`
	URL           string         `json:"url"`
	Title         string         `json:"title"`
	Body          string         `json:"body,omitempty"`
	Labels        []string       `json:"labels,omitempty"`
	Approved      bool           `json:"approved"`
	Status        Status         `json:"status"`
	RepositoryURL string         `json:"repositoryUrl"`
	Maintainer    string         `json:"maintainer"`
	FormData      map[string]any `json:"formData"`
	CreatedAt     int64          `json:"createdAt"`
	UpdatedAt     int64          `json:"updatedAt"`
	ClosedAt      *int64         `json:"closedAt,omitempty"`
}
