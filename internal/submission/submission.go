// Package submission turns a validated draft into the outbound wishlist payload.
package submission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// TitlePrefix starts every wishlist title.
const TitlePrefix = "Wishlist: "

// Repository sources recorded in formData.
const (
	SourceProvider = "provider"
	SourceManual   = "manual"
)

// FieldRepositorySource records how the bound repository was chosen.
const FieldRepositorySource = "repositorySource"

var (
	ErrNoRepository     = errors.New("a repository must be selected or entered")
	ErrBothRepositories = errors.New("selected and manual repository are mutually exclusive")
	ErrUpdatePairing    = errors.New("isUpdate and issueNumber must be set together")
	ErrNoDraft          = errors.New("draft is required")
)

// Input is everything Assemble needs.
type Input struct {
	Draft *wishlist.Draft

	// Exactly one of Selected and Manual must be set.
	Selected *wishlist.RepositoryCandidate
	Manual   *wishlist.RepositoryCandidate

	IsUpdate    bool
	IssueNumber int

	// Catalog resolves service titles; nil means the embedded catalog.
	Catalog *wishlist.Catalog
}

// Payload is the body of a submit-wishlist request.
type Payload struct {
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Labels      []string       `json:"labels"`
	IsUpdate    bool           `json:"isUpdate"`
	IssueNumber *int           `json:"issueNumber,omitempty"`
	FormData    map[string]any `json:"formData"`
}

// Assemble builds the submission payload. It fails when the repository
// binding or the create/update pairing is inconsistent.
func Assemble(in Input) (*Payload, error) {
	if in.Draft == nil {
		return nil, ErrNoDraft
	}
	repo, source, err := boundRepository(in.Selected, in.Manual)
	if err != nil {
		return nil, err
	}
	if in.IsUpdate != (in.IssueNumber > 0) {
		return nil, ErrUpdatePairing
	}
	catalog := in.Catalog
	if catalog == nil {
		catalog = wishlist.DefaultCatalog()
	}

	d := in.Draft
	p := &Payload{
		Title:    TitlePrefix + strings.TrimSpace(d.ProjectTitle),
		Body:     RenderBody(d, repo, catalog),
		Labels:   Labels(d),
		IsUpdate: in.IsUpdate,
		FormData: FormData(d, repo, source),
	}
	if in.IsUpdate {
		n := in.IssueNumber
		p.IssueNumber = &n
		p.FormData[wishlist.FieldIsUpdate] = true
		p.FormData[wishlist.FieldIssueNumber] = n
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

func boundRepository(selected, manual *wishlist.RepositoryCandidate) (wishlist.RepositoryCandidate, string, error) {
	switch {
	case selected != nil && manual != nil:
		return wishlist.RepositoryCandidate{}, "", ErrBothRepositories
	case selected != nil:
		return *selected, SourceProvider, nil
	case manual != nil:
		return *manual, SourceManual, nil
	}
	return wishlist.RepositoryCandidate{}, "", ErrNoRepository
}

// FormData flattens the draft and its repository into the stored key set.
func FormData(d *wishlist.Draft, repo wishlist.RepositoryCandidate, source string) map[string]any {
	fd := map[string]any{
		wishlist.FieldMaintainerEmail:   strings.TrimSpace(d.MaintainerEmail),
		wishlist.FieldProjectTitle:      strings.TrimSpace(d.ProjectTitle),
		wishlist.FieldServices:          append([]string{}, d.Services...),
		wishlist.FieldTechnologies:      append([]string{}, d.Technologies...),
		wishlist.FieldUrgency:           string(d.Urgency),
		wishlist.FieldProjectSize:       string(d.ProjectSize),
		wishlist.FieldTimeline:          strings.TrimSpace(d.Timeline),
		wishlist.FieldOrganizationType:  d.Organization.Type,
		wishlist.FieldOrganizationName:  strings.TrimSpace(d.Organization.Name),
		wishlist.FieldAdditionalNotes:   strings.TrimSpace(d.AdditionalNotes),
		wishlist.FieldOpenToSponsorship: d.OpenToSponsorship,
		wishlist.FieldRepositoryURL:     repo.URL,
		wishlist.FieldRepositoryName:    repo.Name,
		wishlist.FieldRepositoryOwner:   repo.Owner,
		FieldRepositorySource:           source,
		wishlist.FieldIsUpdate:          false,
	}
	if repo.Description != nil {
		fd[wishlist.FieldRepositoryDescription] = *repo.Description
	}
	if d.PreferredPractitioner != "" {
		fd[wishlist.FieldPreferredPractitioner] = d.PreferredPractitioner
	}
	if !d.Nominee.Empty() {
		fd[wishlist.FieldNomineeName] = d.Nominee.Name
		fd[wishlist.FieldNomineeEmail] = d.Nominee.Email
		fd[wishlist.FieldNomineeProfileURL] = d.Nominee.ProfileURL
	}
	return fd
}

// Labels derives the record labels from the draft.
func Labels(d *wishlist.Draft) []string {
	labels := []string{"wishlist"}
	if d.Urgency != "" {
		labels = append(labels, "urgency:"+string(d.Urgency))
	}
	if d.ProjectSize != "" {
		labels = append(labels, "size:"+string(d.ProjectSize))
	}
	for _, id := range d.Services {
		labels = append(labels, "service:"+id)
	}
	if d.OpenToSponsorship {
		labels = append(labels, "sponsorship")
	}
	return labels
}

// Check enforces the payload invariants: one bound repository from exactly one
// source, and isUpdate paired with a positive issue number.
// The server runs it on decoded payloads too.
func (p *Payload) Check() error {
	if p == nil {
		return ErrNoDraft
	}
	hasNumber := p.IssueNumber != nil && *p.IssueNumber > 0
	if p.IsUpdate != hasNumber {
		return ErrUpdatePairing
	}
	if p.FormData == nil {
		return ErrNoRepository
	}
	if wishlist.ResolveString(p.FormData, wishlist.FieldRepositoryURL) == "" {
		return ErrNoRepository
	}
	switch src, _ := p.FormData[FieldRepositorySource].(string); src {
	case SourceProvider, SourceManual:
	case "":
		return ErrNoRepository
	default:
		return fmt.Errorf("unknown repository source %q", src)
	}
	if hasNumber {
		if n := wishlist.ResolveString(p.FormData, wishlist.FieldIssueNumber); n != "" && n != fmt.Sprint(*p.IssueNumber) {
			return ErrUpdatePairing
		}
	}
	return nil
}

// ProjectTitle strips the title prefix.
func ProjectTitle(title string) string {
	return strings.TrimSpace(strings.TrimPrefix(title, TitlePrefix))
}
