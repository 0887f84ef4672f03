package submission

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-wishlist/wishlist/internal/moderation"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

func validDraft() *wishlist.Draft {
	d := wishlist.NewDraft()
	d.MaintainerEmail = "maintainer@example.com"
	d.ProjectTitle = "Widget"
	d.Services = []string{"security-audit", "funding-strategy"}
	d.Technologies = []string{"Go"}
	d.AdditionalNotes = "We need an audit before 2.0."
	d.Organization = wishlist.Organization{Type: "foundation", Name: "Acme Foundation"}
	return d
}

func repo(name string) *wishlist.RepositoryCandidate {
	desc := "widgets for everyone"
	return &wishlist.RepositoryCandidate{
		Name:        name,
		URL:         "https://github.com/acme/" + name,
		Owner:       "acme",
		Description: &desc,
	}
}

func TestAssemble_Create(t *testing.T) {
	p, err := Assemble(Input{Draft: validDraft(), Selected: repo("widget")})
	require.NoError(t, err)

	assert.Equal(t, "Wishlist: Widget", p.Title)
	assert.False(t, p.IsUpdate)
	assert.Nil(t, p.IssueNumber)
	assert.Equal(t, SourceProvider, p.FormData[FieldRepositorySource])
	assert.Equal(t, "https://github.com/acme/widget", p.FormData[wishlist.FieldRepositoryURL])
	assert.Equal(t, "widgets for everyone", p.FormData[wishlist.FieldRepositoryDescription])
	assert.NotContains(t, p.FormData, wishlist.FieldIssueNumber)

	assert.Contains(t, p.Body, "- Security Audit\n")
	assert.Contains(t, p.Body, "- Funding Strategy\n")
	assert.Contains(t, p.Body, "[acme/widget](https://github.com/acme/widget)")
	assert.Contains(t, p.Labels, "service:security-audit")
}

func TestAssemble_Update(t *testing.T) {
	p, err := Assemble(Input{Draft: validDraft(), Manual: repo("widget"), IsUpdate: true, IssueNumber: 42})
	require.NoError(t, err)

	require.NotNil(t, p.IssueNumber)
	assert.Equal(t, 42, *p.IssueNumber)
	assert.Equal(t, true, p.FormData[wishlist.FieldIsUpdate])
	assert.Equal(t, 42, p.FormData[wishlist.FieldIssueNumber])
	assert.Equal(t, SourceManual, p.FormData[FieldRepositorySource])
}

func TestAssemble_RepositoryBinding(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		wantErr error
	}{
		{"neither", Input{Draft: validDraft()}, ErrNoRepository},
		{"both", Input{Draft: validDraft(), Selected: repo("a"), Manual: repo("b")}, ErrBothRepositories},
		{"update without number", Input{Draft: validDraft(), Selected: repo("a"), IsUpdate: true}, ErrUpdatePairing},
		{"number without update", Input{Draft: validDraft(), Selected: repo("a"), IssueNumber: 7}, ErrUpdatePairing},
		{"no draft", Input{Selected: repo("a")}, ErrNoDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPayloadCheck_Decoded(t *testing.T) {
	n := 5
	p := &Payload{
		IsUpdate:    true,
		IssueNumber: &n,
		FormData: map[string]any{
			"repositoryUrl":    "https://github.com/acme/widget",
			"repositorySource": "manual",
			"issueNumber":      float64(5),
		},
	}
	require.NoError(t, p.Check())

	p.FormData["issueNumber"] = float64(6)
	assert.ErrorIs(t, p.Check(), ErrUpdatePairing)

	p.FormData["issueNumber"] = float64(5)
	delete(p.FormData, "repositorySource")
	assert.ErrorIs(t, p.Check(), ErrNoRepository)
}

func TestValidateDraft(t *testing.T) {
	lim := wishlist.DefaultLimits()
	catalog := wishlist.DefaultCatalog()

	assert.Empty(t, ValidateDraft(validDraft(), lim, catalog))

	d := validDraft()
	d.ProjectTitle = "  "
	d.AdditionalNotes = ""
	d.Services = nil
	errs := ValidateDraft(d, lim, catalog)
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"formData.projectTitle", "formData.services", "formData.additionalNotes"}, fields)

	d = validDraft()
	d.Services = []string{"made-up"}
	errs = ValidateDraft(d, lim, catalog)
	require.Len(t, errs, 1)
	assert.Equal(t, "formData.services", errs[0].Field)
}

func TestValidateDraft_OverlengthNotesDoNotBlock(t *testing.T) {
	d := validDraft()
	d.AdditionalNotes = strings.Repeat("a", 1200)
	assert.Empty(t, ValidateDraft(d, wishlist.DefaultLimits(), nil))

	res := FieldResults(d, wishlist.DefaultLimits())[wishlist.FieldAdditionalNotes]
	assert.False(t, res.Valid)
	assert.False(t, res.Blocking())
}

func TestModerate(t *testing.T) {
	d := validDraft()
	d.AdditionalNotes = "http://a.example http://b.example http://c.example http://d.example"
	assert.True(t, Moderate(moderation.DefaultPolicy(), d).Rejected)
}

func TestFriendlyField(t *testing.T) {
	assert.Equal(t, "Project Title", FriendlyField("formData.projectTitle"))
	assert.Equal(t, "formData.somethingNew", FriendlyField("formData.somethingNew"))
}
