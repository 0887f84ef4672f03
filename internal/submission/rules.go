package submission

import (
	"fmt"
	"strings"

	"github.com/oss-wishlist/wishlist/internal/moderation"
	"github.com/oss-wishlist/wishlist/internal/validate"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// FieldPrefix qualifies draft fields in server error responses.
const FieldPrefix = "formData."

// Title and organization name lengths.
const (
	MaxTitleChars        = 100
	MaxOrganizationChars = 100
)

// FieldError is a blocking validation failure on one form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldResults runs every field validator over d and returns the result per
// canonical field key, warnings included.
func FieldResults(d *wishlist.Draft, lim wishlist.Limits) map[string]validate.Result {
	r := map[string]validate.Result{
		wishlist.FieldMaintainerEmail: validate.Email(d.MaintainerEmail),
		wishlist.FieldProjectTitle: validate.Length(d.ProjectTitle, validate.LengthRule{
			Label: "Project title", MinLength: 1, MaxLength: MaxTitleChars,
		}),
		wishlist.FieldServices: validate.ArraySize(len(d.Services), validate.SizeRule{
			Label: "services", MinSize: 1, MaxSize: lim.MaxServices,
		}),
		wishlist.FieldTechnologies: validate.ArraySize(len(d.Technologies), validate.SizeRule{
			Label: "technologies", MaxSize: lim.MaxTechnologies,
		}),
		wishlist.FieldAdditionalNotes: validate.Length(d.AdditionalNotes, validate.LengthRule{
			Label: "Additional notes", MinLength: 1, MaxLength: lim.NotesMaxChars,
		}),
		wishlist.FieldOrganizationName: validate.Length(d.Organization.Name, validate.LengthRule{
			Label: "Organization name", MaxLength: MaxOrganizationChars,
		}),
		wishlist.FieldNomineeEmail: validate.OptionalEmail(d.Nominee.Email),
	}
	if strings.TrimSpace(d.Nominee.ProfileURL) != "" {
		r[wishlist.FieldNomineeProfileURL] = validate.GitHubURL(d.Nominee.ProfileURL)
	}
	return r
}

// fieldOrder fixes the order in which blocking errors are reported.
var fieldOrder = []string{
	wishlist.FieldMaintainerEmail,
	wishlist.FieldProjectTitle,
	wishlist.FieldServices,
	wishlist.FieldTechnologies,
	wishlist.FieldUrgency,
	wishlist.FieldProjectSize,
	wishlist.FieldOrganizationName,
	wishlist.FieldAdditionalNotes,
	wishlist.FieldNomineeEmail,
	wishlist.FieldNomineeProfileURL,
}

// ValidateDraft returns the blocking errors that must prevent submission.
// Warnings such as overlength notes do not block. A nil catalog skips the
// unknown-service check.
func ValidateDraft(d *wishlist.Draft, lim wishlist.Limits, catalog *wishlist.Catalog) []FieldError {
	results := FieldResults(d, lim)
	if !d.Urgency.Valid() {
		results[wishlist.FieldUrgency] = validate.Result{Error: "Please choose an urgency", Severity: validate.SeverityError}
	}
	if !d.ProjectSize.Valid() {
		results[wishlist.FieldProjectSize] = validate.Result{Error: "Please choose a project size", Severity: validate.SeverityError}
	}
	if catalog != nil {
		for _, id := range d.Services {
			if _, ok := catalog.Lookup(id); !ok {
				results[wishlist.FieldServices] = validate.Result{
					Error:    fmt.Sprintf("Unknown service %q", id),
					Severity: validate.SeverityError,
				}
				break
			}
		}
	}

	var errs []FieldError
	for _, field := range fieldOrder {
		if res, ok := results[field]; ok && res.Blocking() {
			errs = append(errs, FieldError{Field: FieldPrefix + field, Message: res.Error})
		}
	}
	return errs
}

// ModerationFields returns the free-text fields screened by the moderation filter.
func ModerationFields(d *wishlist.Draft) []string {
	return []string{d.ProjectTitle, d.Organization.Name, d.AdditionalNotes}
}

// Moderate runs the moderation filter over the draft's free-text fields.
func Moderate(p moderation.Policy, d *wishlist.Draft) moderation.Result {
	return moderation.Check(p, ModerationFields(d)...)
}

// fieldLabels maps server field paths to display labels.
var fieldLabels = map[string]string{
	"formData.maintainerEmail":       "Maintainer Email",
	"formData.projectTitle":          "Project Title",
	"formData.services":              "Services",
	"formData.technologies":          "Technologies",
	"formData.urgency":               "Urgency",
	"formData.projectSize":           "Project Size",
	"formData.timeline":              "Timeline",
	"formData.organizationType":      "Organization Type",
	"formData.organizationName":      "Organization Name",
	"formData.additionalNotes":       "Additional Notes",
	"formData.preferredPractitioner": "Preferred Practitioner",
	"formData.nomineeName":           "Nominee Name",
	"formData.nomineeEmail":          "Nominee Email",
	"formData.nomineeGithub":         "Nominee GitHub Profile",
	"formData.repositoryUrl":         "Repository URL",
	"formData.repositoryName":        "Repository Name",
	"issueNumber":                    "Wishlist Number",
	"title":                          "Title",
}

// FriendlyField maps a field path to its display label, falling back to the path.
func FriendlyField(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}
