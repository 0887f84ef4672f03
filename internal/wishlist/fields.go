package wishlist

import (
	"fmt"
	"strings"
)

// Canonical formData keys written by the current submission format.
const (
	FieldMaintainerEmail       = "maintainerEmail"
	FieldProjectTitle          = "projectTitle"
	FieldServices              = "services"
	FieldTechnologies          = "technologies"
	FieldUrgency               = "urgency"
	FieldProjectSize           = "projectSize"
	FieldTimeline              = "timeline"
	FieldOrganizationType      = "organizationType"
	FieldOrganizationName      = "organizationName"
	FieldAdditionalNotes       = "additionalNotes"
	FieldOpenToSponsorship     = "openToSponsorship"
	FieldPreferredPractitioner = "preferredPractitioner"
	FieldNomineeName           = "nomineeName"
	FieldNomineeEmail          = "nomineeEmail"
	FieldNomineeProfileURL     = "nomineeGithub"
	FieldRepositoryURL         = "repositoryUrl"
	FieldRepositoryName        = "repositoryName"
	FieldRepositoryOwner       = "repositoryUsername"
	FieldRepositoryDescription = "repositoryDescription"
	FieldIsUpdate              = "isUpdate"
	FieldIssueNumber           = "issueNumber"
)

// fieldAliases maps canonical keys to every key older records may use, in precedence order.
// The canonical key always comes first.
var fieldAliases = map[string][]string{
	FieldMaintainerEmail:       {"maintainerEmail", "email", "contactEmail"},
	FieldProjectTitle:          {"projectTitle", "projectName", "project", "title"},
	FieldServices:              {"services", "selectedServices", "wishes"},
	FieldTechnologies:          {"technologies", "ecosystems", "technology"},
	FieldUrgency:               {"urgency"},
	FieldProjectSize:           {"projectSize", "size"},
	FieldTimeline:              {"timeline"},
	FieldOrganizationType:      {"organizationType", "orgType"},
	FieldOrganizationName:      {"organizationName", "orgName", "organization"},
	FieldAdditionalNotes:       {"additionalNotes", "additionalContext", "notes", "description"},
	FieldOpenToSponsorship:     {"openToSponsorship", "sponsorship"},
	FieldPreferredPractitioner: {"preferredPractitioner", "practitioner"},
	FieldNomineeName:           {"nomineeName"},
	FieldNomineeEmail:          {"nomineeEmail"},
	FieldNomineeProfileURL:     {"nomineeGithub", "nomineeProfileUrl"},
	FieldRepositoryURL:         {"repositoryUrl", "repoUrl", "repository"},
	FieldRepositoryName:        {"repositoryName", "repoName"},
	FieldRepositoryOwner:       {"repositoryUsername", "repositoryOwner", "owner"},
}

// Aliases returns the precedence-ordered keys for a canonical field.
func Aliases(field string) []string {
	if keys, ok := fieldAliases[field]; ok {
		return keys
	}
	return []string{field}
}

// Resolve returns the first non-empty value among the aliases of field.
func Resolve(record map[string]any, field string) (any, bool) {
	for _, key := range Aliases(field) {
		v, ok := record[key]
		if !ok || isEmpty(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

// ResolveString resolves a field and renders it as a trimmed string.
func ResolveString(record map[string]any, field string) string {
	v, ok := Resolve(record, field)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

// ResolveStrings resolves a list field. A comma-separated string is split.
func ResolveStrings(record map[string]any, field string) []string {
	v, ok := Resolve(record, field)
	if !ok {
		return nil
	}
	var out []string
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range list {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" && item != nil {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(list, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// ResolveBool resolves a boolean field; "true"/"yes" strings count as true.
func ResolveBool(record map[string]any, field string) bool {
	v, ok := Resolve(record, field)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s == "true" || s == "yes" || s == "1"
	}
	return false
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

// HydrateResult is the outcome of loading a stored record into a draft.
type HydrateResult struct {
	Draft   *Draft
	Trimmed bool // services were truncated to the selection limit
}

// DraftFromRecord builds an editable draft from stored formData.
// Services beyond lim.MaxServices are dropped and Trimmed is set; OriginalServices
// records the kept selection.
func DraftFromRecord(formData map[string]any, lim Limits) HydrateResult {
	d := NewDraft()
	d.MaintainerEmail = ResolveString(formData, FieldMaintainerEmail)
	d.ProjectTitle = ResolveString(formData, FieldProjectTitle)
	d.Timeline = ResolveString(formData, FieldTimeline)
	d.AdditionalNotes = ResolveString(formData, FieldAdditionalNotes)
	d.OpenToSponsorship = ResolveBool(formData, FieldOpenToSponsorship)
	d.PreferredPractitioner = ResolveString(formData, FieldPreferredPractitioner)
	d.Organization = Organization{
		Type: ResolveString(formData, FieldOrganizationType),
		Name: ResolveString(formData, FieldOrganizationName),
	}
	d.Nominee = Nominee{
		Name:       ResolveString(formData, FieldNomineeName),
		Email:      ResolveString(formData, FieldNomineeEmail),
		ProfileURL: ResolveString(formData, FieldNomineeProfileURL),
	}

	if u := Urgency(strings.ToLower(ResolveString(formData, FieldUrgency))); u.Valid() {
		d.Urgency = u
	}
	if s := ProjectSize(strings.ToLower(ResolveString(formData, FieldProjectSize))); s.Valid() {
		d.ProjectSize = s
	}

	techs := ResolveStrings(formData, FieldTechnologies)
	if len(techs) > lim.MaxTechnologies {
		techs = techs[:lim.MaxTechnologies]
	}
	d.Technologies = techs

	result := HydrateResult{Draft: d}
	services := ResolveStrings(formData, FieldServices)
	if len(services) > lim.MaxServices {
		services = services[:lim.MaxServices]
		result.Trimmed = true
	}
	d.Services = services
	d.OriginalServices = append([]string(nil), services...)
	return result
}

// RepositoryFromRecord rebuilds the bound repository of a stored record.
func RepositoryFromRecord(rec StoredRecord) RepositoryCandidate {
	repo := RepositoryCandidate{
		URL:   rec.RepositoryURL,
		Name:  ResolveString(rec.FormData, FieldRepositoryName),
		Owner: ResolveString(rec.FormData, FieldRepositoryOwner),
	}
	if repo.URL == "" {
		repo.URL = ResolveString(rec.FormData, FieldRepositoryURL)
	}
	if repo.Name == "" || repo.Owner == "" {
		owner, name := SplitRepoURL(repo.URL)
		if repo.Name == "" {
			repo.Name = name
		}
		if repo.Owner == "" {
			repo.Owner = owner
		}
	}
	return repo
}
