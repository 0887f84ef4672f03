package submission

import (
	"fmt"
	"strings"

	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// RenderBody renders the human-readable markdown body of a wishlist.
func RenderBody(d *wishlist.Draft, repo wishlist.RepositoryCandidate, catalog *wishlist.Catalog) string {
	var b strings.Builder

	b.WriteString("## Project\n\n")
	fmt.Fprintf(&b, "**%s**\n\n", strings.TrimSpace(d.ProjectTitle))
	label := repo.Name
	if repo.Owner != "" {
		label = repo.Owner + "/" + repo.Name
	}
	if label == "" {
		label = repo.URL
	}
	fmt.Fprintf(&b, "- Repository: [%s](%s)\n", label, repo.URL)
	if repo.Description != nil && *repo.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", *repo.Description)
	}
	if repo.Language != nil && *repo.Language != "" {
		fmt.Fprintf(&b, "- Language: %s\n", *repo.Language)
	}

	b.WriteString("\n## Services Requested\n\n")
	for _, title := range catalog.Titles(d.Services) {
		fmt.Fprintf(&b, "- %s\n", title)
	}

	b.WriteString("\n## Details\n\n")
	fmt.Fprintf(&b, "- Urgency: %s\n", titleCase(string(d.Urgency)))
	fmt.Fprintf(&b, "- Project size: %s\n", titleCase(string(d.ProjectSize)))
	if t := strings.TrimSpace(d.Timeline); t != "" {
		fmt.Fprintf(&b, "- Timeline: %s\n", t)
	}
	if len(d.Technologies) > 0 {
		fmt.Fprintf(&b, "- Technologies: %s\n", strings.Join(d.Technologies, ", "))
	}
	if org := organizationLine(d.Organization); org != "" {
		fmt.Fprintf(&b, "- Organization: %s\n", org)
	}
	fmt.Fprintf(&b, "- Open to sponsorship: %s\n", yesNo(d.OpenToSponsorship))
	if d.PreferredPractitioner != "" {
		fmt.Fprintf(&b, "- Preferred practitioner: %s\n", d.PreferredPractitioner)
	}
	if !d.Nominee.Empty() && d.Nominee.Name != "" {
		fmt.Fprintf(&b, "- Nominated contact: %s\n", d.Nominee.Name)
	}

	if notes := strings.TrimSpace(d.AdditionalNotes); notes != "" {
		b.WriteString("\n## Additional Notes\n\n")
		b.WriteString(notes)
		b.WriteString("\n")
	}
	return b.String()
}

func organizationLine(o wishlist.Organization) string {
	t, n := strings.TrimSpace(o.Type), strings.TrimSpace(o.Name)
	switch {
	case t != "" && n != "":
		return fmt.Sprintf("%s (%s)", n, t)
	case n != "":
		return n
	}
	return t
}

func titleCase(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
