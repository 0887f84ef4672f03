package workflow

import (
	"github.com/oss-wishlist/wishlist/internal/validate"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// RepositoryView is one row of the repository list.
type RepositoryView struct {
	Repo     wishlist.RepositoryCandidate
	Existing *wishlist.ExistingWishlistRef
}

// CanCreate reports whether a new wishlist may be created for the repository.
func (r RepositoryView) CanCreate() bool {
	return r.Existing == nil
}

// ServiceView is one entry of the services picker.
type ServiceView struct {
	Service  wishlist.Service
	Selected bool
	// Original marks services that were part of the stored selection.
	Original bool
	// Disabled is set when the selection limit blocks adding this service.
	Disabled bool
}

// View is a consistent snapshot of everything a renderer needs.
type View struct {
	State          State
	User           *wishlist.User
	Authenticated  bool
	SignInRequired bool
	Loading        bool
	// ReposFailed is set while the last repository listing attempt failed.
	ReposFailed    bool
	Banner         string
	Warning        string
	Repositories   []RepositoryView
	Draft          *wishlist.Draft
	Services       []ServiceView
	TechnologyFull bool
	FieldResults   map[string]validate.Result
}

// View returns a snapshot of the controller.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:          c.state,
		User:           c.user,
		Authenticated:  c.authenticated,
		SignInRequired: c.signInRequired,
		Loading:        c.loading,
		ReposFailed:    c.reposFailed,
		Banner:         c.banner,
		Warning:        c.warning,
		FieldResults:   make(map[string]validate.Result, len(c.fieldResults)),
	}
	for k, r := range c.fieldResults {
		v.FieldResults[k] = r
	}
	for _, r := range c.repos {
		row := RepositoryView{Repo: r}
		if ref, ok := c.existing[wishlist.NormalizeRepoURL(r.URL)]; ok {
			ref := ref
			row.Existing = &ref
		}
		v.Repositories = append(v.Repositories, row)
	}
	if c.draft != nil {
		d := *c.draft
		d.Services = append([]string(nil), c.draft.Services...)
		d.Technologies = append([]string(nil), c.draft.Technologies...)
		d.OriginalServices = append([]string(nil), c.draft.OriginalServices...)
		v.Draft = &d
		canAdd := d.CanAddService(c.opts.Limits)
		for _, s := range c.opts.Catalog.Services() {
			selected := d.HasService(s.ID)
			v.Services = append(v.Services, ServiceView{
				Service:  s,
				Selected: selected,
				Original: d.IsOriginalService(s.ID),
				Disabled: !selected && !canAdd,
			})
		}
		v.TechnologyFull = validate.AtCapacity(len(d.Technologies), validate.SizeRule{MaxSize: c.opts.Limits.MaxTechnologies})
	}
	return v
}

// Step returns the current step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Step()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Username returns the login of the current user.
func (c *Controller) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Banner returns the current page-level message.
func (c *Controller) Banner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

// Warning returns the current non-blocking notice, such as a trimmed selection.
func (c *Controller) Warning() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warning
}

// Existing returns a copy of the existing-wishlist map keyed by normalized URL.
func (c *Controller) Existing() map[string]wishlist.ExistingWishlistRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]wishlist.ExistingWishlistRef, len(c.existing))
	for k, v := range c.existing {
		out[k] = v
	}
	return out
}

// Draft returns a copy of the current draft, or nil.
func (c *Controller) Draft() *wishlist.Draft {
	return c.View().Draft
}
