package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oss-wishlist/wishlist/internal/logging"
	"github.com/oss-wishlist/wishlist/internal/moderation"
	"github.com/oss-wishlist/wishlist/internal/sessioncache"
	"github.com/oss-wishlist/wishlist/internal/submission"
	"github.com/oss-wishlist/wishlist/internal/validate"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// RepositoryTimeout caps a repository listing request.
const RepositoryTimeout = 10 * time.Second

// API is the server surface the controller talks to.
type API interface {
	Session(ctx context.Context) (*wishlist.SessionInfo, error)
	Repositories(ctx context.Context) ([]wishlist.RepositoryCandidate, error)
	CheckExisting(ctx context.Context, urls []string) (map[string]wishlist.ExistenceResult, error)
	Wishlist(ctx context.Context, number int) (*wishlist.StoredRecord, error)
	Submit(ctx context.Context, p *submission.Payload) (*wishlist.SubmitResult, error)
	Close(ctx context.Context, number int) (*wishlist.CloseResult, error)
}

// ConfirmFunc asks the user to confirm a destructive action.
type ConfirmFunc func(prompt string) bool

// Options configures a Controller.
type Options struct {
	API     API
	Cache   *sessioncache.Cache
	Limits  wishlist.Limits
	Policy  moderation.Policy
	Catalog *wishlist.Catalog
	// BaseURL prefixes the post-submit redirect URL.
	BaseURL string
	Confirm ConfirmFunc
	Logger  *zap.Logger
}

var (
	// ErrBusy is returned while another write request is in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrNotConfirmed is returned when the user declines a destructive action.
	ErrNotConfirmed = errors.New("action not confirmed")
	// ErrNotOnForm is returned for form operations outside the wishlist step.
	ErrNotOnForm = errors.New("no wishlist form is open")
	// ErrUnknownRepository is returned when a repository URL is not in the listing.
	ErrUnknownRepository = errors.New("repository not in list")
	// ErrNoExistingWishlist is returned when a repository has no wishlist to edit or close.
	ErrNoExistingWishlist = errors.New("repository has no wishlist")
	// ErrMalformedResponse marks a server reply that could not be decoded.
	ErrMalformedResponse = errors.New("malformed server response")
)

// Messages shown to the user.
const (
	msgGenericFailure  = "Something went wrong. Please try again or contact support."
	msgReposFailed     = "We couldn't load your repositories. Please try again."
	msgTrimmedServices = "We trimmed your selection to the first %d services."
	msgLoadFailed      = "We couldn't load wishlist #%d. Please try again."
	msgWishlistClosed  = "Wishlist #%d is closed and can no longer be edited."
	msgCloseFailed     = "We couldn't close wishlist #%d. Please try again."
)

// ValidationError lists the blocking field errors found at submit time.
type ValidationError struct {
	Fields []submission.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ModerationError is returned when the moderation filter rejects the draft.
type ModerationError struct {
	Result moderation.Result
}

func (e *ModerationError) Error() string {
	return "content rejected: " + strings.Join(e.Result.Messages(), " ")
}

// fieldQualified is implemented by server errors that name a form field.
type fieldQualified interface {
	FieldPath() string
}

// StartInput is the context a controller starts from.
type StartInput struct {
	// Username of the authenticated user, empty when unknown.
	Username string
	// Provider that authenticated Username. Empty means wishlist.DefaultProvider.
	Provider string
	// ServerRepos seeds the repository list when the caller already has it.
	ServerRepos []wishlist.RepositoryCandidate
	// DeepLink opens this wishlist number for editing directly.
	DeepLink int
}

// Controller owns one submission workflow. Its methods are safe to call
// from multiple goroutines.
type Controller struct {
	opts   Options
	logger *zap.Logger

	mu             sync.Mutex
	state          State
	username       string
	provider       string
	user           *wishlist.User
	authenticated  bool
	repos          []wishlist.RepositoryCandidate
	existing       map[string]wishlist.ExistingWishlistRef
	draft          *wishlist.Draft
	fieldResults   map[string]validate.Result
	banner         string
	warning        string
	loading        bool
	signInRequired bool
	reposFailed    bool
}

// New returns a controller in the auth state.
func New(opts Options) *Controller {
	if opts.Limits == (wishlist.Limits{}) {
		opts.Limits = wishlist.DefaultLimits()
	}
	if opts.Policy.MaxLinks == 0 {
		opts.Policy = moderation.DefaultPolicy()
	}
	if opts.Catalog == nil {
		opts.Catalog = wishlist.DefaultCatalog()
	}
	return &Controller{
		opts:         opts,
		logger:       logging.OrNop(opts.Logger),
		state:        AuthState{},
		existing:     make(map[string]wishlist.ExistingWishlistRef),
		fieldResults: make(map[string]validate.Result),
	}
}

// Start runs the page-load sequence: seed or hydrate the repository list,
// re-verify the session in the background and look up existing wishlists.
// A deep link skips the list and loads that wishlist for editing once the
// session is confirmed.
func (c *Controller) Start(ctx context.Context, in StartInput) error {
	username := strings.TrimSpace(in.Username)
	c.mu.Lock()
	c.username = username
	c.provider = strings.TrimSpace(in.Provider)
	c.authenticated = username != ""
	c.state = AuthState{}
	c.mu.Unlock()

	if in.DeepLink > 0 {
		return c.startDeepLink(ctx, in.DeepLink)
	}

	key := c.cacheKey()
	repos, seeded := in.ServerRepos, in.ServerRepos != nil
	if seeded {
		c.writeCache(key, repos)
	} else if key != "" && c.opts.Cache != nil {
		if cached, ok := c.opts.Cache.Read(key); ok {
			repos, seeded = cached, true
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.verifySession(gctx)
		return nil
	})
	g.Go(func() error {
		if !seeded && username != "" {
			fetched, err := c.fetchRepositories(gctx)
			if err != nil {
				return nil
			}
			repos = fetched
		}
		c.mu.Lock()
		c.repos = repos
		c.mu.Unlock()
		c.refreshExisting(gctx, repos)
		return nil
	})
	return g.Wait()
}

// startDeepLink opens wishlist number for editing. The session is verified
// first; an unauthenticated user stays on the auth step with the sign-in
// prompt shown.
func (c *Controller) startDeepLink(ctx context.Context, number int) error {
	c.verifySession(ctx)
	c.mu.Lock()
	if !c.authenticated {
		c.signInRequired = true
		c.mu.Unlock()
		return ErrSignInRequired
	}
	c.mu.Unlock()

	rec, ok := c.fetchForEdit(ctx, number)
	if !ok {
		return errors.New(c.Banner())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = Initial(number)
	if !c.hydrate(rec, number) {
		c.state = prev
		return errors.New(c.banner)
	}
	return nil
}

// verifySession confirms the identity with the server. A failed check keeps
// the current assumption; a definite "not authenticated" shows the sign-in prompt.
func (c *Controller) verifySession(ctx context.Context) {
	info, err := c.opts.API.Session(ctx)
	if err != nil {
		c.logger.Warn("session verification failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !info.Authenticated || info.User == nil {
		c.authenticated = false
		c.user = nil
		c.signInRequired = true
		return
	}
	c.authenticated = true
	c.signInRequired = false
	c.user = info.User
	if c.username == "" {
		c.username = info.User.Login
		c.provider = info.User.Provider
	} else if c.provider == "" && strings.EqualFold(c.username, info.User.Login) {
		c.provider = info.User.Provider
	}
}

// FetchRepositories reloads the listing from the server and refreshes the
// cache and the existing-wishlist lookup. On failure the previous list stays.
func (c *Controller) FetchRepositories(ctx context.Context) error {
	repos, err := c.fetchRepositories(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.repos = repos
	if c.banner == msgReposFailed {
		c.banner = ""
	}
	c.mu.Unlock()
	c.refreshExisting(ctx, repos)
	return nil
}

func (c *Controller) fetchRepositories(ctx context.Context) ([]wishlist.RepositoryCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, RepositoryTimeout)
	defer cancel()

	repos, err := c.opts.API.Repositories(ctx)
	c.mu.Lock()
	c.reposFailed = err != nil
	if err != nil {
		c.banner = msgReposFailed
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("repository listing failed", zap.Error(err))
		return nil, err
	}
	c.writeCache(c.cacheKey(), repos)
	return repos, nil
}

// cacheKey returns the provider-qualified identity the session cache is
// keyed by, or "" when no user is known.
func (c *Controller) cacheKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wishlist.Identity(c.provider, c.username)
}

func (c *Controller) writeCache(key string, repos []wishlist.RepositoryCandidate) {
	if key == "" || c.opts.Cache == nil {
		return
	}
	if err := c.opts.Cache.Write(key, repos); err != nil {
		c.logger.Warn("session cache write failed", zap.String("user", key), zap.Error(err))
	}
}

// refreshExisting replaces the existing-wishlist map with one bulk lookup
// over the given repositories. A failed lookup leaves an empty map.
func (c *Controller) refreshExisting(ctx context.Context, repos []wishlist.RepositoryCandidate) {
	existing := make(map[string]wishlist.ExistingWishlistRef)
	defer func() {
		c.mu.Lock()
		c.existing = existing
		c.mu.Unlock()
	}()
	if len(repos) == 0 {
		return
	}

	urls := make([]string, 0, len(repos))
	for _, r := range repos {
		urls = append(urls, r.URL)
	}
	results, err := c.opts.API.CheckExisting(ctx, urls)
	if err != nil {
		c.logger.Warn("existence check failed", zap.Error(err))
		return
	}
	for u, res := range results {
		if ref, ok := res.Ref(); ok {
			existing[wishlist.NormalizeRepoURL(u)] = ref
		}
	}
}

// SubmitManualURL binds a manually entered repository URL and moves to the
// repository step. An invalid URL sets an inline error and does not transition.
func (c *Controller) SubmitManualURL(raw string) error {
	res := validate.URL(raw)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fieldResults[wishlist.FieldRepositoryURL] = res
	if res.Blocking() {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, res.Error)
	}
	raw = strings.TrimSpace(raw)
	owner, name := wishlist.SplitRepoURL(raw)
	repo := wishlist.RepositoryCandidate{Name: name, URL: raw, Owner: owner}
	return c.apply(ManualURLSubmitted{Repo: repo})
}

// SelectRepository picks a repository from the listing.
func (c *Controller) SelectRepository(repoURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	repo, ok := c.findRepo(repoURL)
	if !ok {
		return ErrUnknownRepository
	}
	return c.apply(RepositorySelected{Repo: repo})
}

// Continue confirms the selected repository.
func (c *Controller) Continue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apply(RepositoryContinued{})
}

// Proceed opens the form for the bound repository with a fresh draft.
func (c *Controller) Proceed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.apply(Proceeded{}); err != nil {
		return err
	}
	ws := c.state.(WishlistState)
	d := wishlist.NewDraft()
	d.ProjectTitle = ws.Repo.Name
	if c.user != nil {
		d.MaintainerEmail = c.user.Email
	}
	c.draft = d
	c.warning = ""
	c.fieldResults = make(map[string]validate.Result)
	return nil
}

// EditExisting opens the wishlist of a listed repository for editing. The
// record is loaded before the state changes; on failure the list stays in
// place with a retryable banner.
func (c *Controller) EditExisting(ctx context.Context, repoURL string) error {
	c.mu.Lock()
	ev, err := c.existingEvent(repoURL, ActionEdit)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	number := ev.Ref.IssueNumber

	rec, ok := c.fetchForEdit(ctx, number)
	if !ok {
		return errors.New(c.Banner())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	if err := c.apply(ev); err != nil {
		return err
	}
	if !c.hydrate(rec, number) {
		c.state = prev
		return errors.New(c.banner)
	}
	return nil
}

// OpenForClose moves to the wishlist step with a close pending for the
// repository's wishlist. Close completes it.
func (c *Controller) OpenForClose(repoURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, err := c.existingEvent(repoURL, ActionClose)
	if err != nil {
		return err
	}
	return c.apply(ev)
}

// existingEvent builds the ExistingChosen event for repoURL and checks that
// the current state accepts it, without applying it. It must be called with
// c.mu held.
func (c *Controller) existingEvent(repoURL string, act Action) (ExistingChosen, error) {
	ref, ok := c.existing[wishlist.NormalizeRepoURL(repoURL)]
	if !ok {
		return ExistingChosen{}, ErrNoExistingWishlist
	}
	repo, found := c.findRepo(repoURL)
	if !found {
		owner, name := wishlist.SplitRepoURL(repoURL)
		repo = wishlist.RepositoryCandidate{Name: name, URL: repoURL, Owner: owner}
	}
	ev := ExistingChosen{Repo: repo, Ref: ref, Act: act}
	if _, err := Transition(c.state, ev, Guards{Authenticated: c.authenticated}); err != nil {
		if errors.Is(err, ErrSignInRequired) {
			c.signInRequired = true
		}
		return ExistingChosen{}, err
	}
	return ev, nil
}

// LoadExistingWishlistData fetches a stored wishlist and hydrates the edit
// form from it. It reports success; on failure a retryable banner is set and
// the state does not change.
func (c *Controller) LoadExistingWishlistData(ctx context.Context, number int) bool {
	rec, ok := c.fetchForEdit(ctx, number)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hydrate(rec, number)
}

// fetchForEdit loads wishlist number and refuses closed records. Failures
// set the banner.
func (c *Controller) fetchForEdit(ctx context.Context, number int) (*wishlist.StoredRecord, bool) {
	rec, err := c.opts.API.Wishlist(ctx, number)
	if err != nil {
		c.logger.Warn("wishlist load failed", zap.Int("number", number), zap.Error(err))
		c.setBanner(fmt.Sprintf(msgLoadFailed, number))
		return nil, false
	}
	if rec.Status == wishlist.StatusClosed {
		c.setBanner(fmt.Sprintf(msgWishlistClosed, number))
		return nil, false
	}
	return rec, true
}

// hydrate binds rec to the edit form of wishlist number. The state must
// already be a WishlistState editing that number; otherwise nothing changes.
// It must be called with c.mu held.
func (c *Controller) hydrate(rec *wishlist.StoredRecord, number int) bool {
	ws, ok := c.state.(WishlistState)
	if !ok || ws.Editing == nil || ws.Editing.IssueNumber != number {
		c.banner = fmt.Sprintf(msgLoadFailed, number)
		return false
	}
	if err := c.apply(Hydrated{Repo: wishlist.RepositoryFromRecord(*rec)}); err != nil {
		c.banner = fmt.Sprintf(msgLoadFailed, number)
		return false
	}
	if ws.Editing.IssueURL == "" {
		next := c.state.(WishlistState)
		target := *next.Editing
		target.IssueURL = rec.URL
		next.Editing = &target
		c.state = next
	}
	hydrated := wishlist.DraftFromRecord(rec.FormData, c.opts.Limits)
	c.draft = hydrated.Draft
	c.banner = ""
	c.warning = ""
	if hydrated.Trimmed {
		c.warning = fmt.Sprintf(msgTrimmedServices, c.opts.Limits.MaxServices)
	}
	c.fieldResults = make(map[string]validate.Result)
	return true
}

// Close closes the wishlist the form is working on, after confirmation.
// On success the overlay returns to the repository list.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	ws, ok := c.state.(WishlistState)
	c.mu.Unlock()
	if !ok || ws.Editing == nil {
		return ErrNotOnForm
	}
	return c.closeWishlist(ctx, ws.Editing.IssueNumber)
}

// CloseExisting closes a wishlist from the repository list, after
// confirmation. The list stays in place behind the success overlay, and
// another close may follow while the overlay is still shown.
// Closing an already-closed wishlist succeeds.
func (c *Controller) CloseExisting(ctx context.Context, number int) error {
	c.mu.Lock()
	ok := onList(c.state)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: close from %s", ErrInvalidTransition, c.Step())
	}
	return c.closeWishlist(ctx, number)
}

// onList reports whether s shows the repository list, either directly or
// behind a success overlay.
func onList(s State) bool {
	switch cur := s.(type) {
	case AuthState:
		return true
	case SuccessState:
		_, ok := cur.Return.(AuthState)
		return ok
	}
	return false
}

func (c *Controller) closeWishlist(ctx context.Context, number int) error {
	if c.opts.Confirm == nil || !c.opts.Confirm(fmt.Sprintf("Close wishlist #%d? This cannot be undone.", number)) {
		return ErrNotConfirmed
	}
	if err := c.beginWrite(); err != nil {
		return err
	}
	defer c.endWrite()

	// Optimistic removal; the previous entries are restored on failure.
	c.mu.Lock()
	removed := make(map[string]wishlist.ExistingWishlistRef)
	for k, ref := range c.existing {
		if ref.IssueNumber == number {
			removed[k] = ref
			delete(c.existing, k)
		}
	}
	c.mu.Unlock()

	res, err := c.opts.API.Close(ctx, number)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		for k, ref := range removed {
			c.existing[k] = ref
		}
		c.logger.Warn("close failed", zap.Int("number", number), zap.Error(err))
		c.banner = c.failureMessage(err, fmt.Sprintf(msgCloseFailed, number))
		return err
	}
	c.banner = ""
	out := Outcome{Kind: OutcomeClosed, IssueNumber: number}
	if res != nil {
		out.IssueURL = res.Issue.URL
		out.Title = res.Issue.Title
	}
	if ws, ok := c.state.(WishlistState); ok && ws.Editing != nil && ws.Editing.IssueNumber == number {
		c.draft = nil
	}
	return c.apply(Closed{Outcome: out})
}

// ToggleService selects or deselects a service on the form.
func (c *Controller) ToggleService(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return ErrNotOnForm
	}
	err := c.draft.ToggleService(id, c.opts.Limits)
	c.revalidate(wishlist.FieldServices)
	return err
}

// AddTechnology adds a technology tag on the form.
func (c *Controller) AddTechnology(tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return ErrNotOnForm
	}
	err := c.draft.AddTechnology(tag, c.opts.Limits)
	c.revalidate(wishlist.FieldTechnologies)
	return err
}

// RemoveTechnology removes a technology tag from the form.
func (c *Controller) RemoveTechnology(tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return ErrNotOnForm
	}
	c.draft.RemoveTechnology(tag)
	c.revalidate(wishlist.FieldTechnologies)
	return nil
}

// SetField sets a scalar form field and returns its validation result.
func (c *Controller) SetField(field, value string) (validate.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return validate.Result{}, ErrNotOnForm
	}
	d := c.draft
	switch field {
	case wishlist.FieldMaintainerEmail:
		d.MaintainerEmail = value
	case wishlist.FieldProjectTitle:
		d.ProjectTitle = value
	case wishlist.FieldTimeline:
		d.Timeline = value
	case wishlist.FieldOrganizationType:
		d.Organization.Type = value
	case wishlist.FieldOrganizationName:
		d.Organization.Name = value
	case wishlist.FieldAdditionalNotes:
		d.AdditionalNotes = value
	case wishlist.FieldPreferredPractitioner:
		d.PreferredPractitioner = strings.TrimSpace(value)
	case wishlist.FieldNomineeName:
		d.Nominee.Name = value
	case wishlist.FieldNomineeEmail:
		d.Nominee.Email = value
	case wishlist.FieldNomineeProfileURL:
		d.Nominee.ProfileURL = value
	case wishlist.FieldOpenToSponsorship:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return validate.Result{}, fmt.Errorf("%s must be true or false", field)
		}
		d.OpenToSponsorship = b
	case wishlist.FieldUrgency:
		u := wishlist.Urgency(strings.ToLower(strings.TrimSpace(value)))
		if !u.Valid() {
			return validate.Result{}, fmt.Errorf("unknown urgency %q", value)
		}
		d.Urgency = u
	case wishlist.FieldProjectSize:
		s := wishlist.ProjectSize(strings.ToLower(strings.TrimSpace(value)))
		if !s.Valid() {
			return validate.Result{}, fmt.Errorf("unknown project size %q", value)
		}
		d.ProjectSize = s
	default:
		return validate.Result{}, fmt.Errorf("unknown field %q", field)
	}
	return c.revalidate(field), nil
}

// ValidateField re-runs the validator of one field, as on blur.
func (c *Controller) ValidateField(field string) validate.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return validate.Result{}
	}
	return c.revalidate(field)
}

// revalidate must be called with c.mu held.
func (c *Controller) revalidate(field string) validate.Result {
	res, ok := submission.FieldResults(c.draft, c.opts.Limits)[field]
	if !ok {
		res = validate.Result{Valid: true, Severity: validate.SeverityError}
	}
	c.fieldResults[field] = res
	return res
}

// Submit validates, moderates and sends the draft. On failure the draft is
// kept and a banner describes the problem; on success the overlay shows the
// outcome with its redirect URL.
func (c *Controller) Submit(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	ws, ok := c.state.(WishlistState)
	if !ok || c.draft == nil {
		c.mu.Unlock()
		return nil, ErrNotOnForm
	}
	if ws.Editing != nil && ws.Editing.Action != ActionEdit {
		c.mu.Unlock()
		return nil, ErrNotOnForm
	}
	draft := *c.draft

	for field, res := range submission.FieldResults(&draft, c.opts.Limits) {
		c.fieldResults[field] = res
	}
	if errs := submission.ValidateDraft(&draft, c.opts.Limits, c.opts.Catalog); len(errs) > 0 {
		c.mu.Unlock()
		return nil, &ValidationError{Fields: errs}
	}
	if mod := submission.Moderate(c.opts.Policy, &draft); mod.Rejected {
		c.banner = strings.Join(mod.Messages(), " ")
		c.mu.Unlock()
		return nil, &ModerationError{Result: mod}
	}
	c.mu.Unlock()

	in := submission.Input{Draft: &draft, Catalog: c.opts.Catalog}
	repo := ws.Repo
	if ws.Manual {
		in.Manual = &repo
	} else {
		in.Selected = &repo
	}
	if ws.Editing != nil {
		in.IsUpdate = true
		in.IssueNumber = ws.Editing.IssueNumber
	}
	payload, err := submission.Assemble(in)
	if err != nil {
		return nil, err
	}

	if err := c.beginWrite(); err != nil {
		return nil, err
	}
	res, err := c.opts.API.Submit(ctx, payload)
	c.endWrite()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("submit failed", zap.Error(err))
		c.banner = c.failureMessage(err, msgGenericFailure)
		return nil, err
	}

	kind := OutcomeCreated
	if in.IsUpdate {
		kind = OutcomeUpdated
	}
	out := Outcome{
		Kind:        kind,
		IssueNumber: res.Issue.Number,
		IssueURL:    res.Issue.URL,
		Title:       draft.ProjectTitle,
	}
	out.RedirectURL = c.redirectURL(out)

	c.existing[wishlist.NormalizeRepoURL(repo.URL)] = wishlist.ExistingWishlistRef{
		IssueNumber:  res.Issue.Number,
		IssueURL:     res.Issue.URL,
		ProjectTitle: draft.ProjectTitle,
	}
	c.draft = nil
	c.banner = ""
	c.warning = ""
	if err := c.apply(Submitted{Outcome: out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// redirectURL carries the record number, update flag and project title.
func (c *Controller) redirectURL(out Outcome) string {
	q := url.Values{}
	q.Set("id", strconv.Itoa(out.IssueNumber))
	q.Set("updated", strconv.FormatBool(out.Kind == OutcomeUpdated))
	q.Set("title", out.Title)
	return strings.TrimRight(c.opts.BaseURL, "/") + "/wishlist-success?" + q.Encode()
}

// failureMessage maps a write failure to a banner. Field-qualified server
// errors are named by their display label.
func (c *Controller) failureMessage(err error, fallback string) string {
	if errors.Is(err, ErrMalformedResponse) {
		return msgGenericFailure
	}
	var fq fieldQualified
	if errors.As(err, &fq) && fq.FieldPath() != "" {
		msg := err.Error()
		var withMsg interface{ UserMessage() string }
		if errors.As(err, &withMsg) {
			msg = withMsg.UserMessage()
		}
		return fmt.Sprintf("%s: %s", submission.FriendlyField(fq.FieldPath()), msg)
	}
	var withMsg interface{ UserMessage() string }
	if errors.As(err, &withMsg) && withMsg.UserMessage() != "" {
		return withMsg.UserMessage()
	}
	return fallback
}

// Dismiss hides the success overlay.
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apply(Dismissed{})
}

// BackToWishlists returns to the repository list.
func (c *Controller) BackToWishlists() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.apply(BackToWishlists{}); err != nil {
		return err
	}
	c.draft = nil
	c.warning = ""
	return nil
}

// Logout clears the session cache of the current user and resets the workflow.
func (c *Controller) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if key := wishlist.Identity(c.provider, c.username); key != "" && c.opts.Cache != nil {
		err = c.opts.Cache.Clear(key)
	}
	c.username = ""
	c.provider = ""
	c.user = nil
	c.authenticated = false
	c.reposFailed = false
	c.repos = nil
	c.existing = make(map[string]wishlist.ExistingWishlistRef)
	c.draft = nil
	c.banner = ""
	c.warning = ""
	c.fieldResults = make(map[string]validate.Result)
	if tErr := c.apply(LoggedOut{}); tErr != nil {
		return tErr
	}
	return err
}

// apply must be called with c.mu held.
func (c *Controller) apply(e Event) error {
	next, err := Transition(c.state, e, Guards{Authenticated: c.authenticated})
	if err != nil {
		if errors.Is(err, ErrSignInRequired) {
			c.signInRequired = true
		}
		return err
	}
	c.state = next
	return nil
}

func (c *Controller) beginWrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return ErrBusy
	}
	c.loading = true
	return nil
}

func (c *Controller) endWrite() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}

func (c *Controller) setBanner(msg string) {
	c.mu.Lock()
	c.banner = msg
	c.mu.Unlock()
}

// findRepo must be called with c.mu held.
func (c *Controller) findRepo(repoURL string) (wishlist.RepositoryCandidate, bool) {
	key := wishlist.NormalizeRepoURL(repoURL)
	for _, r := range c.repos {
		if wishlist.NormalizeRepoURL(r.URL) == key {
			return r, true
		}
	}
	return wishlist.RepositoryCandidate{}, false
}
