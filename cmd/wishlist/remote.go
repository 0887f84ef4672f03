package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/client"
	"github.com/oss-wishlist/wishlist/internal/config"
	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/moderation"
	"github.com/oss-wishlist/wishlist/internal/sessioncache"
	"github.com/oss-wishlist/wishlist/internal/validate"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
	"github.com/oss-wishlist/wishlist/internal/workflow"
)

// credentialsKey stores the CLI login in the local key/value table.
const credentialsKey = "cli:credentials"

// credentials identify the caller to a running wishlist server.
type credentials struct {
	Server   string `json:"server"`
	Token    string `json:"token"`
	Login    string `json:"login"`
	Provider string `json:"provider,omitempty"`
}

// identity is the provider-qualified key the repository cache uses.
func (c credentials) identity() string {
	return wishlist.Identity(c.Provider, c.Login)
}

func remoteFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "server", Usage: "Wishlist server URL (defaults to the saved login or base_url)"},
		&cli.StringFlag{Name: "token", EnvVars: []string{"WISHLIST_TOKEN"}, Usage: "API token from the account page"},
	}
}

func loadCredentials(database *sql.DB) (credentials, error) {
	var creds credentials
	raw, ok, err := db.NewKVStore(database).Get(credentialsKey)
	if err != nil || !ok {
		return creds, err
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return credentials{}, nil
	}
	return creds, nil
}

func saveCredentials(database *sql.DB, creds credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return db.NewKVStore(database).Set(credentialsKey, raw)
}

// resolveCredentials merges the saved login with --server and --token.
func resolveCredentials(c *cli.Context, database *sql.DB, cfg *config.Config) (credentials, error) {
	creds, err := loadCredentials(database)
	if err != nil {
		return creds, err
	}
	if s := strings.TrimSpace(c.String("server")); s != "" {
		creds.Server = s
	}
	if creds.Server == "" {
		creds.Server = cfg.BaseURL
	}
	if t := strings.TrimSpace(c.String("token")); t != "" {
		creds.Token = t
	}
	return creds, nil
}

// remote bundles what the workflow commands need.
type remote struct {
	creds      credentials
	controller *workflow.Controller
}

func newRemote(c *cli.Context, database *sql.DB, cfg *config.Config, logger *zap.Logger) (*remote, error) {
	creds, err := resolveCredentials(c, database, cfg)
	if err != nil {
		return nil, err
	}
	if creds.Token == "" {
		return nil, errors.NewUnauthorized()
	}

	api := client.New(creds.Server, creds.Token, client.WithLogger(logger))
	if creds.Login == "" {
		info, err := api.Session(c.Context)
		if err != nil {
			return nil, err
		}
		if !info.Authenticated || info.User == nil {
			return nil, errors.NewUnauthorized()
		}
		creds.Login = info.User.Login
		creds.Provider = info.User.Provider
	}
	cache := sessioncache.New(db.NewKVStore(database), cfg.RepoCacheTTL(), sessioncache.WithLogger(logger))
	ctl := workflow.New(workflow.Options{
		API:   api,
		Cache: cache,
		Limits: wishlist.Limits{
			MaxServices:     cfg.MaxServices,
			MaxTechnologies: cfg.MaxTechnologies,
			NotesMaxChars:   cfg.NotesMaxChars,
		},
		Policy:  moderation.PolicyFromConfig(cfg.Moderation),
		Catalog: wishlist.DefaultCatalog(),
		BaseURL: creds.Server,
		Confirm: confirmFunc(c),
		Logger:  logger,
	})
	return &remote{creds: creds, controller: ctl}, nil
}

func (r *remote) startInput(deepLink int) workflow.StartInput {
	return workflow.StartInput{Username: r.creds.Login, Provider: r.creds.Provider, DeepLink: deepLink}
}

// startList opens the repository list. While the listing fails the user is
// asked whether to try again.
func (r *remote) startList(c *cli.Context) error {
	ctl := r.controller
	if err := ctl.Start(c.Context, r.startInput(0)); err != nil {
		return err
	}
	for ctl.View().ReposFailed && askYes(c, ctl.Banner()+" Retry?") {
		if err := ctl.FetchRepositories(c.Context); err == nil {
			break
		}
	}
	return nil
}

// askYes prompts on the app's streams; anything but y or yes is a no.
func askYes(c *cli.Context, prompt string) bool {
	fmt.Fprintf(c.App.ErrWriter, "%s [y/N] ", prompt)
	answer := strings.ToLower(readLine(c.App.Reader))
	return answer == "y" || answer == "yes"
}

// confirmFunc asks on the app's streams unless --yes was given.
func confirmFunc(c *cli.Context) workflow.ConfirmFunc {
	return func(prompt string) bool {
		if c.Bool("yes") {
			return true
		}
		return askYes(c, prompt)
	}
}

// loginCmd creates the login command.
func loginCmd(database *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Save an API token for a wishlist server (reads the token from stdin if --token is not set)",
		Flags: remoteFlags(),
		Action: func(c *cli.Context) error {
			creds, err := resolveCredentials(c, database, cfg)
			if err != nil {
				return outputError(err)
			}
			if !c.IsSet("token") {
				fmt.Fprintf(c.App.ErrWriter, "Token from %s/account: ", strings.TrimRight(creds.Server, "/"))
				creds.Token = readLine(c.App.Reader)
			}
			if creds.Token == "" {
				return outputError(errors.NewInvalidRequest("a token is required"))
			}

			info, err := client.New(creds.Server, creds.Token, client.WithLogger(logger)).Session(c.Context)
			if err != nil {
				return outputError(err)
			}
			if !info.Authenticated || info.User == nil {
				return outputError(errors.NewUnauthorized())
			}
			creds.Login = info.User.Login
			creds.Provider = info.User.Provider
			if err := saveCredentials(database, creds); err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"server": creds.Server, "login": creds.Login})
		},
	}
}

// logoutCmd creates the logout command.
func logoutCmd(database *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the saved token and clear the cached repository list",
		Action: func(c *cli.Context) error {
			creds, err := loadCredentials(database)
			if err != nil {
				return outputError(err)
			}
			if id := creds.identity(); id != "" {
				cache := sessioncache.New(db.NewKVStore(database), cfg.RepoCacheTTL(), sessioncache.WithLogger(logger))
				if err := cache.Clear(id); err != nil {
					return outputError(err)
				}
			}
			if err := db.NewKVStore(database).Delete(credentialsKey); err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"logged_out": creds.Login})
		},
	}
}

// reposCmd creates the repos command.
func reposCmd(database *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "repos",
		Usage: "List your repositories and their existing wishlists",
		Flags: remoteFlags(),
		Action: func(c *cli.Context) error {
			r, err := newRemote(c, database, cfg, logger)
			if err != nil {
				return outputError(err)
			}
			if err := r.startList(c); err != nil {
				return outputError(err)
			}
			view := r.controller.View()
			if view.Banner != "" && len(view.Repositories) == 0 {
				return cli.Exit(view.Banner, 1)
			}

			type row struct {
				Name     string                        `json:"name"`
				Owner    string                        `json:"owner"`
				URL      string                        `json:"url"`
				Wishlist *wishlist.ExistingWishlistRef `json:"wishlist,omitempty"`
			}
			rows := make([]row, 0, len(view.Repositories))
			for _, rv := range view.Repositories {
				rows = append(rows, row{Name: rv.Repo.Name, Owner: rv.Repo.Owner, URL: rv.Repo.URL, Wishlist: rv.Existing})
			}
			return outputJSON(c, map[string]any{"repositories": rows})
		},
	}
}

// formFlags are the wishlist form fields settable from the command line.
func formFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Usage: "Project title"},
		&cli.StringFlag{Name: "email", Usage: "Maintainer email"},
		&cli.StringSliceFlag{Name: "service", Usage: "Service id (repeatable; replaces the selection)"},
		&cli.StringSliceFlag{Name: "technology", Usage: "Technology tag (repeatable; replaces the tags)"},
		&cli.StringFlag{Name: "urgency", Usage: "low|medium|high|critical"},
		&cli.StringFlag{Name: "project-size", Usage: "small|medium|large"},
		&cli.StringFlag{Name: "timeline", Usage: "Desired timeline"},
		&cli.StringFlag{Name: "org-type", Usage: "Organization type"},
		&cli.StringFlag{Name: "org-name", Usage: "Organization name"},
		&cli.StringFlag{Name: "notes", Usage: "Additional notes"},
		&cli.BoolFlag{Name: "sponsorship", Usage: "Open to sponsorship"},
		&cli.StringFlag{Name: "practitioner", Usage: "Preferred practitioner"},
		&cli.StringFlag{Name: "nominee-name", Usage: "Nominated practitioner name"},
		&cli.StringFlag{Name: "nominee-email", Usage: "Nominated practitioner email"},
		&cli.StringFlag{Name: "nominee-url", Usage: "Nominated practitioner profile URL"},
	}
}

// scalarFlags maps form flags to draft fields.
var scalarFlags = []struct{ flag, field string }{
	{"title", wishlist.FieldProjectTitle},
	{"email", wishlist.FieldMaintainerEmail},
	{"urgency", wishlist.FieldUrgency},
	{"project-size", wishlist.FieldProjectSize},
	{"timeline", wishlist.FieldTimeline},
	{"org-type", wishlist.FieldOrganizationType},
	{"org-name", wishlist.FieldOrganizationName},
	{"notes", wishlist.FieldAdditionalNotes},
	{"practitioner", wishlist.FieldPreferredPractitioner},
	{"nominee-name", wishlist.FieldNomineeName},
	{"nominee-email", wishlist.FieldNomineeEmail},
	{"nominee-url", wishlist.FieldNomineeProfileURL},
}

// applyForm copies every set flag onto the open draft, then validates each
// touched field the way a form does when the field loses focus. Advisory
// warnings are written to the error stream.
func applyForm(c *cli.Context, ctl *workflow.Controller) error {
	var touched []struct{ flag, field string }
	for _, sf := range scalarFlags {
		if !c.IsSet(sf.flag) {
			continue
		}
		if _, err := ctl.SetField(sf.field, c.String(sf.flag)); err != nil {
			return err
		}
		touched = append(touched, sf)
	}
	if c.IsSet("sponsorship") {
		if _, err := ctl.SetField(wishlist.FieldOpenToSponsorship, fmt.Sprint(c.Bool("sponsorship"))); err != nil {
			return err
		}
	}
	if c.IsSet("service") {
		if err := setServices(ctl, c.StringSlice("service")); err != nil {
			return err
		}
		touched = append(touched, struct{ flag, field string }{"service", wishlist.FieldServices})
	}
	if c.IsSet("technology") {
		if err := setTechnologies(ctl, c.StringSlice("technology")); err != nil {
			return err
		}
		touched = append(touched, struct{ flag, field string }{"technology", wishlist.FieldTechnologies})
	}
	for _, sf := range touched {
		warnResult(c, sf.flag, ctl.ValidateField(sf.field))
	}
	return nil
}

func warnResult(c *cli.Context, flag string, res validate.Result) {
	if res.Error != "" && !res.Blocking() {
		fmt.Fprintf(c.App.ErrWriter, "warning: --%s: %s\n", flag, res.Error)
	}
}

// setServices makes the draft's selection equal to ids.
func setServices(ctl *workflow.Controller, ids []string) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	current := ctl.Draft().Services
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
		if !want[id] {
			if err := ctl.ToggleService(id); err != nil {
				return err
			}
		}
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || have[id] {
			continue
		}
		have[id] = true
		if err := ctl.ToggleService(id); err != nil {
			return fmt.Errorf("service %q: %w", id, err)
		}
	}
	return nil
}

// setTechnologies makes the draft's tags equal to tags.
func setTechnologies(ctl *workflow.Controller, tags []string) error {
	for _, tag := range ctl.Draft().Technologies {
		if err := ctl.RemoveTechnology(tag); err != nil {
			return err
		}
	}
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		if err := ctl.AddTechnology(tag); err != nil {
			return fmt.Errorf("technology %q: %w", tag, err)
		}
	}
	return nil
}

// submitDraft sends the open draft and prints the outcome.
func submitDraft(c *cli.Context, ctl *workflow.Controller) error {
	out, err := ctl.Submit(c.Context)
	if err != nil {
		return workflowError(ctl, err)
	}
	return outputJSON(c, outcomeJSON(*out))
}

func outcomeJSON(out workflow.Outcome) map[string]any {
	m := map[string]any{
		"result": string(out.Kind),
		"number": out.IssueNumber,
		"url":    out.IssueURL,
	}
	if out.Title != "" {
		m["title"] = out.Title
	}
	if out.RedirectURL != "" {
		m["redirect_url"] = out.RedirectURL
	}
	return m
}

// workflowError turns a controller failure into a CLI exit.
func workflowError(ctl *workflow.Controller, err error) error {
	var verr *workflow.ValidationError
	if stderrors.As(err, &verr) {
		lines := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			lines = append(lines, fmt.Sprintf("  %s: %s", client.FriendlyField(f.Field), f.Message))
		}
		return cli.Exit("validation failed:\n"+strings.Join(lines, "\n"), 1)
	}
	var merr *workflow.ModerationError
	if stderrors.As(err, &merr) {
		return cli.Exit("content rejected:\n  "+strings.Join(merr.Result.Messages(), "\n  "), 1)
	}
	if stderrors.Is(err, workflow.ErrNotConfirmed) {
		return cli.Exit("aborted", 1)
	}
	if banner := ctl.Banner(); banner != "" {
		return cli.Exit(banner, 1)
	}
	return cli.Exit(err.Error(), 1)
}

// submitCmd creates the submit command.
func submitCmd(database *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Create a wishlist for one of your repositories",
		Flags: append(append(remoteFlags(),
			&cli.StringFlag{Name: "repo", Aliases: []string{"r"}, Required: true, Usage: "Repository URL"},
		), formFlags()...),
		Action: func(c *cli.Context) error {
			r, err := newRemote(c, database, cfg, logger)
			if err != nil {
				return outputError(err)
			}
			ctl := r.controller
			if err := r.startList(c); err != nil {
				return outputError(err)
			}

			repoURL := strings.TrimSpace(c.String("repo"))
			if ref, ok := ctl.Existing()[wishlist.NormalizeRepoURL(repoURL)]; ok {
				return cli.Exit(fmt.Sprintf("%s already has wishlist #%d; use 'wishlist edit %d'",
					repoURL, ref.IssueNumber, ref.IssueNumber), 1)
			}

			err = ctl.SelectRepository(repoURL)
			switch {
			case err == nil:
				err = ctl.Continue()
			case stderrors.Is(err, workflow.ErrUnknownRepository):
				err = ctl.SubmitManualURL(repoURL)
			}
			if err != nil {
				return workflowError(ctl, err)
			}
			if err := ctl.Proceed(); err != nil {
				return workflowError(ctl, err)
			}
			if err := applyForm(c, ctl); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return submitDraft(c, ctl)
		},
	}
}

// editCmd creates the edit command.
func editCmd(database *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Update one of your wishlists; unset flags keep their stored values",
		ArgsUsage: "<number>",
		Flags:     append(remoteFlags(), formFlags()...),
		Action: func(c *cli.Context) error {
			number, err := numberArg(c)
			if err != nil {
				return outputError(err)
			}
			r, err := newRemote(c, database, cfg, logger)
			if err != nil {
				return outputError(err)
			}
			ctl := r.controller
			if err := ctl.Start(c.Context, r.startInput(number)); err != nil {
				if stderrors.Is(err, workflow.ErrSignInRequired) {
					return outputError(errors.NewUnauthorized())
				}
				return cli.Exit(err.Error(), 1)
			}
			if w := ctl.Warning(); w != "" {
				fmt.Fprintf(c.App.ErrWriter, "warning: %s\n", w)
			}
			if err := applyForm(c, ctl); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return submitDraft(c, ctl)
		},
	}
}

// closeCmd creates the close command.
func closeCmd(database *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "close",
		Usage:     "Close one of your wishlists",
		ArgsUsage: "<number>",
		Flags: append(remoteFlags(),
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
		),
		Action: func(c *cli.Context) error {
			number, err := numberArg(c)
			if err != nil {
				return outputError(err)
			}
			r, err := newRemote(c, database, cfg, logger)
			if err != nil {
				return outputError(err)
			}
			ctl := r.controller
			if err := ctl.CloseExisting(c.Context, number); err != nil {
				return workflowError(ctl, err)
			}
			succ, ok := ctl.State().(workflow.SuccessState)
			if !ok {
				return cli.Exit("unexpected workflow state after close", 1)
			}
			return outputJSON(c, outcomeJSON(succ.Outcome))
		},
	}
}

// cacheClearCmd creates the cache-clear command.
func cacheClearCmd(database *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "cache-clear",
		Usage: "Drop the cached repository list",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Account whose cache to clear, as provider:login (defaults to the saved login; a bare login means github)"},
		},
		Action: func(c *cli.Context) error {
			user := wishlist.ParseIdentity(c.String("user"))
			if user == "" {
				creds, err := loadCredentials(database)
				if err != nil {
					return outputError(err)
				}
				user = creds.identity()
			}
			if user == "" {
				return outputError(errors.NewInvalidRequest("no saved login; pass --user"))
			}
			cache := sessioncache.New(db.NewKVStore(database), cfg.RepoCacheTTL())
			if err := cache.Clear(user); err != nil {
				return outputError(err)
			}
			return outputJSON(c, map[string]any{"cleared": user})
		},
	}
}
