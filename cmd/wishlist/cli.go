package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/auth"
	"github.com/oss-wishlist/wishlist/internal/config"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/ops"
	"github.com/oss-wishlist/wishlist/internal/provider"
	"github.com/oss-wishlist/wishlist/internal/web"
)

// operator is the actor behind local administration commands.
var operator = ops.Actor{Login: "operator", Admin: true}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, logger *zap.Logger) *cli.App {
	env := ops.NewEnv(cfg, notify.NewLog(logger), logger)
	app := &cli.App{
		Name:    "wishlist",
		Usage:   "Maintainer wishlists for open source projects",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(db, cfg, env, logger),
			listCmd(db, env),
			showCmd(db, env),
			approveCmd(db, env),
			practitionersCmd(db, env),
			loginCmd(db, cfg, logger),
			logoutCmd(db, cfg, logger),
			reposCmd(db, cfg, logger),
			submitCmd(db, cfg, logger),
			editCmd(db, cfg, logger),
			closeCmd(db, cfg, logger),
			cacheClearCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config, env ops.Env, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web application and JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Interface to bind (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("bind") {
				cfg.Bind = c.String("bind")
			}
			if c.IsSet("port") {
				cfg.Port = c.Int("port")
			}

			manager := newAuthManager(cfg, logger)
			if len(manager.Providers()) == 0 {
				logger.Warn("no OAuth providers configured; sign-in is disabled")
			}

			srv, err := web.NewServer(web.Options{
				DB:      db,
				Config:  cfg,
				Env:     env,
				Auth:    manager,
				Logger:  logger,
				Version: Version,
			})
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(srv, logger)
		},
	}
}

// newAuthManager registers every code host with configured OAuth credentials.
func newAuthManager(cfg *config.Config, logger *zap.Logger) *auth.Manager {
	manager := auth.NewManager(auth.Options{
		BaseURL:    cfg.BaseURL,
		SessionTTL: cfg.SessionTTL(),
		IsAdmin:    cfg.IsAdmin,
		Logger:     logger,
	})
	if cfg.GitHubClientID != "" {
		manager.Register(
			auth.GitHubConfig(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.BaseURL),
			provider.NewGitHub(nil, cfg.ProviderTimeout(), logger),
		)
	}
	if cfg.GitLabClientID != "" {
		manager.Register(
			auth.GitLabConfig(cfg.GitLabClientID, cfg.GitLabClientSecret, cfg.BaseURL),
			provider.NewGitLab("", cfg.ProviderTimeout(), logger),
		)
	}
	return manager
}

// listCmd creates the list command.
func listCmd(db *sql.DB, env ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored wishlists",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status: open|closed"},
			&cli.BoolFlag{Name: "pending", Usage: "Only wishlists awaiting approval"},
			&cli.BoolFlag{Name: "approved", Usage: "Only approved wishlists"},
			&cli.StringFlag{Name: "maintainer", Aliases: []string{"m"}, Usage: "Filter by maintainer (provider:login; a bare login means github)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("pending") && c.Bool("approved") {
				return outputError(errors.NewInvalidRequest("--pending and --approved are mutually exclusive"))
			}
			input := ops.ListInput{
				Status:     c.String("status"),
				Maintainer: c.String("maintainer"),
				Limit:      c.Int("limit"),
				Offset:     c.Int("offset"),
			}
			switch {
			case c.Bool("pending"):
				approved := false
				input.Approved = &approved
			case c.Bool("approved"):
				approved := true
				input.Approved = &approved
			}

			output, err := ops.List(db, env, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// showCmd creates the show command.
func showCmd(db *sql.DB, env ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show one stored wishlist",
		ArgsUsage: "<number>",
		Action: func(c *cli.Context) error {
			number, err := numberArg(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Fetch(db, env, ops.FetchInput{Actor: operator, Number: number})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output.StoredRecord)
		},
	}
}

// approveCmd creates the approve command.
func approveCmd(db *sql.DB, env ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "approve",
		Usage:     "Approve a pending wishlist",
		ArgsUsage: "<number>",
		Action: func(c *cli.Context) error {
			number, err := numberArg(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Approve(c.Context, db, env, ops.ApproveInput{Actor: operator, Number: number})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// practitionersCmd creates the practitioners command group.
func practitionersCmd(db *sql.DB, env ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "practitioners",
		Usage: "List or approve practitioner profiles",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List practitioner profiles",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pending", Usage: "Only profiles awaiting approval"},
					&cli.StringFlag{Name: "service", Usage: "Only practitioners offering this service id"},
				},
				Action: func(c *cli.Context) error {
					input := ops.ListPractitionersInput{Service: c.String("service"), IncludeContact: true}
					if c.Bool("pending") {
						approved := false
						input.Approved = &approved
					}
					output, err := ops.ListPractitioners(db, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "approve",
				Usage:     "Approve a practitioner profile",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := ops.ApprovePractitioner(c.Context, db, env, ops.ApprovePractitionerInput{
						Actor: operator,
						ID:    c.Args().First(),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

// Helper functions

// outputJSON marshals result to the app's writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if e, ok := err.(*errors.Error); ok {
		msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
		if e.Field != "" {
			msg = fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
		}
		return cli.Exit(msg, 1)
	}
	return cli.Exit(err.Error(), 1)
}

// numberArg parses the first positional argument as a wishlist number.
func numberArg(c *cli.Context) (int, error) {
	if c.NArg() == 0 {
		return 0, errors.NewInvalidRequest("wishlist number is required")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(c.Args().First(), "#"))
	if err != nil || n <= 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid wishlist number %q", c.Args().First()))
	}
	return n, nil
}

// readLine reads one trimmed line from r.
func readLine(r io.Reader) string {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			b.WriteByte(buf[0])
		}
		if err != nil {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
