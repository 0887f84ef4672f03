package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/auth"
	"github.com/oss-wishlist/wishlist/internal/config"
	"github.com/oss-wishlist/wishlist/internal/logging"
	"github.com/oss-wishlist/wishlist/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Options configures the web server.
type Options struct {
	DB      *sql.DB
	Config  *config.Config
	Env     ops.Env
	Auth    *auth.Manager
	Logger  *zap.Logger
	Version string
}

// NewServer creates and configures the HTTP server for the wishlist site and API.
func NewServer(opts Options) (*http.Server, error) {
	h, err := NewHandlers(opts)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Config.Bind, opts.Config.Port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// NewHandlers wires handlers over the embedded templates.
func NewHandlers(opts Options) (*Handlers, error) {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	logger := logging.OrNop(opts.Logger)
	return &Handlers{
		db:       opts.DB,
		cfg:      opts.Config,
		env:      opts.Env,
		auth:     opts.Auth,
		renderer: NewRenderer(templateSub, opts.Version, logger),
		logger:   logger,
	}, nil
}

// Routes returns the root handler.
func (h *Handlers) Routes() http.Handler {
	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/wishlists", http.StatusFound)
	})
	mux.HandleFunc("GET /wishlists", h.HandleList)
	mux.HandleFunc("GET /wishlists/{number}", h.HandleDetail)
	mux.HandleFunc("GET /wishlist-success", h.HandleSuccess)
	mux.HandleFunc("GET /practitioners", h.HandlePractitioners)
	mux.HandleFunc("GET /admin", h.HandleAdmin)
	mux.HandleFunc("POST /admin/wishlists/{number}/approve", h.HandleApproveWishlist)
	mux.HandleFunc("POST /admin/practitioners/{id}/approve", h.HandleApprovePractitioner)

	// Login
	mux.HandleFunc("GET /login", h.HandleLogin)
	mux.Handle("GET /account", h.auth.RequireSession(http.HandlerFunc(h.HandleAccount)))
	mux.HandleFunc("GET /auth/{provider}/login", h.auth.Login)
	mux.HandleFunc("GET /auth/{provider}/callback", h.auth.Callback)
	mux.HandleFunc("POST /auth/logout", h.auth.Logout)

	// JSON API
	mux.HandleFunc("GET /api/auth/session", h.APISession)
	mux.Handle("GET /api/auth/token", h.requireAPISession(h.APIToken))
	mux.Handle("GET /api/repositories", h.requireAPISession(h.APIRepositories))
	mux.HandleFunc("POST /api/wishlists/check", h.APICheck)
	mux.HandleFunc("GET /api/wishlists", h.APIList)
	mux.HandleFunc("GET /api/wishlists/{number}", h.APIWishlist)
	mux.Handle("POST /api/wishlists", h.requireAPISession(h.APISubmit))
	mux.Handle("POST /api/wishlists/close", h.requireAPISession(h.APIClose))
	mux.Handle("POST /api/wishlists/{number}/approve", h.requireAPISession(h.APIApprove))
	mux.HandleFunc("GET /api/practitioners", h.APIPractitioners)
	mux.Handle("POST /api/practitioners", h.requireAPISession(h.APICreatePractitioner))
	mux.Handle("POST /api/practitioners/{id}/approve", h.requireAPISession(h.APIApprovePractitioner))

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	// Wrap with security headers
	return securityHeaders(h.auth.WithSession(mux))
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' https:")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("wishlist server running", zap.String("addr", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
