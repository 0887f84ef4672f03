package web

import (
	"database/sql"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/auth"
	"github.com/oss-wishlist/wishlist/internal/config"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/ops"
	"github.com/oss-wishlist/wishlist/internal/submission"
)

// Handlers contains HTTP route handlers for the site and the JSON API.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	env      ops.Env
	auth     *auth.Manager
	renderer *Renderer
	logger   *zap.Logger
}

// page returns the common page fields for r.
func (h *Handlers) page(r *http.Request, title, nav string) PageData {
	p := PageData{Title: title, Version: h.renderer.version, Nav: nav}
	if sess := auth.FromContext(r.Context()); sess != nil {
		user := sess.User
		p.User = &user
		p.Admin = sess.Admin
	}
	return p
}

// actor returns the caller of r; anonymous callers have an empty login.
func actor(r *http.Request) ops.Actor {
	sess := auth.FromContext(r.Context())
	if sess == nil {
		return ops.Actor{}
	}
	return ops.Actor{Login: sess.User.Login, Provider: sess.User.Provider, Admin: sess.Admin}
}

// HandleList handles GET /wishlists — approved open wishlists.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	approved := true
	result, err := ops.List(h.db, h.env, ops.ListInput{
		Status:   "open",
		Approved: &approved,
		Limit:    parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:   parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "wishlists"), err)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData:   h.page(r, "Wishlists", "wishlists"),
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleDetail handles GET /wishlists/{number} — view a single wishlist.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	number, err := pathNumber(r)
	if err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "wishlists"), err)
		return
	}

	rec, err := ops.Fetch(h.db, h.env, ops.FetchInput{Actor: actor(r), Number: number})
	if err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "wishlists"), err)
		return
	}

	title := submission.ProjectTitle(rec.Title)
	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData:     h.page(r, title, "wishlists"),
		Wishlist:     rec,
		ProjectTitle: title,
		RenderedHTML: renderMarkdown(rec.Body),
	})
}

// HandleSuccess handles GET /wishlist-success — confirmation after submit.
func (h *Handlers) HandleSuccess(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil || number <= 0 {
		h.renderer.renderError(w, r, h.page(r, "", ""), errors.NewInvalidRequest("a wishlist id is required"))
		return
	}
	h.renderer.renderPage(w, r, "success", SuccessPageData{
		PageData:     h.page(r, "Wishlist submitted", ""),
		Number:       number,
		Updated:      parseBoolParam(r, "updated"),
		ProjectTitle: r.URL.Query().Get("title"),
		URL:          h.env.IssueURL(number),
	})
}

// HandlePractitioners handles GET /practitioners — approved practitioner directory.
func (h *Handlers) HandlePractitioners(w http.ResponseWriter, r *http.Request) {
	approved := true
	service := r.URL.Query().Get("service")
	result, err := ops.ListPractitioners(h.db, ops.ListPractitionersInput{Approved: &approved, Service: service})
	if err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "practitioners"), err)
		return
	}

	catalog := h.env.ServiceCatalog()
	h.renderer.renderPage(w, r, "practitioners", PractitionersPageData{
		PageData: h.page(r, "Practitioners", "practitioners"),
		Items:    result.Items,
		Services: catalog.Services(),
		Service:  service,
		Catalog:  catalog,
	})
}

// HandleAdmin handles GET /admin — the approval queue.
func (h *Handlers) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if a.Login == "" {
		http.Redirect(w, r, "/login?next="+url.QueryEscape("/admin"), http.StatusFound)
		return
	}
	if !a.Admin {
		h.renderer.renderError(w, r, h.page(r, "", "admin"), errors.NewForbidden("admin access required"))
		return
	}

	pending := false
	wishlists, err := ops.List(h.db, h.env, ops.ListInput{Status: "open", Approved: &pending, Limit: ops.MaxListLimit})
	if err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "admin"), err)
		return
	}
	practitioners, err := ops.ListPractitioners(h.db, ops.ListPractitionersInput{Approved: &pending, IncludeContact: true})
	if err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "admin"), err)
		return
	}

	h.renderer.renderPage(w, r, "admin", AdminPageData{
		PageData:      h.page(r, "Approvals", "admin"),
		Wishlists:     wishlists.Items,
		Practitioners: practitioners.Items,
		Catalog:       h.env.ServiceCatalog(),
	})
}

// HandleApproveWishlist handles POST /admin/wishlists/{number}/approve.
func (h *Handlers) HandleApproveWishlist(w http.ResponseWriter, r *http.Request) {
	number, err := pathNumber(r)
	if err == nil {
		_, err = ops.Approve(r.Context(), h.db, h.env, ops.ApproveInput{Actor: actor(r), Number: number})
	}
	h.afterAdminAction(w, r, err)
}

// HandleApprovePractitioner handles POST /admin/practitioners/{id}/approve.
func (h *Handlers) HandleApprovePractitioner(w http.ResponseWriter, r *http.Request) {
	_, err := ops.ApprovePractitioner(r.Context(), h.db, h.env, ops.ApprovePractitionerInput{
		Actor: actor(r),
		ID:    r.PathValue("id"),
	})
	h.afterAdminAction(w, r, err)
}

func (h *Handlers) afterAdminAction(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.renderer.renderError(w, r, h.page(r, "", "admin"), err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/admin")
		w.WriteHeader(http.StatusOK)
		return
	}

	// JSON request
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	// Default: redirect
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// HandleLogin handles GET /login — choose a code host.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "login", LoginPageData{
		PageData:  h.page(r, "Sign in", ""),
		Providers: h.auth.Providers(),
		Next:      r.URL.Query().Get("next"),
	})
}

// HandleAccount handles GET /account — shows the API token for the CLI.
func (h *Handlers) HandleAccount(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	h.renderer.renderPage(w, r, "account", AccountPageData{
		PageData:  h.page(r, "Account", ""),
		Token:     sess.ID,
		ExpiresAt: sess.ExpiresAt.Unix(),
	})
}

func pathNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || n <= 0 {
		return 0, errors.NewInvalidRequest("wishlist number must be a positive integer")
	}
	return n, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
