package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/logging"
	"github.com/oss-wishlist/wishlist/internal/ops"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "wishlists", "practitioners", "admin"
	User    *wishlist.User
	Admin   bool
}

// ListPageData is the template data for the wishlist list page.
type ListPageData struct {
	PageData
	Items      []ops.WishlistSummary
	Pagination ops.Pagination
}

// DetailPageData is the template data for the wishlist detail page.
type DetailPageData struct {
	PageData
	Wishlist     *ops.FetchOutput
	ProjectTitle string
	RenderedHTML template.HTML
}

// PractitionersPageData is the template data for the practitioner directory.
type PractitionersPageData struct {
	PageData
	Items    []wishlist.Practitioner
	Services []wishlist.Service
	Service  string
	Catalog  *wishlist.Catalog
}

// AdminPageData is the template data for the approval queue.
type AdminPageData struct {
	PageData
	Wishlists     []ops.WishlistSummary
	Practitioners []wishlist.Practitioner
	Catalog       *wishlist.Catalog
}

// SuccessPageData is the template data for the post-submit confirmation.
type SuccessPageData struct {
	PageData
	Number       int
	Updated      bool
	ProjectTitle string
	URL          string
}

// LoginPageData is the template data for the provider chooser.
type LoginPageData struct {
	PageData
	Providers []string
	Next      string
}

// AccountPageData is the template data for the account page.
type AccountPageData struct {
	PageData
	Token     string
	ExpiresAt int64
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	logger    *zap.Logger
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *zap.Logger) *Renderer {
	funcMap := template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"formatTime": formatTime,
		"title":      titleCase,
		"join":       strings.Join,
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"list":          "list.html",
		"detail":        "detail.html",
		"practitioners": "practitioners.html",
		"admin":         "admin.html",
		"success":       "success.html",
		"login":         "login.html",
		"account":       "account.html",
		"error":         "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		logger:    logging.OrNop(logger),
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.logger.Error("template execution error", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, page PageData, err error) {
	e := r.public(err)

	// JSON request
	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		renderJSON(w, e.Status, apiError(e))
		return
	}

	// Full error page
	page.Title = fmt.Sprintf("Error %d", e.Status)
	page.Version = r.version
	r.renderPageStatus(w, req, e.Status, "error", ErrorPageData{
		PageData:   page,
		StatusCode: e.Status,
		Message:    e.Message,
	})
}

// public converts err to the error shown to clients. Internal failures are
// logged and replaced by a generic message.
func (r *Renderer) public(err error) *errors.Error {
	e := errors.As(err)
	if e.Code == errors.ErrInternal {
		r.logger.Error("request failed", zap.Error(err))
		return errors.NewInternal(nil)
	}
	return e
}

// apiError is the failure envelope of the JSON API.
func apiError(e *errors.Error) map[string]any {
	body := map[string]any{
		"success": false,
		"error":   e.Message,
		"code":    string(e.Code),
	}
	if e.Field != "" {
		body["field"] = e.Field
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return body
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// markdown renders wishlist bodies. Raw HTML in the source is dropped.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
