package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/auth"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/ops"
	"github.com/oss-wishlist/wishlist/internal/submission"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// requireAPISession answers 401 in the API envelope when no session is present.
func (h *Handlers) requireAPISession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()) == nil {
			renderJSON(w, http.StatusUnauthorized, apiError(errors.NewUnauthorized()))
			return
		}
		next(w, r)
	})
}

func (h *Handlers) apiFail(w http.ResponseWriter, err error) {
	e := h.renderer.public(err)
	renderJSON(w, e.Status, apiError(e))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewInvalidRequest("request body must be valid JSON")
	}
	return nil
}

// APISession handles GET /api/auth/session.
func (h *Handlers) APISession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	info := wishlist.SessionInfo{}
	if sess := auth.FromContext(r.Context()); sess != nil {
		user := sess.User
		info.Authenticated = true
		info.User = &user
	}
	renderJSON(w, http.StatusOK, info)
}

// APIToken handles GET /api/auth/token.
func (h *Handlers) APIToken(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	renderJSON(w, http.StatusOK, map[string]any{
		"token":     sess.ID,
		"expiresAt": sess.ExpiresAt.Unix(),
	})
}

// APIRepositories handles GET /api/repositories.
func (h *Handlers) APIRepositories(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	p, ok := h.auth.Provider(sess.User.Provider)
	if !ok || sess.Token == nil {
		h.apiFail(w, errors.NewInvalidRequest("this session is not linked to a code host"))
		return
	}

	repos, err := p.Repositories(r.Context(), sess.Token)
	if err != nil {
		h.logger.Warn("repository listing failed",
			zap.String("provider", p.Name()), zap.String("login", sess.User.Login), zap.Error(err))
		h.apiFail(w, errors.NewUpstream(p.Name(), nil))
		return
	}
	if repos == nil {
		repos = []wishlist.RepositoryCandidate{}
	}
	renderJSON(w, http.StatusOK, map[string]any{"repositories": repos})
}

// APICheck handles POST /api/wishlists/check.
func (h *Handlers) APICheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RepositoryURLs []string `json:"repositoryUrls"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		h.apiFail(w, err)
		return
	}
	out, err := ops.CheckExisting(h.db, h.env, ops.CheckExistingInput{RepositoryURLs: body.RepositoryURLs})
	if err != nil {
		h.apiFail(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// APIList handles GET /api/wishlists. Anonymous callers see approved wishlists;
// mine=true lists the caller's own; admins may ask for approved=false.
func (h *Handlers) APIList(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	input := ops.ListInput{
		Status: r.URL.Query().Get("status"),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	}
	switch {
	case parseBoolParam(r, "mine"):
		if a.Login == "" {
			h.apiFail(w, errors.NewUnauthorized())
			return
		}
		input.Maintainer = a.Identity()
	case a.Admin && r.URL.Query().Get("approved") == "false":
		pending := false
		input.Approved = &pending
	default:
		approved := true
		input.Approved = &approved
	}

	out, err := ops.List(h.db, h.env, input)
	if err != nil {
		h.apiFail(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// APIWishlist handles GET /api/wishlists/{number}. Responses are never cached
// so edit hydration sees the latest write.
func (h *Handlers) APIWishlist(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")

	number, err := pathNumber(r)
	if err != nil {
		h.apiFail(w, err)
		return
	}
	rec, err := ops.Fetch(h.db, h.env, ops.FetchInput{Actor: actor(r), Number: number})
	if err != nil {
		h.apiFail(w, err)
		return
	}
	renderJSON(w, http.StatusOK, rec.StoredRecord)
}

// APISubmit handles POST /api/wishlists.
func (h *Handlers) APISubmit(w http.ResponseWriter, r *http.Request) {
	var p submission.Payload
	if err := decodeBody(w, r, &p); err != nil {
		h.apiFail(w, err)
		return
	}
	out, err := ops.Submit(r.Context(), h.db, h.env, ops.SubmitInput{Actor: actor(r), Payload: p})
	if err != nil {
		h.apiFail(w, err)
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	renderJSON(w, status, map[string]any{
		"success": true,
		"data":    wishlist.SubmitResult{Issue: out.Issue},
	})
}

// APIClose handles POST /api/wishlists/close.
func (h *Handlers) APIClose(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IssueNumber int `json:"issueNumber"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		h.apiFail(w, err)
		return
	}
	out, err := ops.Close(r.Context(), h.db, h.env, ops.CloseInput{Actor: actor(r), Number: body.IssueNumber})
	if err != nil {
		h.apiFail(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"issue":   out.Issue,
		"data":    map[string]any{"alreadyClosed": out.AlreadyClosed},
	})
}

// APIApprove handles POST /api/wishlists/{number}/approve.
func (h *Handlers) APIApprove(w http.ResponseWriter, r *http.Request) {
	number, err := pathNumber(r)
	if err != nil {
		h.apiFail(w, err)
		return
	}
	ref, err := ops.Approve(r.Context(), h.db, h.env, ops.ApproveInput{Actor: actor(r), Number: number})
	if err != nil {
		h.apiFail(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"success": true, "issue": ref})
}

// APIPractitioners handles GET /api/practitioners.
func (h *Handlers) APIPractitioners(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	input := ops.ListPractitionersInput{Service: r.URL.Query().Get("service"), IncludeContact: a.Admin}
	if !a.Admin || r.URL.Query().Get("approved") != "false" {
		approved := true
		input.Approved = &approved
	} else {
		pending := false
		input.Approved = &pending
	}
	out, err := ops.ListPractitioners(h.db, input)
	if err != nil {
		h.apiFail(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// APICreatePractitioner handles POST /api/practitioners.
func (h *Handlers) APICreatePractitioner(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name       string   `json:"name"`
		Email      string   `json:"email"`
		Title      string   `json:"title"`
		Company    string   `json:"company"`
		Services   []string `json:"services"`
		ProfileURL string   `json:"profileUrl"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		h.apiFail(w, err)
		return
	}
	p, err := ops.CreatePractitioner(r.Context(), h.db, h.env, ops.CreatePractitionerInput{
		Actor:      actor(r),
		Name:       body.Name,
		Email:      body.Email,
		Title:      body.Title,
		Company:    body.Company,
		Services:   body.Services,
		ProfileURL: body.ProfileURL,
	})
	if err != nil {
		h.apiFail(w, err)
		return
	}
	renderJSON(w, http.StatusCreated, map[string]any{"success": true, "data": p})
}

// APIApprovePractitioner handles POST /api/practitioners/{id}/approve.
func (h *Handlers) APIApprovePractitioner(w http.ResponseWriter, r *http.Request) {
	p, err := ops.ApprovePractitioner(r.Context(), h.db, h.env, ops.ApprovePractitionerInput{
		Actor: actor(r),
		ID:    r.PathValue("id"),
	})
	if err != nil {
		h.apiFail(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"success": true, "data": p})
}
