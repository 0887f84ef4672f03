package ops

import (
	"context"
	"crypto/rand"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/config"
	"github.com/oss-wishlist/wishlist/internal/logging"
	"github.com/oss-wishlist/wishlist/internal/moderation"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	MaxCheckURLs     = 200
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Actor is the caller of an operation. Provider names the code host that
// authenticated Login; an empty Provider means wishlist.DefaultProvider.
type Actor struct {
	Login    string
	Provider string
	Admin    bool
}

// Identity returns the provider-qualified key wishlists are stored under.
func (a Actor) Identity() string {
	return wishlist.Identity(a.Provider, a.Login)
}

// owns reports whether the actor may change rec. The same login on another
// code host is a different account.
func (a Actor) owns(rec *wishlist.StoredRecord) bool {
	if a.Admin {
		return true
	}
	id := a.Identity()
	return id != "" && id == wishlist.ParseIdentity(rec.Maintainer)
}

// Env carries what operations need beyond the database.
type Env struct {
	BaseURL  string
	Limits   wishlist.Limits
	Policy   moderation.Policy
	Catalog  *wishlist.Catalog
	Notifier notify.Notifier
	Logger   *zap.Logger
}

// NewEnv builds an Env from configuration.
func NewEnv(cfg *config.Config, notifier notify.Notifier, logger *zap.Logger) Env {
	return Env{
		BaseURL: cfg.BaseURL,
		Limits: wishlist.Limits{
			MaxServices:     cfg.MaxServices,
			MaxTechnologies: cfg.MaxTechnologies,
			NotesMaxChars:   cfg.NotesMaxChars,
		},
		Policy:   moderation.PolicyFromConfig(cfg.Moderation),
		Catalog:  wishlist.DefaultCatalog(),
		Notifier: notifier,
		Logger:   logger,
	}
}

// ServiceCatalog returns the configured catalog or the embedded default.
func (e Env) ServiceCatalog() *wishlist.Catalog {
	if e.Catalog == nil {
		return wishlist.DefaultCatalog()
	}
	return e.Catalog
}

func (e Env) limits() wishlist.Limits {
	if e.Limits.MaxServices == 0 {
		return wishlist.DefaultLimits()
	}
	return e.Limits
}

// IssueURL is the public page of wishlist number n.
func (e Env) IssueURL(n int) string {
	return strings.TrimRight(e.BaseURL, "/") + "/wishlists/" + strconv.Itoa(n)
}

func (e Env) issueRef(rec *wishlist.StoredRecord) wishlist.IssueRef {
	return wishlist.IssueRef{Number: rec.Number, URL: e.IssueURL(rec.Number), Title: rec.Title}
}

// notify delivers n; failures are logged and otherwise ignored.
func (e Env) notify(ctx context.Context, n notify.Notification) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Notify(ctx, n); err != nil {
		logging.OrNop(e.Logger).Warn("notification failed", zap.String("event", string(n.Event)), zap.Error(err))
	}
}

func newID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// page applies limit defaults and bounds.
func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}
