package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"math"
	"strings"
	"time"

	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/submission"
	"github.com/oss-wishlist/wishlist/internal/validate"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// SubmitInput contains parameters for the Submit operation.
type SubmitInput struct {
	Actor   Actor
	Payload submission.Payload
}

// SubmitOutput contains the result of the Submit operation.
type SubmitOutput struct {
	Issue   wishlist.IssueRef `json:"issue"`
	Created bool              `json:"created"`
}

// hydrateAll keeps every selection so over-limit input is rejected rather than truncated.
var hydrateAll = wishlist.Limits{MaxServices: math.MaxInt32, MaxTechnologies: math.MaxInt32}

// Submit creates a wishlist or updates the caller's open wishlist.
// Validation and moderation run again here; the client's checks are advisory.
func Submit(ctx context.Context, database *sql.DB, env Env, input SubmitInput) (*SubmitOutput, error) {
	if strings.TrimSpace(input.Actor.Login) == "" {
		return nil, errors.NewUnauthorized()
	}

	p := input.Payload
	if err := p.Check(); err != nil {
		return nil, payloadError(err)
	}

	repo := repositoryFromFormData(p.FormData)
	if res := validate.URL(repo.URL); res.Blocking() {
		return nil, errors.NewValidationFailed(submission.FieldPrefix+wishlist.FieldRepositoryURL, res.Error)
	}

	d := wishlist.DraftFromRecord(p.FormData, hydrateAll).Draft
	if fieldErrs := submission.ValidateDraft(d, env.limits(), env.ServiceCatalog()); len(fieldErrs) > 0 {
		e := errors.NewValidationFailed(fieldErrs[0].Field, fieldErrs[0].Message)
		e.Details = map[string]any{"fields": fieldErrs}
		return nil, e
	}
	if mod := submission.Moderate(env.Policy, d); mod.Rejected {
		return nil, errors.NewModerationRejected(mod.Messages())
	}

	source, _ := p.FormData[submission.FieldRepositorySource].(string)
	rec := &wishlist.StoredRecord{
		RepositoryURL: repo.URL,
		Title:         submission.TitlePrefix + strings.TrimSpace(d.ProjectTitle),
		Body:          submission.RenderBody(d, repo, env.ServiceCatalog()),
		Labels:        submission.Labels(d),
		FormData:      submission.FormData(d, repo, source),
	}

	if p.IsUpdate {
		return update(ctx, database, env, input.Actor, *p.IssueNumber, rec, d)
	}
	return create(ctx, database, env, input.Actor, rec, d)
}

func create(ctx context.Context, database *sql.DB, env Env, actor Actor, rec *wishlist.StoredRecord, d *wishlist.Draft) (*SubmitOutput, error) {
	norm := wishlist.NormalizeRepoURL(rec.RepositoryURL)
	existing, err := db.FindOpenByRepoURLs(database, []string{norm})
	if err != nil {
		return nil, err
	}
	if other, ok := existing[norm]; ok {
		return nil, duplicateRepository(env, other)
	}

	id, err := newID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	rec.ID = id
	rec.Maintainer = actor.Identity()
	rec.Status = wishlist.StatusOpen
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := db.InsertWishlist(database, rec); err != nil {
		if stderrors.Is(err, db.ErrUniqueConstraint) {
			return nil, errors.NewConflict("a wishlist already exists for this repository")
		}
		return nil, err
	}

	ref := env.issueRef(rec)
	env.notify(ctx, notify.Notification{
		Event: notify.WishlistCreated, Actor: actor.Login, Number: rec.Number, ID: rec.ID,
		Title: rec.Title, URL: ref.URL, Email: d.MaintainerEmail,
	})
	return &SubmitOutput{Issue: ref, Created: true}, nil
}

func update(ctx context.Context, database *sql.DB, env Env, actor Actor, number int, rec *wishlist.StoredRecord, d *wishlist.Draft) (*SubmitOutput, error) {
	current, err := db.GetWishlist(database, number)
	if err != nil {
		return nil, err
	}
	if !actor.owns(current) {
		return nil, errors.NewForbidden("only the maintainer who created this wishlist can edit it")
	}
	if current.Status != wishlist.StatusOpen {
		return nil, errors.NewConflict("wishlist is closed and can no longer be edited")
	}

	rec.ID = current.ID
	rec.Number = current.Number
	if err := db.UpdateWishlist(database, rec); err != nil {
		if stderrors.Is(err, db.ErrUniqueConstraint) {
			return nil, errors.NewConflict("another open wishlist already uses this repository")
		}
		return nil, err
	}

	ref := env.issueRef(rec)
	env.notify(ctx, notify.Notification{
		Event: notify.WishlistUpdated, Actor: actor.Login, Number: rec.Number, ID: rec.ID,
		Title: rec.Title, URL: ref.URL, Email: d.MaintainerEmail,
	})
	return &SubmitOutput{Issue: ref}, nil
}

func duplicateRepository(env Env, other *wishlist.StoredRecord) error {
	e := errors.NewConflict("a wishlist already exists for this repository")
	e.Field = submission.FieldPrefix + wishlist.FieldRepositoryURL
	e.Details = map[string]any{
		"issueNumber": other.Number,
		"issueUrl":    env.IssueURL(other.Number),
	}
	return e
}

func payloadError(err error) error {
	switch {
	case stderrors.Is(err, submission.ErrUpdatePairing):
		return errors.NewValidationFailed("issueNumber", "isUpdate and issueNumber must be sent together")
	case stderrors.Is(err, submission.ErrNoRepository):
		return errors.NewValidationFailed(submission.FieldPrefix+wishlist.FieldRepositoryURL, "Please select or enter a repository")
	}
	return errors.NewValidationFailed(submission.FieldPrefix+submission.FieldRepositorySource, err.Error())
}

// repositoryFromFormData rebuilds the bound repository of a payload.
func repositoryFromFormData(fd map[string]any) wishlist.RepositoryCandidate {
	repo := wishlist.RepositoryFromRecord(wishlist.StoredRecord{FormData: fd})
	repo.URL = strings.TrimSpace(repo.URL)
	if desc := wishlist.ResolveString(fd, wishlist.FieldRepositoryDescription); desc != "" {
		repo.Description = &desc
	}
	return repo
}
