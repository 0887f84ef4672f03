package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/moderation"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/validate"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// MaxPractitionerServices bounds the services one practitioner may offer.
const MaxPractitionerServices = 10

// CreatePractitionerInput contains parameters for the CreatePractitioner operation.
type CreatePractitionerInput struct {
	Actor      Actor
	Name       string
	Email      string
	Title      string
	Company    string
	Services   []string
	ProfileURL string
}

// CreatePractitioner stores the caller's practitioner profile, pending approval.
func CreatePractitioner(ctx context.Context, database *sql.DB, env Env, input CreatePractitionerInput) (*wishlist.Practitioner, error) {
	if strings.TrimSpace(input.Actor.Login) == "" {
		return nil, errors.NewUnauthorized()
	}

	p := &wishlist.Practitioner{
		Login:      input.Actor.Identity(),
		Name:       strings.TrimSpace(input.Name),
		Email:      strings.TrimSpace(input.Email),
		Title:      strings.TrimSpace(input.Title),
		Company:    strings.TrimSpace(input.Company),
		ProfileURL: strings.TrimSpace(input.ProfileURL),
	}
	seen := make(map[string]bool)
	for _, id := range input.Services {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			p.Services = append(p.Services, id)
		}
	}

	if err := validatePractitioner(env, p); err != nil {
		return nil, err
	}
	if mod := moderation.Check(env.Policy, p.Name, p.Title, p.Company); mod.Rejected {
		return nil, errors.NewModerationRejected(mod.Messages())
	}

	id, err := newID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := db.InsertPractitioner(database, p); err != nil {
		if stderrors.Is(err, db.ErrUniqueConstraint) {
			return nil, errors.NewConflict("a practitioner profile already exists for this account")
		}
		return nil, err
	}

	env.notify(ctx, notify.Notification{
		Event: notify.PractitionerCreated, Actor: p.Login, ID: p.ID, Title: p.Name, Email: p.Email,
	})
	return p, nil
}

func validatePractitioner(env Env, p *wishlist.Practitioner) error {
	if r := validate.Length(p.Name, validate.LengthRule{Label: "Name", MinLength: 1, MaxLength: 100}); r.Blocking() {
		return errors.NewValidationFailed("name", r.Error)
	}
	if r := validate.Email(p.Email); r.Blocking() {
		return errors.NewValidationFailed("email", r.Error)
	}
	if r := validate.ArraySize(len(p.Services), validate.SizeRule{
		Label: "services", MinSize: 1, MaxSize: MaxPractitionerServices,
	}); r.Blocking() {
		return errors.NewValidationFailed("services", r.Error)
	}
	for _, id := range p.Services {
		if _, ok := env.ServiceCatalog().Lookup(id); !ok {
			return errors.NewValidationFailed("services", fmt.Sprintf("Unknown service %q", id))
		}
	}
	if p.ProfileURL != "" {
		if r := validate.URL(p.ProfileURL); r.Blocking() {
			return errors.NewValidationFailed("profileUrl", r.Error)
		}
	}
	return nil
}

// ListPractitionersInput contains parameters for the ListPractitioners operation.
type ListPractitionersInput struct {
	Approved *bool  // nil lists every profile
	Service  string // optional: only practitioners offering this service id

	// IncludeContact keeps email addresses in the result.
	IncludeContact bool
}

// ListPractitionersOutput contains the result of the ListPractitioners operation.
type ListPractitionersOutput struct {
	Items []wishlist.Practitioner `json:"items"`
}

// ListPractitioners lists practitioner profiles ordered by name.
func ListPractitioners(database *sql.DB, input ListPractitionersInput) (*ListPractitionersOutput, error) {
	all, err := db.ListPractitioners(database, input.Approved)
	if err != nil {
		return nil, err
	}
	service := strings.TrimSpace(input.Service)
	items := make([]wishlist.Practitioner, 0, len(all))
	for _, p := range all {
		if service != "" && !p.Offers(service) {
			continue
		}
		if !input.IncludeContact {
			p.Email = ""
		}
		items = append(items, p)
	}
	return &ListPractitionersOutput{Items: items}, nil
}

// ApprovePractitionerInput contains parameters for the ApprovePractitioner operation.
type ApprovePractitionerInput struct {
	Actor Actor
	ID    string
}

// ApprovePractitioner publishes a practitioner profile. Admins only.
func ApprovePractitioner(ctx context.Context, database *sql.DB, env Env, input ApprovePractitionerInput) (*wishlist.Practitioner, error) {
	if !input.Actor.Admin {
		return nil, errors.NewForbidden("only admins can approve practitioners")
	}
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("practitioner id is required")
	}
	if err := db.ApprovePractitioner(database, id); err != nil {
		return nil, err
	}
	p, err := db.GetPractitioner(database, id)
	if err != nil {
		return nil, err
	}
	env.notify(ctx, notify.Notification{
		Event: notify.PractitionerApproved, Actor: input.Actor.Login, ID: p.ID, Title: p.Name, Email: p.Email,
	})
	return p, nil
}
