package ops

import (
	"context"
	"strings"
	"testing"

	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/submission"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

func TestSubmit_Create(t *testing.T) {
	database, env, rec := setup(t)

	out := mustSubmit(t, database, env, alice, "https://github.com/acme/widget")
	if !out.Created {
		t.Error("Created = false, want true")
	}
	if out.Issue.Number != 1 {
		t.Errorf("Issue.Number = %d, want 1", out.Issue.Number)
	}
	if out.Issue.URL != "https://wish.example/wishlists/1" {
		t.Errorf("Issue.URL = %q", out.Issue.URL)
	}

	stored, err := db.GetWishlist(database, 1)
	if err != nil {
		t.Fatalf("GetWishlist failed: %v", err)
	}
	if stored.Maintainer != "github:alice" {
		t.Errorf("Maintainer = %q, want github:alice", stored.Maintainer)
	}
	if stored.Approved {
		t.Error("new wishlists must start unapproved")
	}
	if stored.Title != "Wishlist: Widget" {
		t.Errorf("Title = %q", stored.Title)
	}
	if !strings.Contains(stored.Body, "Security Audit") {
		t.Errorf("Body should list service titles, got:\n%s", stored.Body)
	}
	if len(stored.ID) != 26 {
		t.Errorf("ID length = %d, want 26 (ULID)", len(stored.ID))
	}

	if got := rec.Events(); len(got) != 1 || got[0] != notify.WishlistCreated {
		t.Errorf("events = %v, want [wishlist.created]", got)
	}
}

func TestSubmit_RequiresLogin(t *testing.T) {
	database, env, _ := setup(t)
	_, err := Submit(context.Background(), database, env, SubmitInput{
		Payload: payloadFor(t, draft(), "https://github.com/acme/widget", 0),
	})
	if !errors.Is(err, errors.ErrUnauthorized) {
		t.Fatalf("err = %v, want UNAUTHORIZED", err)
	}
}

func TestSubmit_DuplicateRepository(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")

	_, err := Submit(context.Background(), database, env, SubmitInput{
		Actor:   bob,
		Payload: payloadFor(t, draft(), "https://GitHub.com/acme/widget.git/", 0),
	})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
	e := errors.As(err)
	if e.Details["issueNumber"] != 1 {
		t.Errorf("Details = %v, want issueNumber 1", e.Details)
	}
}

func TestSubmit_ValidationFailed(t *testing.T) {
	database, env, _ := setup(t)
	d := draft()
	d.MaintainerEmail = "not-an-email"

	_, err := Submit(context.Background(), database, env, SubmitInput{
		Actor:   alice,
		Payload: payloadFor(t, d, "https://github.com/acme/widget", 0),
	})
	if !errors.Is(err, errors.ErrValidationFailed) {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	if got := errors.As(err).Field; got != "formData.maintainerEmail" {
		t.Errorf("Field = %q, want formData.maintainerEmail", got)
	}
}

func TestSubmit_TooManyServicesRejectedNotTruncated(t *testing.T) {
	database, env, _ := setup(t)
	p := payloadFor(t, draft(), "https://github.com/acme/widget", 0)
	p.FormData[wishlist.FieldServices] = []any{"security-audit", "threat-modeling", "grant-writing", "funding-strategy"}

	_, err := Submit(context.Background(), database, env, SubmitInput{Actor: alice, Payload: p})
	if !errors.Is(err, errors.ErrValidationFailed) {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	if got := errors.As(err).Field; got != "formData.services" {
		t.Errorf("Field = %q, want formData.services", got)
	}
}

func TestSubmit_UnknownService(t *testing.T) {
	database, env, _ := setup(t)
	p := payloadFor(t, draft(), "https://github.com/acme/widget", 0)
	p.FormData[wishlist.FieldServices] = []any{"free-lunch"}

	_, err := Submit(context.Background(), database, env, SubmitInput{Actor: alice, Payload: p})
	if !errors.Is(err, errors.ErrValidationFailed) {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestSubmit_ModerationRejected(t *testing.T) {
	database, env, rec := setup(t)
	d := draft()
	d.AdditionalNotes = "see http://a.example http://b.example https://c.example https://d.example"

	_, err := Submit(context.Background(), database, env, SubmitInput{
		Actor:   alice,
		Payload: payloadFor(t, d, "https://github.com/acme/widget", 0),
	})
	if !errors.Is(err, errors.ErrModerationRejected) {
		t.Fatalf("err = %v, want MODERATION_REJECTED", err)
	}
	if len(rec.Events()) != 0 {
		t.Errorf("rejected submissions must not notify, got %v", rec.Events())
	}
}

func TestSubmit_BrokenPayload(t *testing.T) {
	database, env, _ := setup(t)
	p := payloadFor(t, draft(), "https://github.com/acme/widget", 0)
	p.IsUpdate = true // without issueNumber

	_, err := Submit(context.Background(), database, env, SubmitInput{Actor: alice, Payload: p})
	if !errors.Is(err, errors.ErrValidationFailed) {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	if got := errors.As(err).Field; got != "issueNumber" {
		t.Errorf("Field = %q, want issueNumber", got)
	}

	p = payloadFor(t, draft(), "javascript:alert(1)", 0)
	_, err = Submit(context.Background(), database, env, SubmitInput{Actor: alice, Payload: p})
	if got := errors.As(err).Field; got != "formData.repositoryUrl" {
		t.Errorf("Field = %q, want formData.repositoryUrl", got)
	}
}

func TestSubmit_Update(t *testing.T) {
	database, env, rec := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")
	if _, err := Approve(context.Background(), database, env, ApproveInput{Actor: admin, Number: 1}); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	d := draft()
	d.ProjectTitle = "Widget Pro"
	out, err := Submit(context.Background(), database, env, SubmitInput{
		Actor:   alice,
		Payload: payloadFor(t, d, "https://github.com/acme/widget", 1),
	})
	if err != nil {
		t.Fatalf("Submit(update) failed: %v", err)
	}
	if out.Created || out.Issue.Number != 1 {
		t.Errorf("out = %+v, want update of #1", out)
	}

	stored, _ := db.GetWishlist(database, 1)
	if stored.Title != "Wishlist: Widget Pro" {
		t.Errorf("Title = %q", stored.Title)
	}
	if !stored.Approved {
		t.Error("edits must keep approval")
	}
	if _, ok := stored.FormData[wishlist.FieldIsUpdate]; !ok {
		t.Error("formData should keep the isUpdate marker")
	}
	events := rec.Events()
	if events[len(events)-1] != notify.WishlistUpdated {
		t.Errorf("last event = %v, want wishlist.updated", events[len(events)-1])
	}
}

func TestSubmit_DuplicateRepositoryOtherScheme(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")

	_, err := Submit(context.Background(), database, env, SubmitInput{
		Actor:   bob,
		Payload: payloadFor(t, draft(), "http://www.github.com/acme/widget", 0),
	})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}

	out, err := CheckExisting(database, env, CheckExistingInput{RepositoryURLs: []string{"http://github.com/acme/widget"}})
	if err != nil {
		t.Fatalf("CheckExisting failed: %v", err)
	}
	if res := out["http://github.com/acme/widget"]; !res.Exists || res.IssueNumber != 1 {
		t.Errorf("CheckExisting = %+v, want #1", res)
	}
}

func TestSubmit_UpdateSameLoginOtherProvider(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")

	p := payloadFor(t, draft(), "https://github.com/acme/widget", 1)
	gitlabAlice := Actor{Login: "alice", Provider: "gitlab"}
	_, err := Submit(context.Background(), database, env, SubmitInput{Actor: gitlabAlice, Payload: p})
	if !errors.Is(err, errors.ErrForbidden) {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}

	githubAlice := Actor{Login: "ALICE", Provider: "GitHub"}
	if _, err := Submit(context.Background(), database, env, SubmitInput{Actor: githubAlice, Payload: p}); err != nil {
		t.Fatalf("owner update failed: %v", err)
	}
}

func TestSubmit_UpdateOwnership(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")

	p := payloadFor(t, draft(), "https://github.com/acme/widget", 1)
	_, err := Submit(context.Background(), database, env, SubmitInput{Actor: bob, Payload: p})
	if !errors.Is(err, errors.ErrForbidden) {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}

	// Admins may edit any wishlist
	if _, err := Submit(context.Background(), database, env, SubmitInput{Actor: admin, Payload: p}); err != nil {
		t.Fatalf("admin update failed: %v", err)
	}
}

func TestSubmit_UpdateClosed(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")
	if _, err := Close(context.Background(), database, env, CloseInput{Actor: alice, Number: 1}); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err := Submit(context.Background(), database, env, SubmitInput{
		Actor:   alice,
		Payload: payloadFor(t, draft(), "https://github.com/acme/widget", 1),
	})
	if !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
}

func TestSubmit_LegacyKeysStoredCanonically(t *testing.T) {
	database, env, _ := setup(t)
	p := submission.Payload{
		Title: "Wishlist: Old",
		FormData: map[string]any{
			"project":                        "Old Project",
			"email":                          "old@example.com",
			"wishes":                         []any{"security-audit"},
			"additionalContext":              "legacy notes",
			"repoUrl":                        "https://github.com/acme/old",
			submission.FieldRepositorySource: submission.SourceManual,
		},
	}
	if _, err := Submit(context.Background(), database, env, SubmitInput{Actor: alice, Payload: p}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	stored, _ := db.GetWishlist(database, 1)
	if got := stored.FormData[wishlist.FieldProjectTitle]; got != "Old Project" {
		t.Errorf("projectTitle = %v, want Old Project", got)
	}
	if _, ok := stored.FormData["project"]; ok {
		t.Error("legacy key should not be stored")
	}
	if stored.RepositoryURL != "https://github.com/acme/old" {
		t.Errorf("RepositoryURL = %q", stored.RepositoryURL)
	}
}
