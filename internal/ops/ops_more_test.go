package ops

import (
	"context"
	"testing"

	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

func TestCheckExisting(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")

	urls := []string{
		"https://github.com/ACME/Widget/",
		"https://github.com/acme/other",
	}
	out, err := CheckExisting(database, env, CheckExistingInput{RepositoryURLs: urls})
	if err != nil {
		t.Fatalf("CheckExisting failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}

	hit := out[urls[0]]
	if !hit.Exists || hit.IssueNumber != 1 || hit.ProjectTitle != "Widget" {
		t.Errorf("hit = %+v, want exists #1 Widget", hit)
	}
	if hit.IssueURL != "https://wish.example/wishlists/1" {
		t.Errorf("IssueURL = %q", hit.IssueURL)
	}
	if out[urls[1]].Exists {
		t.Errorf("miss = %+v, want exists=false", out[urls[1]])
	}
}

func TestCheckExisting_ClosedDoesNotCount(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")
	if _, err := Close(context.Background(), database, env, CloseInput{Actor: alice, Number: 1}); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	out, err := CheckExisting(database, env, CheckExistingInput{RepositoryURLs: []string{"https://github.com/acme/widget"}})
	if err != nil {
		t.Fatalf("CheckExisting failed: %v", err)
	}
	if out["https://github.com/acme/widget"].Exists {
		t.Error("closed wishlists must not block a new one")
	}
}

func TestCheckExisting_TooMany(t *testing.T) {
	database, env, _ := setup(t)
	urls := make([]string, MaxCheckURLs+1)
	_, err := CheckExisting(database, env, CheckExistingInput{RepositoryURLs: urls})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	database, env, rec := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")

	first, err := Close(context.Background(), database, env, CloseInput{Actor: alice, Number: 1})
	if err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if first.AlreadyClosed {
		t.Error("first close reported AlreadyClosed")
	}

	second, err := Close(context.Background(), database, env, CloseInput{Actor: alice, Number: 1})
	if err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if !second.AlreadyClosed {
		t.Error("second close should report AlreadyClosed")
	}
	if second.Issue.Number != 1 {
		t.Errorf("Issue.Number = %d, want 1", second.Issue.Number)
	}

	closed := 0
	for _, e := range rec.Events() {
		if e == notify.WishlistClosed {
			closed++
		}
	}
	if closed != 1 {
		t.Errorf("closed notifications = %d, want 1", closed)
	}
}

func TestClose_Permissions(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")

	if _, err := Close(context.Background(), database, env, CloseInput{Actor: bob, Number: 1}); !errors.Is(err, errors.ErrForbidden) {
		t.Errorf("bob: err = %v, want FORBIDDEN", err)
	}
	if _, err := Close(context.Background(), database, env, CloseInput{Number: 1}); !errors.Is(err, errors.ErrUnauthorized) {
		t.Errorf("anonymous: err = %v, want UNAUTHORIZED", err)
	}
	if _, err := Close(context.Background(), database, env, CloseInput{Actor: alice, Number: 99}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing: err = %v, want NOT_FOUND", err)
	}
	if _, err := Close(context.Background(), database, env, CloseInput{Actor: admin, Number: 1}); err != nil {
		t.Errorf("admin: err = %v", err)
	}
}

func TestFetch_Visibility(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")

	if _, err := Fetch(database, env, FetchInput{Actor: bob, Number: 1}); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("pending for stranger: err = %v, want NOT_FOUND", err)
	}

	own, err := Fetch(database, env, FetchInput{Actor: alice, Number: 1})
	if err != nil {
		t.Fatalf("Fetch(owner) failed: %v", err)
	}
	if !own.Owned {
		t.Error("Owned = false for maintainer")
	}
	if own.FormData[wishlist.FieldMaintainerEmail] != "alice@example.com" {
		t.Errorf("owner should see contact email, got %v", own.FormData[wishlist.FieldMaintainerEmail])
	}
	if own.URL != "https://wish.example/wishlists/1" {
		t.Errorf("URL = %q", own.URL)
	}

	if _, err := Approve(context.Background(), database, env, ApproveInput{Actor: admin, Number: 1}); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	public, err := Fetch(database, env, FetchInput{Actor: bob, Number: 1})
	if err != nil {
		t.Fatalf("Fetch(public) failed: %v", err)
	}
	if _, ok := public.FormData[wishlist.FieldMaintainerEmail]; ok {
		t.Error("contact email leaked to a non-owner")
	}
	// Redaction works on a copy
	again, _ := Fetch(database, env, FetchInput{Actor: alice, Number: 1})
	if again.FormData[wishlist.FieldMaintainerEmail] == nil {
		t.Error("redaction must not touch the stored record")
	}
}

func TestApprove_AdminOnly(t *testing.T) {
	database, env, rec := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/widget")

	if _, err := Approve(context.Background(), database, env, ApproveInput{Actor: alice, Number: 1}); !errors.Is(err, errors.ErrForbidden) {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
	if _, err := Approve(context.Background(), database, env, ApproveInput{Actor: admin, Number: 1}); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	// Approving twice is harmless and notifies once
	if _, err := Approve(context.Background(), database, env, ApproveInput{Actor: admin, Number: 1}); err != nil {
		t.Fatalf("second Approve failed: %v", err)
	}
	approved := 0
	for _, e := range rec.Events() {
		if e == notify.WishlistApproved {
			approved++
		}
	}
	if approved != 1 {
		t.Errorf("approved notifications = %d, want 1", approved)
	}
}

func TestList_Filters(t *testing.T) {
	database, env, _ := setup(t)
	mustSubmit(t, database, env, alice, "https://github.com/acme/one")
	mustSubmit(t, database, env, alice, "https://github.com/acme/two")
	mustSubmit(t, database, env, bob, "https://github.com/acme/three")
	if _, err := Approve(context.Background(), database, env, ApproveInput{Actor: admin, Number: 2}); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	public, err := List(database, env, ListInput{Status: "open", Approved: boolPtr(true)})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if public.Pagination.Total != 1 || public.Items[0].Number != 2 {
		t.Errorf("public = %+v, want only #2", public)
	}
	if got := public.Items[0].Services; len(got) != 1 || got[0] != "Security Audit" {
		t.Errorf("Services = %v, want [Security Audit]", got)
	}

	mine, err := List(database, env, ListInput{Maintainer: "ALICE", Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if mine.Pagination.Total != 2 || !mine.Pagination.HasMore || len(mine.Items) != 1 {
		t.Errorf("mine pagination = %+v, items %d", mine.Pagination, len(mine.Items))
	}

	if _, err := List(database, env, ListInput{Status: "archived"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestList_EmptyAndBounds(t *testing.T) {
	database, env, _ := setup(t)
	out, err := List(database, env, ListInput{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if out.Items == nil {
		t.Error("Items should be empty, not nil")
	}
	if out.Pagination.Limit != MaxListLimit || out.Pagination.Offset != 0 {
		t.Errorf("Pagination = %+v", out.Pagination)
	}
}

func TestPractitioners(t *testing.T) {
	database, env, rec := setup(t)

	p, err := CreatePractitioner(context.Background(), database, env, CreatePractitionerInput{
		Actor:    Actor{Login: "carol"},
		Name:     "Carol",
		Email:    "carol@example.com",
		Services: []string{"security-audit", "security-audit", "threat-modeling"},
	})
	if err != nil {
		t.Fatalf("CreatePractitioner failed: %v", err)
	}
	if len(p.Services) != 2 {
		t.Errorf("Services = %v, want duplicates removed", p.Services)
	}
	if p.Approved {
		t.Error("new practitioners start unapproved")
	}

	_, err = CreatePractitioner(context.Background(), database, env, CreatePractitionerInput{
		Actor: Actor{Login: "carol"}, Name: "Carol again", Email: "c2@example.com", Services: []string{"grant-writing"},
	})
	if !errors.Is(err, errors.ErrConflict) {
		t.Errorf("second profile: err = %v, want CONFLICT", err)
	}

	_, err = CreatePractitioner(context.Background(), database, env, CreatePractitionerInput{
		Actor: Actor{Login: "dave"}, Name: "Dave", Email: "dave@example.com", Services: []string{"nope"},
	})
	if got := errors.As(err).Field; got != "services" {
		t.Errorf("unknown service: field = %q, want services", got)
	}

	public, err := ListPractitioners(database, ListPractitionersInput{Approved: boolPtr(true)})
	if err != nil {
		t.Fatalf("ListPractitioners failed: %v", err)
	}
	if len(public.Items) != 0 {
		t.Errorf("unapproved profile listed publicly: %+v", public.Items)
	}

	if _, err := ApprovePractitioner(context.Background(), database, env, ApprovePractitionerInput{Actor: alice, ID: p.ID}); !errors.Is(err, errors.ErrForbidden) {
		t.Errorf("non-admin approve: err = %v, want FORBIDDEN", err)
	}
	if _, err := ApprovePractitioner(context.Background(), database, env, ApprovePractitionerInput{Actor: admin, ID: p.ID}); err != nil {
		t.Fatalf("ApprovePractitioner failed: %v", err)
	}

	public, _ = ListPractitioners(database, ListPractitionersInput{Approved: boolPtr(true), Service: "threat-modeling"})
	if len(public.Items) != 1 || public.Items[0].Email != "" {
		t.Errorf("public list = %+v, want carol without email", public.Items)
	}
	none, _ := ListPractitioners(database, ListPractitionersInput{Service: "grant-writing"})
	if len(none.Items) != 0 {
		t.Errorf("service filter returned %+v", none.Items)
	}

	want := []notify.Event{notify.PractitionerCreated, notify.PractitionerApproved}
	if got := rec.Events(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
}
