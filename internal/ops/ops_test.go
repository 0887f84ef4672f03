package ops

import (
	"context"
	"database/sql"
	"testing"

	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/moderation"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/submission"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

var (
	alice = Actor{Login: "alice"}
	bob   = Actor{Login: "bob"}
	admin = Actor{Login: "root", Admin: true}
)

func setup(t *testing.T) (*sql.DB, Env, *notify.Recorder) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	rec := &notify.Recorder{}
	env := Env{
		BaseURL:  "https://wish.example/",
		Limits:   wishlist.DefaultLimits(),
		Policy:   moderation.DefaultPolicy(),
		Catalog:  wishlist.DefaultCatalog(),
		Notifier: rec,
	}
	return database, env, rec
}

func draft() *wishlist.Draft {
	d := wishlist.NewDraft()
	d.MaintainerEmail = "alice@example.com"
	d.ProjectTitle = "Widget"
	d.Services = []string{"security-audit"}
	d.AdditionalNotes = "We need an audit before 2.0."
	return d
}

func payloadFor(t *testing.T, d *wishlist.Draft, repoURL string, issueNumber int) submission.Payload {
	t.Helper()
	repo := &wishlist.RepositoryCandidate{Name: "widget", Owner: "acme", URL: repoURL}
	p, err := submission.Assemble(submission.Input{
		Draft:       d,
		Selected:    repo,
		IsUpdate:    issueNumber > 0,
		IssueNumber: issueNumber,
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	return *p
}

func mustSubmit(t *testing.T, database *sql.DB, env Env, actor Actor, repoURL string) *SubmitOutput {
	t.Helper()
	out, err := Submit(context.Background(), database, env, SubmitInput{
		Actor:   actor,
		Payload: payloadFor(t, draft(), repoURL, 0),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return out
}

func boolPtr(b bool) *bool {
	return &b
}
