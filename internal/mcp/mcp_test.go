package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oss-wishlist/wishlist/internal/config"
	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/moderation"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/ops"
	"github.com/oss-wishlist/wishlist/internal/submission"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// testSetup creates a temporary database, config and env for testing.
func testSetup(t *testing.T) (*sql.DB, *config.Config, ops.Env) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	env := ops.Env{
		BaseURL:  "https://wish.example",
		Limits:   wishlist.DefaultLimits(),
		Policy:   moderation.DefaultPolicy(),
		Catalog:  wishlist.DefaultCatalog(),
		Notifier: &notify.Recorder{},
	}
	return database, config.DefaultConfig(), env
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// seedWishlist submits a pending wishlist for repoURL as login.
func seedWishlist(t *testing.T, database *sql.DB, env ops.Env, login, repoURL string) int {
	t.Helper()
	d := wishlist.NewDraft()
	d.MaintainerEmail = login + "@example.com"
	d.ProjectTitle = "Widget"
	d.AdditionalNotes = "We need an audit before 2.0."
	d.Services = []string{"security-audit"}
	p, err := submission.Assemble(submission.Input{
		Draft:    d,
		Selected: &wishlist.RepositoryCandidate{Name: "widget", Owner: "acme", URL: repoURL},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	out, err := ops.Submit(context.Background(), database, env, ops.SubmitInput{
		Actor:   ops.Actor{Login: login},
		Payload: *p,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return out.Issue.Number
}

func TestHandleList(t *testing.T) {
	database, _, env := testSetup(t)
	h := NewHandlers(database, env)
	ctx := context.Background()

	seedWishlist(t, database, env, "alice", "https://github.com/acme/one")
	seedWishlist(t, database, env, "bob", "https://github.com/acme/two")

	tests := []struct {
		name      string
		args      map[string]any
		wantItems int
		wantError string
	}{
		{name: "all", args: map[string]any{}, wantItems: 2},
		{name: "pending only", args: map[string]any{"approved": false}, wantItems: 2},
		{name: "approved only", args: map[string]any{"approved": true}, wantItems: 0},
		{name: "by maintainer", args: map[string]any{"maintainer": "alice"}, wantItems: 1},
		{name: "paged", args: map[string]any{"limit": 1}, wantItems: 1},
		{name: "bad status", args: map[string]any{"status": "archived"}, wantError: "INVALID_REQUEST"},
		{name: "bad type", args: map[string]any{"limit": "ten"}, wantError: "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleList(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError != "" {
				assertErrorCode(t, result, tt.wantError)
				return
			}
			output := parseOutput(t, result)
			items, _ := output["items"].([]any)
			if len(items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(items), tt.wantItems)
			}
		})
	}
}

func TestHandleFetch(t *testing.T) {
	database, _, env := testSetup(t)
	h := NewHandlers(database, env)
	ctx := context.Background()

	n := seedWishlist(t, database, env, "alice", "https://github.com/acme/widget")

	result, err := h.HandleFetch(ctx, makeRequest(map[string]any{"number": n}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["number"] != float64(n) {
		t.Errorf("number = %v, want %d", output["number"], n)
	}
	// Operator sees contact fields of pending wishlists
	formData, _ := output["formData"].(map[string]any)
	if formData["maintainerEmail"] != "alice@example.com" {
		t.Errorf("maintainerEmail = %v", formData["maintainerEmail"])
	}

	result, _ = h.HandleFetch(ctx, makeRequest(map[string]any{"number": 999}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleApproveAndClose(t *testing.T) {
	database, _, env := testSetup(t)
	h := NewHandlers(database, env)
	ctx := context.Background()

	n := seedWishlist(t, database, env, "alice", "https://github.com/acme/widget")

	result, err := h.HandleApprove(ctx, makeRequest(map[string]any{"number": n}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if output := parseOutput(t, result); output["approved"] != true {
		t.Errorf("approve output = %v", output)
	}

	rec, err := db.GetWishlist(database, n)
	if err != nil || !rec.Approved {
		t.Fatalf("GetWishlist() = %+v, %v; want approved", rec, err)
	}

	result, _ = h.HandleClose(ctx, makeRequest(map[string]any{"number": n}))
	if output := parseOutput(t, result); output["already_closed"] != false {
		t.Errorf("first close output = %v", output)
	}
	result, _ = h.HandleClose(ctx, makeRequest(map[string]any{"number": n}))
	if output := parseOutput(t, result); output["already_closed"] != true {
		t.Errorf("second close output = %v", output)
	}

	result, _ = h.HandleApprove(ctx, makeRequest(map[string]any{"number": 0}))
	assertErrorCode(t, result, "INVALID_REQUEST")
	result, _ = h.HandleApprove(ctx, makeRequest(map[string]any{"number": 999}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleCheck(t *testing.T) {
	database, _, env := testSetup(t)
	h := NewHandlers(database, env)
	ctx := context.Background()

	n := seedWishlist(t, database, env, "alice", "https://github.com/acme/widget")

	result, err := h.HandleCheck(ctx, makeRequest(map[string]any{
		"repository_urls": []any{"https://github.com/ACME/widget.git", "https://github.com/acme/none"},
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	results := output["results"].(map[string]any)
	hit := results["https://github.com/ACME/widget.git"].(map[string]any)
	if hit["exists"] != true || hit["issueNumber"] != float64(n) {
		t.Errorf("hit = %v", hit)
	}
	if miss := results["https://github.com/acme/none"].(map[string]any); miss["exists"] != false {
		t.Errorf("miss = %v", miss)
	}
}

func TestHandlePractitioners(t *testing.T) {
	database, _, env := testSetup(t)
	h := NewHandlers(database, env)
	ctx := context.Background()

	p, err := ops.CreatePractitioner(ctx, database, env, ops.CreatePractitionerInput{
		Actor:    ops.Actor{Login: "pat"},
		Name:     "Pat",
		Email:    "pat@example.com",
		Services: []string{"security-audit"},
	})
	if err != nil {
		t.Fatalf("CreatePractitioner: %v", err)
	}

	result, _ := h.HandlePractitionerList(ctx, makeRequest(map[string]any{"approved": false}))
	items := parseOutput(t, result)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["email"] != "pat@example.com" {
		t.Fatalf("pending practitioners = %v", items)
	}

	result, _ = h.HandlePractitionerApprove(ctx, makeRequest(map[string]any{"id": p.ID}))
	if output := parseOutput(t, result); output["approved"] != true {
		t.Errorf("approve output = %v", output)
	}

	result, _ = h.HandlePractitionerApprove(ctx, makeRequest(map[string]any{"id": "missing"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestServerRegistration(t *testing.T) {
	database, cfg, env := testSetup(t)

	s := NewServer(database, cfg, env, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := AllToolNames()
	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	database, cfg, env := testSetup(t)

	cfg.DisabledTools = []string{"wishlist_close", "wishlist_close", "practitioner_approve"}
	s := NewServer(database, cfg, env, "test")
	tools := s.ListTools()

	if len(tools) != len(toolRegistry)-2 {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry)-2)
	}
	for _, name := range []string{"wishlist_close", "practitioner_approve"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	if _, ok := tools["wishlist_list"]; !ok {
		t.Error("wishlist_list should be registered")
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	database, cfg, env := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	s := NewServer(database, cfg, env, "test")
	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"wishlist_close", "practitioner_approve"}, wantLen: 0},
		{name: "one unknown", input: []string{"wishlist_close", "wishlist_delete"}, wantLen: 1},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(fmt.Errorf("sql error: open /tmp/secret.db: permission denied"))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}
	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if errObj["message"] != "an internal error occurred" {
		t.Errorf("message = %v, leaks internal detail", errObj["message"])
	}
}

func TestErrorResult_WrappedErrorKeepsCode(t *testing.T) {
	r := errorResult(fmt.Errorf("approve: %w", errors.NewNotFound("wishlist", "7")))
	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
}

func TestErrorResult_FieldAndDetails(t *testing.T) {
	e := errors.NewConflict("a wishlist already exists for this repository")
	e.Field = "formData.repositoryUrl"
	e.Details = map[string]any{"issueNumber": 3}

	errObj := errorObject(t, errorResult(e))
	if errObj["field"] != "formData.repositoryUrl" {
		t.Errorf("field = %v", errObj["field"])
	}
	if _, ok := errObj["details"]; !ok {
		t.Error("expected details for non-internal errors")
	}
}

// Helper functions

func errorObject(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected error %s, got success: %s", expectedCode, extractErrorMessage(result))
	}
	if code, _ := errorObject(t, result)["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
