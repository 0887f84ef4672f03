package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/ops"
)

// operator is the actor behind every tool call. The stdio server runs on the
// host that owns the database, so it acts with admin rights.
var operator = ops.Actor{Login: "operator", Admin: true}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	env ops.Env
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, env ops.Env) *Handlers {
	return &Handlers{db: db, env: env}
}

// Request types for each tool

// ListRequest represents the arguments for wishlist_list.
type ListRequest struct {
	Status     string `json:"status,omitempty"`
	Approved   *bool  `json:"approved,omitempty"`
	Maintainer string `json:"maintainer,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// NumberRequest represents the arguments of tools addressing one wishlist.
type NumberRequest struct {
	Number int `json:"number"`
}

// CheckRequest represents the arguments for wishlist_check.
type CheckRequest struct {
	RepositoryURLs []string `json:"repository_urls"`
}

// PractitionerListRequest represents the arguments for practitioner_list.
type PractitionerListRequest struct {
	Approved *bool  `json:"approved,omitempty"`
	Service  string `json:"service,omitempty"`
}

// PractitionerApproveRequest represents the arguments for practitioner_approve.
type PractitionerApproveRequest struct {
	ID string `json:"id"`
}

// HandleList handles the wishlist_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(h.db, h.env, ops.ListInput{
		Status:     input.Status,
		Approved:   input.Approved,
		Maintainer: input.Maintainer,
		Limit:      input.Limit,
		Offset:     input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the wishlist_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NumberRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(h.db, h.env, ops.FetchInput{Actor: operator, Number: input.Number})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result.StoredRecord)
}

// HandleCheck handles the wishlist_check tool call.
func (h *Handlers) HandleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CheckRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CheckExisting(h.db, h.env, ops.CheckExistingInput{RepositoryURLs: input.RepositoryURLs})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"results": result})
}

// HandleApprove handles the wishlist_approve tool call.
func (h *Handlers) HandleApprove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NumberRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Approve(ctx, h.db, h.env, ops.ApproveInput{Actor: operator, Number: input.Number})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"approved": true, "issue": result})
}

// HandleClose handles the wishlist_close tool call.
func (h *Handlers) HandleClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NumberRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Close(ctx, h.db, h.env, ops.CloseInput{Actor: operator, Number: input.Number})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"issue": result.Issue, "already_closed": result.AlreadyClosed})
}

// HandlePractitionerList handles the practitioner_list tool call.
func (h *Handlers) HandlePractitionerList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PractitionerListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListPractitioners(h.db, ops.ListPractitionersInput{
		Approved:       input.Approved,
		Service:        input.Service,
		IncludeContact: true,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePractitionerApprove handles the practitioner_approve tool call.
func (h *Handlers) HandlePractitionerApprove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PractitionerApproveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ApprovePractitioner(ctx, h.db, h.env, ops.ApprovePractitionerInput{Actor: operator, ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if e := errors.As(err); e.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    e.Code,
			"message": e.Message,
			"status":  e.Status,
		}
		if e.Field != "" {
			errorObj["field"] = e.Field
		}
		if e.Details != nil {
			errorObj["details"] = e.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
