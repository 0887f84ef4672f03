package mcp

import "github.com/mark3labs/mcp-go/mcp"

var listToolDef = mcp.NewTool("wishlist_list",
	mcp.WithDescription("List wishlists, most recently updated first. Defaults to open wishlists of every approval state."),
	mcp.WithString("status", mcp.Description("Filter by status"), mcp.Enum("open", "closed")),
	mcp.WithBoolean("approved", mcp.Description("Filter by approval state; omit for both")),
	mcp.WithString("maintainer", mcp.Description("Only wishlists submitted by this account, as provider:login (a bare login means github)")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var fetchToolDef = mcp.NewTool("wishlist_fetch",
	mcp.WithDescription("Fetch one wishlist including its rendered body and form data."),
	mcp.WithNumber("number", mcp.Required(), mcp.Description("Wishlist number")),
)

var checkToolDef = mcp.NewTool("wishlist_check",
	mcp.WithDescription("Report which repository URLs already have an open wishlist."),
	mcp.WithArray("repository_urls", mcp.Required(), mcp.Description("Repository URLs to look up"), mcp.WithStringItems()),
)

var approveToolDef = mcp.NewTool("wishlist_approve",
	mcp.WithDescription("Approve a pending wishlist so it appears in the public listing."),
	mcp.WithNumber("number", mcp.Required(), mcp.Description("Wishlist number")),
)

var closeToolDef = mcp.NewTool("wishlist_close",
	mcp.WithDescription("Close a wishlist. Closing a closed wishlist succeeds with already_closed set."),
	mcp.WithNumber("number", mcp.Required(), mcp.Description("Wishlist number")),
)

var practitionerListToolDef = mcp.NewTool("practitioner_list",
	mcp.WithDescription("List practitioner profiles with contact details."),
	mcp.WithBoolean("approved", mcp.Description("Filter by approval state; omit for both")),
	mcp.WithString("service", mcp.Description("Only practitioners offering this service id")),
)

var practitionerApproveToolDef = mcp.NewTool("practitioner_approve",
	mcp.WithDescription("Approve a practitioner profile for the public directory."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Practitioner id")),
)
