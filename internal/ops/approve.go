package ops

import (
	"context"
	"database/sql"

	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// ApproveInput contains parameters for the Approve operation.
type ApproveInput struct {
	Actor  Actor
	Number int
}

// Approve publishes a wishlist on the public list. Admins only.
func Approve(ctx context.Context, database *sql.DB, env Env, input ApproveInput) (*wishlist.IssueRef, error) {
	if !input.Actor.Admin {
		return nil, errors.NewForbidden("only admins can approve wishlists")
	}
	if input.Number <= 0 {
		return nil, errors.NewInvalidRequest("wishlist number must be positive")
	}

	rec, err := db.GetWishlist(database, input.Number)
	if err != nil {
		return nil, err
	}
	ref := env.issueRef(rec)
	if rec.Approved {
		return &ref, nil
	}
	if err := db.ApproveWishlist(database, input.Number); err != nil {
		return nil, err
	}

	env.notify(ctx, notify.Notification{
		Event: notify.WishlistApproved, Actor: input.Actor.Login, Number: rec.Number, ID: rec.ID,
		Title: rec.Title, URL: ref.URL,
		Email: wishlist.ResolveString(rec.FormData, wishlist.FieldMaintainerEmail),
	})
	return &ref, nil
}
