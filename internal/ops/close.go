package ops

import (
	"context"
	"database/sql"

	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/notify"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// CloseInput contains parameters for the Close operation.
type CloseInput struct {
	Actor  Actor
	Number int
}

// Close closes a wishlist. Closing an already-closed wishlist succeeds with
// AlreadyClosed set, so retries are safe.
func Close(ctx context.Context, database *sql.DB, env Env, input CloseInput) (*wishlist.CloseResult, error) {
	if input.Actor.Login == "" {
		return nil, errors.NewUnauthorized()
	}
	if input.Number <= 0 {
		return nil, errors.NewInvalidRequest("issueNumber must be positive")
	}

	rec, err := db.GetWishlist(database, input.Number)
	if err != nil {
		return nil, err
	}
	if !input.Actor.owns(rec) {
		return nil, errors.NewForbidden("only the maintainer who created this wishlist can close it")
	}

	closed, err := db.CloseWishlist(database, input.Number)
	if err != nil {
		return nil, err
	}

	ref := env.issueRef(rec)
	if closed {
		env.notify(ctx, notify.Notification{
			Event: notify.WishlistClosed, Actor: input.Actor.Login, Number: rec.Number, ID: rec.ID,
			Title: rec.Title, URL: ref.URL,
			Email: wishlist.ResolveString(rec.FormData, wishlist.FieldMaintainerEmail),
		})
	}
	return &wishlist.CloseResult{Issue: ref, AlreadyClosed: !closed}, nil
}
