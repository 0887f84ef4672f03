package ops

import (
	"database/sql"
	"maps"

	"github.com/oss-wishlist/wishlist/internal/db"
	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	Actor  Actor
	Number int
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	wishlist.StoredRecord // embedded (copy, not pointer)

	// Owned is set when the actor may edit or close the wishlist.
	Owned bool `json:"-"`
}

// contactFields are hidden from anyone but the maintainer and admins.
var contactFields = []string{
	wishlist.FieldMaintainerEmail, "email", "contactEmail",
	wishlist.FieldNomineeEmail,
}

// Fetch retrieves a wishlist by number. Pending wishlists are visible to
// their maintainer and admins only; other callers get NOT_FOUND.
func Fetch(database *sql.DB, env Env, input FetchInput) (*FetchOutput, error) {
	if input.Number <= 0 {
		return nil, errors.NewInvalidRequest("wishlist number must be positive")
	}
	rec, err := db.GetWishlist(database, input.Number)
	if err != nil {
		return nil, err
	}

	owned := input.Actor.owns(rec)
	if !rec.Approved && !owned {
		return nil, errors.NewNotFound("wishlist", itoa(input.Number))
	}

	output := &FetchOutput{StoredRecord: *rec, Owned: owned}
	output.URL = env.IssueURL(rec.Number)
	if !owned {
		output.FormData = maps.Clone(rec.FormData)
		for _, key := range contactFields {
			delete(output.FormData, key)
		}
	}
	return output, nil
}
