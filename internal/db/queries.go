package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.Error{
	Code:    errors.ErrConflict,
	Status:  409,
	Message: "unique constraint violation",
}

const wishlistColumns = `
	id, number, repository_url, title, body, form_json, labels_json,
	approved, status, maintainer, created_at, updated_at, closed_at
`

// InsertWishlist stores a new wishlist and assigns the next record number.
// r.Number is set on success.
func InsertWishlist(db *sql.DB, r *wishlist.StoredRecord) error {
	formJSON, labelsJSON, err := encodeRecord(r)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO wishlists (
			id, number, repository_url, repository_url_norm, title, body,
			form_json, labels_json, approved, status, maintainer,
			created_at, updated_at, closed_at
		) VALUES (
			?, (SELECT COALESCE(MAX(number), 0) + 1 FROM wishlists),
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL
		)
		RETURNING number
	`

	status := r.Status
	if status == "" {
		status = wishlist.StatusOpen
	}
	err = db.QueryRow(query,
		r.ID, r.RepositoryURL, wishlist.NormalizeRepoURL(r.RepositoryURL), r.Title, r.Body,
		formJSON, labelsJSON, boolToInt(r.Approved), string(status), r.Maintainer,
		r.CreatedAt, r.UpdatedAt,
	).Scan(&r.Number)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	r.Status = status

	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetWishlist retrieves a wishlist by its record number.
func GetWishlist(db *sql.DB, number int) (*wishlist.StoredRecord, error) {
	row := db.QueryRow(`SELECT `+wishlistColumns+` FROM wishlists WHERE number = ?`, number)
	r, err := scanWishlist(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("wishlist", itoa(number))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// GetWishlistByID retrieves a wishlist by its ULID.
func GetWishlistByID(db *sql.DB, id string) (*wishlist.StoredRecord, error) {
	row := db.QueryRow(`SELECT `+wishlistColumns+` FROM wishlists WHERE id = ?`, id)
	r, err := scanWishlist(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("wishlist", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// FindOpenByRepoURLs returns the open wishlists bound to any of the given
// normalized repository URLs, keyed by normalized URL.
func FindOpenByRepoURLs(db *sql.DB, norms []string) (map[string]*wishlist.StoredRecord, error) {
	found := make(map[string]*wishlist.StoredRecord)
	if len(norms) == 0 {
		return found, nil
	}

	placeholders := make([]string, len(norms))
	args := make([]any, len(norms))
	for i, n := range norms {
		placeholders[i] = "?"
		args[i] = n
	}
	query := `SELECT repository_url_norm, ` + wishlistColumns + `
		FROM wishlists
		WHERE status = 'open' AND repository_url_norm IN (` + strings.Join(placeholders, ",") + `)`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var norm string
		r, err := scanWishlistRow(rows, &norm)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		found[norm] = r
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return found, nil
}

// UpdateWishlist replaces the content of an open wishlist.
// Does NOT change: id, number, maintainer, approval, status.
func UpdateWishlist(db *sql.DB, r *wishlist.StoredRecord) error {
	formJSON, labelsJSON, err := encodeRecord(r)
	if err != nil {
		return errors.NewInternal(err)
	}

	now := time.Now().Unix()

	query := `
		UPDATE wishlists
		SET repository_url = ?, repository_url_norm = ?, title = ?, body = ?,
			form_json = ?, labels_json = ?, updated_at = ?
		WHERE number = ? AND status = 'open'
	`

	result, err := db.Exec(query,
		r.RepositoryURL, wishlist.NormalizeRepoURL(r.RepositoryURL), r.Title, r.Body,
		formJSON, labelsJSON, now,
		r.Number,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("open wishlist", itoa(r.Number))
	}

	r.UpdatedAt = now
	return nil
}

// CloseWishlist marks a wishlist closed. Closing an already-closed wishlist
// is not an error; closed reports whether this call changed the status.
func CloseWishlist(db *sql.DB, number int) (closed bool, err error) {
	now := time.Now().Unix()

	result, err := db.Exec(`
		UPDATE wishlists
		SET status = 'closed', closed_at = ?, updated_at = ?
		WHERE number = ? AND status = 'open'
	`, now, now, number)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	// Distinguish "already closed" from "never existed"
	if _, err := GetWishlist(db, number); err != nil {
		return false, err
	}
	return false, nil
}

// ApproveWishlist marks a wishlist approved for public listing.
func ApproveWishlist(db *sql.DB, number int) error {
	result, err := db.Exec(`
		UPDATE wishlists SET approved = 1, updated_at = ? WHERE number = ?
	`, time.Now().Unix(), number)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("wishlist", itoa(number))
	}
	return nil
}

// WishlistFilters narrows ListWishlists. Nil fields are not filtered.
type WishlistFilters struct {
	Status     *wishlist.Status
	Approved   *bool
	Maintainer *string
}

// ListWishlists returns wishlists ordered by updated_at DESC, number DESC,
// plus the total count matching the filters.
func ListWishlists(db *sql.DB, filters WishlistFilters, limit, offset int) ([]wishlist.StoredRecord, int, error) {
	var (
		where []string
		args  []any
	)
	if filters.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filters.Status))
	}
	if filters.Approved != nil {
		where = append(where, "approved = ?")
		args = append(args, boolToInt(*filters.Approved))
	}
	if filters.Maintainer != nil {
		where = append(where, "maintainer = ? COLLATE NOCASE")
		args = append(args, *filters.Maintainer)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM wishlists`+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + wishlistColumns + ` FROM wishlists` + clause +
		` ORDER BY updated_at DESC, number DESC LIMIT ? OFFSET ?`
	rows, err := db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []wishlist.StoredRecord
	for rows.Next() {
		r, err := scanWishlistRow(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWishlist(row *sql.Row) (*wishlist.StoredRecord, error) {
	return scanWishlistRow(row)
}

// scanWishlistRow scans wishlistColumns, after any leading destinations.
func scanWishlistRow(s scanner, leading ...any) (*wishlist.StoredRecord, error) {
	var (
		r          wishlist.StoredRecord
		formJSON   string
		labelsJSON sql.NullString
		approved   int
		status     string
		closedAt   sql.NullInt64
	)

	dest := append(leading,
		&r.ID, &r.Number, &r.RepositoryURL, &r.Title, &r.Body, &formJSON, &labelsJSON,
		&approved, &status, &r.Maintainer, &r.CreatedAt, &r.UpdatedAt, &closedAt,
	)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	r.Approved = approved != 0
	r.Status = wishlist.Status(status)
	if closedAt.Valid {
		r.ClosedAt = &closedAt.Int64
	}
	if err := json.Unmarshal([]byte(formJSON), &r.FormData); err != nil {
		return nil, err
	}
	if labelsJSON.Valid && labelsJSON.String != "" {
		if err := json.Unmarshal([]byte(labelsJSON.String), &r.Labels); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func encodeRecord(r *wishlist.StoredRecord) (formJSON string, labelsJSON sql.NullString, err error) {
	formData := r.FormData
	if formData == nil {
		formData = map[string]any{}
	}
	data, err := json.Marshal(formData)
	if err != nil {
		return "", sql.NullString{}, err
	}
	if len(r.Labels) > 0 {
		lj, err := json.Marshal(r.Labels)
		if err != nil {
			return "", sql.NullString{}, err
		}
		labelsJSON = sql.NullString{String: string(lj), Valid: true}
	}
	return string(data), labelsJSON, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
