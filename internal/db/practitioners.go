package db

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/oss-wishlist/wishlist/internal/errors"
	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

const practitionerColumns = `
	id, login, name, email, title, company, services_json, profile_url,
	approved, created_at, updated_at
`

// InsertPractitioner stores a new practitioner profile.
// A second profile for the same login returns ErrUniqueConstraint.
func InsertPractitioner(db *sql.DB, p *wishlist.Practitioner) error {
	services, err := json.Marshal(nonNil(p.Services))
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = db.Exec(`
		INSERT INTO practitioners (`+practitionerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Login, p.Name, p.Email, toNullString(p.Title), toNullString(p.Company),
		string(services), toNullString(p.ProfileURL), boolToInt(p.Approved),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetPractitioner retrieves a practitioner by id.
func GetPractitioner(db *sql.DB, id string) (*wishlist.Practitioner, error) {
	row := db.QueryRow(`SELECT `+practitionerColumns+` FROM practitioners WHERE id = ?`, id)
	p, err := scanPractitioner(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("practitioner", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return p, nil
}

// ListPractitioners returns practitioners ordered by name. A nil approved
// returns all profiles.
func ListPractitioners(db *sql.DB, approved *bool) ([]wishlist.Practitioner, error) {
	query := `SELECT ` + practitionerColumns + ` FROM practitioners`
	var args []any
	if approved != nil {
		query += ` WHERE approved = ?`
		args = append(args, boolToInt(*approved))
	}
	query += ` ORDER BY name COLLATE NOCASE, id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []wishlist.Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// ApprovePractitioner marks a practitioner profile approved.
func ApprovePractitioner(db *sql.DB, id string) error {
	result, err := db.Exec(`UPDATE practitioners SET approved = 1, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("practitioner", id)
	}
	return nil
}

func scanPractitioner(s scanner) (*wishlist.Practitioner, error) {
	var (
		p        wishlist.Practitioner
		title    sql.NullString
		company  sql.NullString
		profile  sql.NullString
		services string
		approved int
	)
	err := s.Scan(&p.ID, &p.Login, &p.Name, &p.Email, &title, &company, &services, &profile,
		&approved, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Title = title.String
	p.Company = company.String
	p.ProfileURL = profile.String
	p.Approved = approved != 0
	if err := json.Unmarshal([]byte(services), &p.Services); err != nil {
		return nil, err
	}
	return &p, nil
}

// toNullString stores empty strings as NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
