// Package validate classifies single form-field values.
//
// Every validator is a pure function safe to call on each keystroke. A Result
// with Valid=false and SeverityWarning is advisory: the field stays usable.
package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Severity of a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Result is the outcome of validating one field value.
type Result struct {
	Valid    bool     `json:"isValid"`
	Error    string   `json:"error,omitempty"`
	Severity Severity `json:"severity"`
}

// Blocking reports whether the result must prevent submission.
func (r Result) Blocking() bool {
	return !r.Valid && r.Severity == SeverityError
}

func ok() Result {
	return Result{Valid: true, Severity: SeverityError}
}

func fail(msg string) Result {
	return Result{Valid: false, Error: msg, Severity: SeverityError}
}

func warn(valid bool, msg string) Result {
	return Result{Valid: valid, Error: msg, Severity: SeverityWarning}
}

// emailRegex requires a single @ and a dotted domain.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Email validates a required email address. Deliverability is not checked.
func Email(value string) Result {
	value = strings.TrimSpace(value)
	if value == "" {
		return fail("Email is required")
	}
	if !emailRegex.MatchString(value) {
		return fail("Please enter a valid email address")
	}
	return ok()
}

// OptionalEmail validates an email only when one is given.
func OptionalEmail(value string) Result {
	if strings.TrimSpace(value) == "" {
		return ok()
	}
	return Email(value)
}

var blockedSchemes = map[string]bool{
	"javascript": true,
	"data":       true,
	"vbscript":   true,
}

// URL validates an absolute URL. Script-capable schemes are rejected;
// anything other than https is flagged with a non-blocking warning.
func URL(value string) Result {
	value = strings.TrimSpace(value)
	if value == "" {
		return fail("URL is required")
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" {
		return fail("Please enter a valid URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if blockedSchemes[scheme] {
		return fail(fmt.Sprintf("%s: URLs are not allowed", scheme))
	}
	if u.Host == "" {
		return fail("Please enter a valid URL")
	}
	if scheme != "https" {
		return warn(false, "URL should use https://")
	}
	return ok()
}

// GitHubURL validates a URL that must point at github.com.
func GitHubURL(value string) Result {
	r := URL(value)
	if r.Blocking() {
		return r
	}
	u, _ := url.Parse(strings.TrimSpace(value))
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "github.com" {
		return fail("URL must point to github.com")
	}
	return r
}

// LengthRule configures Length.
type LengthRule struct {
	Label     string
	MinLength int
	MaxLength int // 0 means unbounded
}

// Length validates a trimmed text length. Below MinLength is an error; above
// MaxLength is a warning only; at 90-100% of MaxLength an informational
// warning reports how much room is left.
func Length(value string, rule LengthRule) Result {
	label := rule.Label
	if label == "" {
		label = "This field"
	}
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < rule.MinLength {
		if rule.MinLength == 1 {
			return fail(fmt.Sprintf("%s is required", label))
		}
		return fail(fmt.Sprintf("%s must be at least %d characters", label, rule.MinLength))
	}
	if rule.MaxLength <= 0 {
		return ok()
	}
	if n > rule.MaxLength {
		return warn(false, fmt.Sprintf("%s is %d characters over the %d character limit", label, n-rule.MaxLength, rule.MaxLength))
	}
	if n*10 >= rule.MaxLength*9 {
		remaining := 100 - n*100/rule.MaxLength
		return warn(true, fmt.Sprintf("%d%% of the character limit remaining", remaining))
	}
	return ok()
}

// SizeRule configures ArraySize.
type SizeRule struct {
	Label   string
	MinSize int
	MaxSize int
}

// ArraySize validates the cardinality of a multi-select field.
func ArraySize(n int, rule SizeRule) Result {
	label := rule.Label
	if label == "" {
		label = "items"
	}
	if n < rule.MinSize {
		return fail(fmt.Sprintf("Please select at least %d %s", rule.MinSize, label))
	}
	if rule.MaxSize > 0 && n > rule.MaxSize {
		return fail(fmt.Sprintf("Please select no more than %d %s", rule.MaxSize, label))
	}
	return ok()
}

// AtCapacity reports whether a multi-select field must stop accepting additions.
func AtCapacity(n int, rule SizeRule) bool {
	return rule.MaxSize > 0 && n >= rule.MaxSize
}
