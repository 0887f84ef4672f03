// Package moderation screens free-text submission fields for spam and abuse.
//
// The filter is a heuristic first line of defense. The server runs the same
// check again before anything is persisted.
package moderation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oss-wishlist/wishlist/internal/config"
)

// Policy holds the tunable thresholds of the filter.
type Policy struct {
	MaxLinks      int
	CapsMinLength int
	CapsRatio     float64
	BlockedTerms  []string
}

// defaultBlockedTerms are matched case-insensitively as substrings.
var defaultBlockedTerms = []string{
	"fuck",
	"shit",
	"bitch",
	"asshole",
	"cunt",
	"retard",
	"nigger",
	"faggot",
	"viagra",
	"cialis",
	"casino",
	"crypto giveaway",
	"free money",
	"click here",
	"buy now",
	"earn $",
	"work from home",
	"onlyfans",
}

// DefaultPolicy returns the built-in thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxLinks:      3,
		CapsMinLength: 20,
		CapsRatio:     0.6,
		BlockedTerms:  append([]string(nil), defaultBlockedTerms...),
	}
}

// PolicyFromConfig builds a policy from the moderation config section.
func PolicyFromConfig(cfg config.ModerationConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxLinks > 0 {
		p.MaxLinks = cfg.MaxLinks
	}
	if cfg.CapsMinLength > 0 {
		p.CapsMinLength = cfg.CapsMinLength
	}
	if cfg.CapsRatio > 0 {
		p.CapsRatio = cfg.CapsRatio
	}
	for _, term := range cfg.ExtraBlockedTerms {
		if term = strings.TrimSpace(term); term != "" {
			p.BlockedTerms = append(p.BlockedTerms, term)
		}
	}
	return p
}

// Reason identifies why text was rejected.
type Reason string

const (
	ReasonBlockedTerm  Reason = "blocked_term"
	ReasonTooManyLinks Reason = "too_many_links"
	ReasonShouting     Reason = "excessive_caps"
)

// Finding is one rejection reason with a user-facing message.
type Finding struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// Result is the outcome of a moderation check.
type Result struct {
	Rejected bool      `json:"rejected"`
	Findings []Finding `json:"findings,omitempty"`
}

// Messages returns the user-facing messages of all findings.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		out = append(out, f.Message)
	}
	return out
}

// Check runs the filter over the concatenation of fields.
func Check(p Policy, fields ...string) Result {
	text := strings.Join(fields, " ")
	lower := strings.ToLower(text)

	var res Result
	for _, term := range p.BlockedTerms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			res.Findings = append(res.Findings, Finding{
				Reason:  ReasonBlockedTerm,
				Message: "Your submission contains language that isn't allowed. Please revise it.",
			})
			break
		}
	}

	links := strings.Count(lower, "http://") + strings.Count(lower, "https://")
	if links > p.MaxLinks {
		res.Findings = append(res.Findings, Finding{
			Reason:  ReasonTooManyLinks,
			Message: fmt.Sprintf("Please include no more than %d links.", p.MaxLinks),
		})
	}

	if utf8.RuneCountInString(text) > p.CapsMinLength && capsRatio(text) > p.CapsRatio {
		res.Findings = append(res.Findings, Finding{
			Reason:  ReasonShouting,
			Message: "Please avoid writing in all capital letters.",
		})
	}

	res.Rejected = len(res.Findings) > 0
	return res
}

// capsRatio returns uppercase letters over all letters, 0 when there are none.
func capsRatio(s string) float64 {
	var letters, upper int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
