package validate

import (
	"strings"
	"testing"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"maintainer@example.com", true},
		{" spaced@example.org ", true},
		{"", false},
		{"no-at.example.com", false},
		{"two@@example.com", false},
		{"nodomain@example", false},
		{"has space@example.com", false},
	}
	for _, tt := range tests {
		r := Email(tt.in)
		if r.Valid != tt.valid {
			t.Errorf("Email(%q).Valid = %v, want %v (%s)", tt.in, r.Valid, tt.valid, r.Error)
		}
	}
	if !OptionalEmail("").Valid {
		t.Error("OptionalEmail(\"\") should be valid")
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		valid    bool
		severity Severity
	}{
		{"javascript rejected", "javascript:alert(1)", false, SeverityError},
		{"data rejected", "data:text/html,hi", false, SeverityError},
		{"vbscript rejected", "VBScript:msgbox", false, SeverityError},
		{"http warns", "http://example.com", false, SeverityWarning},
		{"https ok", "https://example.com", true, SeverityError},
		{"not a url", "example", false, SeverityError},
		{"empty", "", false, SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := URL(tt.in)
			if r.Valid != tt.valid || r.Severity != tt.severity {
				t.Errorf("URL(%q) = %+v, want valid=%v severity=%s", tt.in, r, tt.valid, tt.severity)
			}
		})
	}

	if URL("http://example.com").Blocking() {
		t.Error("http URL must not block submission")
	}
	if !URL("javascript:alert(1)").Blocking() {
		t.Error("javascript URL must block submission")
	}
}

func TestGitHubURL(t *testing.T) {
	if r := GitHubURL("https://github.com/acme/widget"); !r.Valid {
		t.Errorf("GitHubURL(github) = %+v, want valid", r)
	}
	if r := GitHubURL("https://gitlab.com/acme/widget"); r.Valid || !r.Blocking() {
		t.Errorf("GitHubURL(gitlab) = %+v, want blocking error", r)
	}
	if r := GitHubURL("http://github.com/acme/widget"); r.Blocking() || r.Severity != SeverityWarning {
		t.Errorf("GitHubURL(http github) = %+v, want warning", r)
	}
}

func TestLength(t *testing.T) {
	rule := LengthRule{Label: "Notes", MinLength: 1, MaxLength: 100}

	if r := Length("   ", rule); !r.Blocking() || r.Error != "Notes is required" {
		t.Errorf("blank = %+v, want required error", r)
	}
	if r := Length("short", rule); !r.Valid || r.Error != "" {
		t.Errorf("short = %+v, want clean valid", r)
	}
	if r := Length(strings.Repeat("a", 95), rule); !r.Valid || r.Severity != SeverityWarning || !strings.Contains(r.Error, "5%") {
		t.Errorf("95 chars = %+v, want informational 5%% remaining", r)
	}
	if r := Length(strings.Repeat("a", 90), rule); !r.Valid || r.Severity != SeverityWarning {
		t.Errorf("90 chars = %+v, want informational warning", r)
	}
	if r := Length(strings.Repeat("a", 89), rule); r.Error != "" {
		t.Errorf("89 chars = %+v, want no message", r)
	}
	over := Length(strings.Repeat("a", 120), rule)
	if over.Valid || over.Severity != SeverityWarning || over.Blocking() {
		t.Errorf("120 chars = %+v, want non-blocking warning", over)
	}

	minRule := LengthRule{Label: "Title", MinLength: 3}
	if r := Length("ab", minRule); !r.Blocking() || !strings.Contains(r.Error, "at least 3") {
		t.Errorf("min length = %+v", r)
	}
}

func TestArraySize(t *testing.T) {
	rule := SizeRule{Label: "services", MinSize: 1, MaxSize: 3}

	if r := ArraySize(0, rule); !r.Blocking() {
		t.Errorf("0 = %+v, want error", r)
	}
	if r := ArraySize(3, rule); !r.Valid {
		t.Errorf("3 = %+v, want valid", r)
	}
	if r := ArraySize(4, rule); !r.Blocking() {
		t.Errorf("4 = %+v, want error", r)
	}
	if AtCapacity(2, rule) || !AtCapacity(3, rule) {
		t.Error("AtCapacity boundary wrong")
	}
}
