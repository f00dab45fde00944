package model

import "fmt"

// Scope says how a rule is evaluated against a file.
type Scope string

const (
	ScopeLine Scope = "line" // every line is tested on its own
	ScopeFile Scope = "file" // evaluated once against the full content
)

func (s Scope) Valid() bool {
	return s == ScopeLine || s == ScopeFile
}

// Severity indicates how severe a finding is.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rank orders severities, unknown values rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q: %w", s, ErrConfig)
	}
	return sev, nil
}

// Rule is an immutable definition of a check. Pattern, Exclude, FollowedBy and
// Context are regular expressions in RE2 syntax.
//
// Message is a template: {group} is replaced by the text captured by the
// named group of Pattern.
type Rule struct {
	ID       string   `json:"id" yaml:"id"`
	Scope    Scope    `json:"scope" yaml:"scope"`
	Severity Severity `json:"severity" yaml:"severity"`
	Pattern  string   `json:"pattern" yaml:"pattern"`
	Message  string   `json:"message" yaml:"message"`

	// line scope: suppress the match when the same line matches Exclude
	Exclude string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	// line scope: suppress the match when the next non-blank line matches FollowedBy
	FollowedBy string `json:"followed_by,omitempty" yaml:"followed_by,omitempty"`
	// file scope: lines matching Context build the documentation blocks
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
}
