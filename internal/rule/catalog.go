package rule

import "github.com/CZERTAINLY/Vetter/internal/model"

// Built-in rule identifiers
const (
	MissingBracesID     = "missing-braces"
	HardcodedSecretID   = "hardcoded-secret"
	TodoMarkerID        = "todo-marker"
	EmptyCatchID        = "empty-catch"
	MissingDocCommentID = "missing-doc-comment"
)

// commentLine matches lines which start with a comment
const commentLine = `^\s*(//|/\*|\*|#)`

// doWhileTail matches the while (...); closing an Allman style do loop. One
// level of nested parentheses is supported in the condition.
const doWhileTail = `^\s*while\s*\(([^()]|\([^()]*\))*\)\s*;\s*$`

var catalog = []model.Rule{
	{
		ID:       MissingBracesID,
		Scope:    model.ScopeLine,
		Severity: model.SeverityWarning,
		Pattern:  `^\s*(else\s+)?(if|for|foreach|while)\s*\(`,
		// a brace on the header line, a comment or the tail of a do loop
		Exclude: `\{|` + commentLine + `|` + doWhileTail,
		// Allman style: the brace starts the next line
		FollowedBy: `^\s*\{`,
		Message:    "Missing braces for control statement",
	},
	{
		ID:       HardcodedSecretID,
		Scope:    model.ScopeLine,
		Severity: model.SeverityError,
		// quotes are consumed in pairs, so the keyword is inside a literal
		Pattern: `(?i)^[^"]*("[^"]*"[^"]*)*"[^"]*(password|secret|key)[^"]*"`,
		Exclude: commentLine,
		Message: "Potential hardcoded sensitive information",
	},
	{
		ID:       TodoMarkerID,
		Scope:    model.ScopeLine,
		Severity: model.SeverityInfo,
		Pattern:  `TODO|FIXME|HACK`,
		Message:  "TODO/FIXME/HACK comment found",
	},
	{
		ID:       EmptyCatchID,
		Scope:    model.ScopeLine,
		Severity: model.SeverityWarning,
		Pattern:  `\bcatch\s*(\([^)]*\))?\s*\{\s*\}`,
		Message:  "Empty catch block found",
	},
	{
		ID:       MissingDocCommentID,
		Scope:    model.ScopeFile,
		Severity: model.SeverityWarning,
		Pattern:  `^\s*public\s+((static|sealed|abstract|partial|readonly|unsafe|new|ref)\s+)*(record\s+(class|struct)|class|interface|struct|enum|record)\s+(?P<name>\w+)`,
		Context:  `^\s*///`,
		Message:  "Public type '{name}' missing documentation",
	},
}

// Default returns the built-in rule catalog in declaration order.
func Default() []model.Rule {
	return append([]model.Rule(nil), catalog...)
}
