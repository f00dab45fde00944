package lint

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/CZERTAINLY/Vetter/internal/model"
	"github.com/CZERTAINLY/Vetter/internal/rule"
)

type hit struct {
	line    int
	index   int
	rule    *rule.Compiled
	message string
}

// Scan applies every rule of the set to one file. It's a pure function of
// its inputs: findings are ordered by line number, then by rule declaration
// order. Matching is done on the raw text, there is no tokenization.
func Scan(file model.SourceFile, set *rule.Set) []model.Finding {
	lines := file.Lines()
	if len(lines) == 0 {
		return nil
	}

	var hits []hit
	for _, r := range set.All() {
		switch r.Scope {
		case model.ScopeLine:
			hits = append(hits, scanLines(lines, r)...)
		case model.ScopeFile:
			hits = append(hits, scanFile(lines, r)...)
		}
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(a.line, b.line); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})

	ret := make([]model.Finding, 0, len(hits))
	for _, h := range hits {
		ret = append(ret, model.Finding{
			Path:     file.Path,
			Line:     h.line,
			RuleID:   h.rule.ID,
			Severity: h.rule.Severity,
			Message:  h.message,
		})
	}
	return ret
}

func scanLines(lines []string, r *rule.Compiled) []hit {
	var ret []hit
	for i, line := range lines {
		m := r.Pattern().FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if ex := r.Exclude(); ex != nil && ex.MatchString(line) {
			continue
		}
		if fb := r.FollowedBy(); fb != nil {
			if next, ok := nextNonBlank(lines, i+1); ok && fb.MatchString(next) {
				continue
			}
		}
		ret = append(ret, hit{
			line:    i + 1,
			index:   r.Index(),
			rule:    r,
			message: r.Render(m),
		})
	}
	return ret
}

func nextNonBlank(lines []string, from int) (string, bool) {
	for _, line := range lines[min(from, len(lines)):] {
		if strings.TrimSpace(line) != "" {
			return line, true
		}
	}
	return "", false
}

// scanFile evaluates a whole-file rule. Every Pattern match is a declaration
// and its subject is the "name" group, or the whole match. The declaration is
// documented when a block of consecutive Context lines mentions the subject as
// a word, in any case. Each undocumented subject is reported once, at its
// first declaration.
func scanFile(lines []string, r *rule.Compiled) []hit {
	content := strings.Join(lines, "\n")
	starts := lineStarts(lines)

	var blocks []string
	if r.Context() != nil {
		blocks = docBlocks(lines, r)
	}

	nameIdx := r.Pattern().SubexpIndex("name")
	reported := make(map[string]struct{})

	var ret []hit
	for _, loc := range r.Pattern().FindAllStringSubmatchIndex(content, -1) {
		submatch := make([]string, len(loc)/2)
		for i := range submatch {
			if loc[2*i] >= 0 {
				submatch[i] = content[loc[2*i]:loc[2*i+1]]
			}
		}

		subject := strings.TrimSpace(submatch[0])
		if nameIdx > 0 && submatch[nameIdx] != "" {
			subject = submatch[nameIdx]
		}
		if _, ok := reported[subject]; ok {
			continue
		}
		if documented(blocks, subject) {
			continue
		}
		reported[subject] = struct{}{}

		// a leading \s* may reach back over blank lines
		start := loc[0]
		for start < loc[1] && isSpace(content[start]) {
			start++
		}
		line, found := slices.BinarySearch(starts, start)
		if found {
			line++
		}
		ret = append(ret, hit{
			line:    line,
			index:   r.Index(),
			rule:    r,
			message: r.Render(submatch),
		})
	}
	return ret
}

// lineStarts returns the offset of every line within the joined content
func lineStarts(lines []string) []int {
	ret := make([]int, len(lines))
	off := 0
	for i, line := range lines {
		ret[i] = off
		off += len(line) + 1
	}
	return ret
}

func docBlocks(lines []string, r *rule.Compiled) []string {
	var blocks []string
	var cur []string
	for _, line := range lines {
		if r.Context().MatchString(line) {
			cur = append(cur, line)
			continue
		}
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	if len(cur) > 0 {
		blocks = append(blocks, strings.Join(cur, "\n"))
	}
	return blocks
}

// documented ignores case, "the foo type" documents Foo
func documented(blocks []string, subject string) bool {
	subject = strings.ToLower(subject)
	for _, b := range blocks {
		if containsWord(strings.ToLower(b), subject) {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	if word == "" {
		return false
	}
	for i := 0; i <= len(s)-len(word); {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		i = start + 1
	}
	return false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// Linter adapts a rule set to the scan.Detector interface
type Linter struct {
	set *rule.Set
}

func New(set *rule.Set) Linter {
	return Linter{set: set}
}

func (l Linter) Detect(ctx context.Context, file model.SourceFile) ([]model.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	findings := Scan(file, l.set)
	if len(findings) == 0 {
		return nil, model.ErrNoMatch
	}
	return findings, nil
}

func (l Linter) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("detector", "lint"),
		slog.Int("rules", l.set.Len()),
	}
}
