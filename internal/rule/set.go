// Package rule compiles rule definitions into an immutable Set.
//
// A Set is built once at startup and shared read-only by every scan worker.
// Compilation is the only place where a malformed definition is detected: every
// error wraps model.ErrConfig and aborts the scan before any file is read.
package rule

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/CZERTAINLY/Vetter/internal/model"
)

// Compiled is a rule with its patterns compiled
type Compiled struct {
	model.Rule
	index      int
	pattern    *regexp.Regexp
	exclude    *regexp.Regexp
	followedBy *regexp.Regexp
	context    *regexp.Regexp
}

// Index is the declaration order of a rule within its Set.
func (c *Compiled) Index() int { return c.index }

func (c *Compiled) Pattern() *regexp.Regexp    { return c.pattern }
func (c *Compiled) Exclude() *regexp.Regexp    { return c.exclude }
func (c *Compiled) FollowedBy() *regexp.Regexp { return c.followedBy }
func (c *Compiled) Context() *regexp.Regexp    { return c.context }

// Render fills the message template with the named groups of a Pattern
// submatch as returned by FindStringSubmatch.
func (c *Compiled) Render(submatch []string) string {
	msg := c.Message
	for i, name := range c.pattern.SubexpNames() {
		if i == 0 || name == "" || i >= len(submatch) {
			continue
		}
		msg = strings.ReplaceAll(msg, "{"+name+"}", submatch[i])
	}
	return msg
}

// Set is an immutable, ordered collection of compiled rules. It is safe for
// concurrent use.
type Set struct {
	rules []*Compiled
}

var placeholderRx = regexp.MustCompile(`\{(\w+)\}`)

// Compile validates and compiles rule definitions. The returned error joins
// every problem found and wraps model.ErrConfig.
func Compile(rules []model.Rule) (*Set, error) {
	var errs []error
	seen := make(map[string]struct{}, len(rules))
	set := &Set{rules: make([]*Compiled, 0, len(rules))}

	for _, r := range rules {
		c, err := compile(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := seen[r.ID]; ok {
			errs = append(errs, fmt.Errorf("rule %s: duplicate id", r.ID))
			continue
		}
		seen[r.ID] = struct{}{}
		c.index = len(set.rules)
		set.rules = append(set.rules, c)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", model.ErrConfig, errors.Join(errs...))
	}
	return set, nil
}

// MustCompile is like Compile, but panics on error. Used for the built-in catalog.
func MustCompile(rules []model.Rule) *Set {
	set, err := Compile(rules)
	if err != nil {
		panic(err)
	}
	return set
}

func compile(r model.Rule) (*Compiled, error) {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return nil, errors.New("rule with empty id")
	case r.ID == model.ScanErrorRuleID:
		return nil, fmt.Errorf("rule %s: id is reserved", r.ID)
	case !r.Scope.Valid():
		return nil, fmt.Errorf("rule %s: unknown scope %q", r.ID, r.Scope)
	case !r.Severity.Valid():
		return nil, fmt.Errorf("rule %s: unknown severity %q", r.ID, r.Severity)
	case r.Pattern == "":
		return nil, fmt.Errorf("rule %s: empty pattern", r.ID)
	case r.Message == "":
		return nil, fmt.Errorf("rule %s: empty message", r.ID)
	}

	c := &Compiled{Rule: r}
	var err error

	pattern := r.Pattern
	if r.Scope == model.ScopeFile {
		// file rules see the full content, anchors work per line
		pattern = "(?m)" + pattern
	}
	if c.pattern, err = regexp.Compile(pattern); err != nil {
		return nil, fmt.Errorf("rule %s: pattern: %w", r.ID, err)
	}
	if c.exclude, err = optional(r.Exclude); err != nil {
		return nil, fmt.Errorf("rule %s: exclude: %w", r.ID, err)
	}
	if c.followedBy, err = optional(r.FollowedBy); err != nil {
		return nil, fmt.Errorf("rule %s: followed_by: %w", r.ID, err)
	}
	if c.context, err = optional(r.Context); err != nil {
		return nil, fmt.Errorf("rule %s: context: %w", r.ID, err)
	}

	if r.Scope == model.ScopeFile && (c.exclude != nil || c.followedBy != nil) {
		return nil, fmt.Errorf("rule %s: exclude and followed_by apply to line rules only", r.ID)
	}
	if r.Scope == model.ScopeLine && c.context != nil {
		return nil, fmt.Errorf("rule %s: context applies to file rules only", r.ID)
	}

	names := c.pattern.SubexpNames()
	for _, m := range placeholderRx.FindAllStringSubmatch(r.Message, -1) {
		if !slices.Contains(names, m[1]) {
			return nil, fmt.Errorf("rule %s: message references unknown group %q", r.ID, m[1])
		}
	}
	return c, nil
}

func optional(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile(expr)
}

// Rules returns the definitions in declaration order.
func (s *Set) Rules() []model.Rule {
	ret := make([]model.Rule, len(s.rules))
	for i, c := range s.rules {
		ret[i] = c.Rule
	}
	return ret
}

// All returns the compiled rules in declaration order.
func (s *Set) All() []*Compiled {
	return slices.Clone(s.rules)
}

func (s *Set) Len() int {
	return len(s.rules)
}

// Filter returns a new Set without the rules listed. Unknown ids are ignored.
func (s *Set) Filter(disabled ...string) *Set {
	skip := make(map[string]struct{}, len(disabled))
	for _, id := range disabled {
		if id == "" {
			continue
		}
		skip[id] = struct{}{}
	}
	ret := &Set{rules: make([]*Compiled, 0, len(s.rules))}
	for _, c := range s.rules {
		if _, found := skip[c.ID]; found {
			continue
		}
		cp := *c
		cp.index = len(ret.rules)
		ret.rules = append(ret.rules, &cp)
	}
	return ret
}

// Load compiles the built-in catalog followed by custom rules and removes the
// disabled ones.
func Load(cfg model.RulesConfig) (*Set, error) {
	defs := Default()
	defs = append(defs, cfg.Custom...)
	set, err := Compile(defs)
	if err != nil {
		return nil, err
	}
	return set.Filter(cfg.Disabled...), nil
}
