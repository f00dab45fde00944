package model

import (
	"cmp"
	"slices"
)

// Result is the ordered output of one scan invocation.
type Result struct {
	Files    []string  `json:"files"`    // every path scanned, in input order
	Findings []Finding `json:"findings"` // sorted by path and line
}

// Sort orders findings by path and line. The sort is stable, so findings of
// the same line keep the order the detectors emitted them in.
func (r *Result) Sort() {
	slices.SortStableFunc(r.Findings, func(a, b Finding) int {
		if c := cmp.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return cmp.Compare(a.Line, b.Line)
	})
}

func (r Result) Total() int {
	return len(r.Findings)
}

// ByRule counts findings per rule id
func (r Result) ByRule() map[string]int {
	ret := make(map[string]int)
	for _, f := range r.Findings {
		ret[f.RuleID]++
	}
	return ret
}
