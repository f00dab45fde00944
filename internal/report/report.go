package report

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/CZERTAINLY/Vetter/internal/model"
)

// Summary holds the counts derived from a Result
type Summary struct {
	Total      int                    `json:"total"`
	ByRule     map[string]int         `json:"by_rule"`
	BySeverity map[model.Severity]int `json:"by_severity"`
	Files      int                    `json:"files"`   // distinct files with at least one finding
	Scanned    int                    `json:"scanned"` // files scanned
	Errors     int                    `json:"errors"`  // scan-error findings
}

func Summarize(res model.Result) Summary {
	ret := Summary{
		Total:      len(res.Findings),
		ByRule:     make(map[string]int),
		BySeverity: make(map[model.Severity]int),
		Scanned:    len(res.Files),
	}
	files := make(map[string]struct{})
	for _, f := range res.Findings {
		ret.ByRule[f.RuleID]++
		ret.BySeverity[f.Severity]++
		files[f.Path] = struct{}{}
		if f.RuleID == model.ScanErrorRuleID {
			ret.Errors++
		}
	}
	ret.Files = len(files)
	return ret
}

// Exceeds reports if there is a finding of the threshold severity or above.
// An empty threshold is never exceeded.
func (s Summary) Exceeds(threshold model.Severity) bool {
	if threshold == "" {
		return false
	}
	for sev, n := range s.BySeverity {
		if n > 0 && sev.Rank() >= threshold.Rank() {
			return true
		}
	}
	return false
}

// WriteText writes one finding per line in the path:line: form understood by
// editors, followed by the summary.
func WriteText(w io.Writer, res model.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for _, f := range res.Findings {
		if _, err := fmt.Fprintf(tw, "%s:%d:\t%s\t%s\t%s\n", f.Path, f.Line, f.Severity, f.RuleID, f.Message); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := Summarize(res)
	if _, err := fmt.Fprintf(w, "\n%d findings in %d of %d files", s.Total, s.Files, s.Scanned); err != nil {
		return err
	}
	if s.Errors > 0 {
		if _, err := fmt.Fprintf(w, ", %d files failed", s.Errors); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	for _, id := range slices.Sorted(maps.Keys(s.ByRule)) {
		if _, err := fmt.Fprintf(w, "  %-24s %d\n", id, s.ByRule[id]); err != nil {
			return err
		}
	}
	return nil
}

type document struct {
	Files    []string        `json:"files"`
	Findings []model.Finding `json:"findings"`
	Summary  Summary         `json:"summary"`
}

// WriteJSON writes the findings together with the summary as one JSON document
func WriteJSON(w io.Writer, res model.Result) error {
	doc := document{
		Files:    res.Files,
		Findings: res.Findings,
		Summary:  Summarize(res),
	}
	if doc.Files == nil {
		doc.Files = []string{}
	}
	if doc.Findings == nil {
		doc.Findings = []model.Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
