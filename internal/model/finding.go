package model

// ScanErrorRuleID is reserved for findings which describe a file the scan
// could not read.
const ScanErrorRuleID = "scan-error"

// Finding is a single recorded rule violation
type Finding struct {
	Path     string   `json:"path"`
	Line     int      `json:"line"` // 1-indexed, 0 for findings about the whole file
	RuleID   string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ScanError returns the synthetic finding recorded for a file which failed to
// be scanned.
func ScanError(path string, err error) Finding {
	return Finding{
		Path:     path,
		Line:     0,
		RuleID:   ScanErrorRuleID,
		Severity: SeverityError,
		Message:  err.Error(),
	}
}
