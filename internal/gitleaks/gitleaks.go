package gitleaks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/CZERTAINLY/Vetter/internal/model"

	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"
)

// RulePrefix starts the rule id of every leaked secret finding
const RulePrefix = "leaked-secret:"

// Detector reports secrets found by the default gitleaks rules. A
// detect.Detector is not safe for concurrent use, so each goroutine takes
// its own from a pool.
type Detector struct {
	pool sync.Pool
	mx   sync.Mutex
}

func NewDetector() (*Detector, error) {
	first, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating new gitleaks detector: %w", err)
	}
	d := &Detector{}
	d.pool = sync.Pool{
		New: func() any {
			d.mx.Lock()
			defer d.mx.Unlock()
			detector, err := detect.NewDetectorDefaultConfig()
			if err != nil {
				panic(err)
			}
			return detector
		},
	}
	d.pool.Put(first)
	return d, nil
}

// Detect returns one finding per secret. The secret itself never gets into
// the message.
// This method is SAFE to be called from multiple goroutines
func (d *Detector) Detect(ctx context.Context, file model.SourceFile) ([]model.Finding, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	detector := d.pool.Get().(*detect.Detector)
	defer d.pool.Put(detector)

	leaks := detector.DetectString(file.Content)
	if len(leaks) == 0 {
		return nil, model.ErrNoMatch
	}

	lines := file.Lines()
	ret := make([]model.Finding, 0, len(leaks))
	for _, leak := range leaks {
		ret = append(ret, model.Finding{
			Path:     file.Path,
			Line:     lineOf(lines, leak),
			RuleID:   RulePrefix + leak.RuleID,
			Severity: model.SeverityError,
			Message:  "Possible leaked secret: " + leak.Description,
		})
	}
	slog.DebugContext(ctx, "leaks found", "count", len(ret))
	return ret, nil
}

func (d *Detector) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.String("detector", "gitleaks")}
}

// lineOf returns the 1-based line of a leak. The reported line is only a
// hint, the first line containing the secret wins.
func lineOf(lines []string, leak report.Finding) int {
	if leak.Secret != "" {
		for i, line := range lines {
			if strings.Contains(line, leak.Secret) {
				return i + 1
			}
		}
	}
	return min(max(leak.StartLine+1, 1), max(len(lines), 1))
}
