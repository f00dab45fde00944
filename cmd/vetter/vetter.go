package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/CZERTAINLY/Vetter/internal/bom"
	"github.com/CZERTAINLY/Vetter/internal/gitleaks"
	"github.com/CZERTAINLY/Vetter/internal/lint"
	"github.com/CZERTAINLY/Vetter/internal/model"
	"github.com/CZERTAINLY/Vetter/internal/report"
	"github.com/CZERTAINLY/Vetter/internal/rule"
	"github.com/CZERTAINLY/Vetter/internal/scan"
	"github.com/CZERTAINLY/Vetter/internal/walk"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"gopkg.in/yaml.v3"
)

// errFailOn is returned when a finding reaches the --fail-on severity
var errFailOn = errors.New("findings reached the fail-on severity")

// Vetter is a component, which encapsulates the scan functionality and executes it.
type Vetter struct {
	cfg     model.Config
	set     *rule.Set
	scanner *scan.Scan
}

// NewVetter compiles the rules and sets the detectors up. Rule errors are
// reported here, before any file is read.
func NewVetter(cfg model.Config) (Vetter, error) {
	if cfg.Version != 0 {
		return Vetter{}, fmt.Errorf("%w: config version %d is not supported, expected 0", model.ErrConfig, cfg.Version)
	}

	set, err := rule.Load(cfg.Rules)
	if err != nil {
		return Vetter{}, err
	}

	detectors := make([]scan.Detector, 0, 2)
	detectors = append(detectors, lint.New(set))
	if cfg.Leaks != nil && cfg.Leaks.Enabled {
		leaks, err := gitleaks.NewDetector()
		if err != nil {
			return Vetter{}, err
		}
		detectors = append(detectors, leaks)
	}

	return Vetter{
		cfg:     cfg,
		set:     set,
		scanner: scan.New(scan.ConfigFrom(cfg.Scan), detectors...),
	}, nil
}

// Do discovers the files, scans them and writes the report into out. It
// returns errFailOn when a finding reaches the configured severity.
func (v Vetter) Do(ctx context.Context, out io.Writer) error {
	paths := v.cfg.Scan.Paths
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		paths = []string{cwd}
	}

	files, err := walk.Discover(ctx, walk.Filter{
		Extensions: v.cfg.Scan.Extensions,
		Exclude:    v.cfg.Scan.Exclude,
		GitIgnore:  v.cfg.Scan.GitIgnore,
	}, paths...)
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	slog.DebugContext(ctx, "files discovered", "count", len(files), "rules", v.set.Len())

	res, err := v.scanner.Run(ctx, files)
	if err != nil {
		return err
	}

	if err := v.write(out, res); err != nil {
		return fmt.Errorf("writing %s report: %w", v.cfg.Report.Format, err)
	}

	summary := report.Summarize(res)
	stats := v.scanner.Stats()
	slog.InfoContext(ctx, "scan finished",
		"scanned", summary.Scanned,
		"findings", summary.Total,
		"errors", summary.Errors,
	)
	slog.DebugContext(ctx, "buffer pool", "new", stats.PoolNewCounter, "put", stats.PoolPutCounter)
	if summary.Exceeds(model.Severity(v.cfg.Report.FailOn)) {
		return errFailOn
	}
	return nil
}

func (v Vetter) write(out io.Writer, res model.Result) error {
	switch v.cfg.Report.Format {
	case model.FormatJSON:
		return report.WriteJSON(out, res)
	case model.FormatCycloneDX:
		ids := make([]string, 0, v.set.Len())
		for _, r := range v.set.Rules() {
			ids = append(ids, r.ID)
		}
		return bom.NewBuilder().
			AppendResult(res).
			AppendProperties(
				cdx.Property{Name: bom.PropertyVersion, Value: bom.Version()},
				cdx.Property{Name: bom.PropertyRules, Value: strings.Join(ids, ",")},
			).
			AsJSON(out)
	default:
		return report.WriteText(out, res)
	}
}

func printRules(w io.Writer, set *rule.Set) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(set.Rules()); err != nil {
		return err
	}
	return enc.Close()
}
