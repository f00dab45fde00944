package scan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/CZERTAINLY/Vetter/internal/lint"
	"github.com/CZERTAINLY/Vetter/internal/model"
	"github.com/CZERTAINLY/Vetter/internal/rule"
	"github.com/CZERTAINLY/Vetter/internal/scan"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var linter = lint.New(rule.MustCompile(rule.Default()))

func creat(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fixture struct {
	todo    string
	clean   string
	braces  string
	doc     string
	missing string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	return fixture{
		todo:    creat(t, dir, "todo.cs", "var a = 1;\n// TODO: remove\n"),
		clean:   creat(t, dir, "clean.cs", "var a = 1;\n"),
		braces:  creat(t, dir, "braces.cs", "if (x) DoThing();\nvar pw = \"my_password_123\";\n"),
		doc:     creat(t, dir, "doc.cs", "public class Foo { }\ncatch (Exception ex) { }\n"),
		missing: filepath.Join(dir, "missing.cs"),
	}
}

func (f fixture) paths() []string {
	return []string{f.todo, f.clean, f.braces, f.doc, f.missing}
}

func TestRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	s := scan.New(scan.DefaultConfig(), linter)
	res, err := s.Run(t.Context(), f.paths())
	require.NoError(t, err)
	require.Equal(t, f.paths(), res.Files)

	type hit struct {
		path string
		line int
		id   string
	}
	var hits []hit
	for _, finding := range res.Findings {
		hits = append(hits, hit{finding.Path, finding.Line, finding.RuleID})
	}
	require.Equal(t, []hit{
		{f.braces, 1, rule.MissingBracesID},
		{f.braces, 2, rule.HardcodedSecretID},
		{f.doc, 1, rule.MissingDocCommentID},
		{f.doc, 2, rule.EmptyCatchID},
		{f.missing, 0, model.ScanErrorRuleID},
		{f.todo, 2, rule.TodoMarkerID},
	}, hits)

	require.Contains(t, res.Findings[2].Message, "Foo")
	require.Contains(t, res.Findings[4].Message, "no such file")
	require.Equal(t, 6, res.Total())
	require.Equal(t, 1, res.ByRule()[model.ScanErrorRuleID])

	stats := s.Stats()
	// the missing file is never read
	require.Equal(t, 4, stats.PoolPutCounter)
	require.GreaterOrEqual(t, stats.PoolNewCounter, 1)
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := scan.New(scan.DefaultConfig(), linter)

	first, err := s.Run(t.Context(), f.paths())
	require.NoError(t, err)
	for range 5 {
		next, err := s.Run(t.Context(), f.paths())
		require.NoError(t, err)
		require.Equal(t, first, next)
	}
}

func TestRun_OrderInvariant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, parallelism := range []int{1, 2, 16} {
		cfg := scan.DefaultConfig()
		cfg.Parallelism = parallelism
		s := scan.New(cfg, linter)

		forward, err := s.Run(t.Context(), f.paths())
		require.NoError(t, err)

		reversed := slices.Clone(f.paths())
		slices.Reverse(reversed)
		backward, err := s.Run(t.Context(), reversed)
		require.NoError(t, err)

		require.Equal(t, forward.Findings, backward.Findings)
		require.ElementsMatch(t, forward.Files, backward.Files)
		require.Equal(t, reversed, backward.Files)
	}
}

func TestRun_Empty(t *testing.T) {
	t.Parallel()

	res, err := scan.New(scan.DefaultConfig(), linter).Run(t.Context(), nil)
	require.NoError(t, err)
	require.Empty(t, res.Files)
	require.Empty(t, res.Findings)
	require.Zero(t, res.Total())
}

func TestRun_Duplicates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := scan.New(scan.DefaultConfig(), linter).Run(t.Context(), []string{f.todo, f.todo})
	require.NoError(t, err)
	require.Equal(t, []string{f.todo}, res.Files)
	require.Len(t, res.Findings, 1)
}

func TestRun_ScanErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	big := creat(t, dir, "big.cs", "// TODO: this file is bigger than sixteen bytes\n")
	small := creat(t, dir, "small.cs", "// TODO\n")

	cfg := scan.DefaultConfig()
	cfg.MaxFileSize = 16
	res, err := scan.New(cfg, linter).Run(t.Context(), []string{big, small, dir})
	require.NoError(t, err)
	require.Len(t, res.Findings, 3)

	byPath := map[string]model.Finding{}
	for _, finding := range res.Findings {
		byPath[finding.Path] = finding
	}
	require.Equal(t, model.ScanErrorRuleID, byPath[big].RuleID)
	require.Contains(t, byPath[big].Message, model.ErrTooBig.Error())
	require.Equal(t, model.ScanErrorRuleID, byPath[dir].RuleID)
	require.Contains(t, byPath[dir].Message, "not a regular file")
	require.Equal(t, rule.TodoMarkerID, byPath[small].RuleID)
}

func TestRun_StopOnError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cfg := scan.DefaultConfig()
	cfg.ContinueOnError = false
	_, err := scan.New(cfg, linter).Run(t.Context(), []string{f.todo, f.missing})
	require.Error(t, err)
	require.ErrorIs(t, err, model.ErrFileAccess)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorContains(t, err, f.missing)
}

type failingDetector struct{}

var errBroken = errors.New("broken detector")

func (failingDetector) Detect(_ context.Context, file model.SourceFile) ([]model.Finding, error) {
	if filepath.Base(file.Path) == "braces.cs" {
		return nil, errBroken
	}
	return nil, nil
}

func TestRun_DetectorError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := scan.New(scan.DefaultConfig(), linter, failingDetector{}).Run(t.Context(), []string{f.braces, f.todo})
	require.NoError(t, err)
	require.Len(t, res.Findings, 2)
	require.Equal(t, f.braces, res.Findings[0].Path)
	require.Equal(t, model.ScanErrorRuleID, res.Findings[0].RuleID)
	require.Contains(t, res.Findings[0].Message, errBroken.Error())
	require.Equal(t, rule.TodoMarkerID, res.Findings[1].RuleID)
}

type extraDetector struct{}

func (extraDetector) Detect(_ context.Context, file model.SourceFile) ([]model.Finding, error) {
	return []model.Finding{
		{Path: file.Path, Line: 2, RuleID: "extra", Severity: model.SeverityInfo, Message: "second line"},
		{Path: file.Path, Line: 1, RuleID: "extra", Severity: model.SeverityInfo, Message: "first line"},
	}, nil
}

func TestRun_DetectorsMerged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := scan.New(scan.DefaultConfig(), linter, extraDetector{}).Run(t.Context(), []string{f.braces})
	require.NoError(t, err)
	var ids []string
	for _, finding := range res.Findings {
		ids = append(ids, finding.RuleID)
	}
	require.Equal(t, []string{rule.MissingBracesID, "extra", rule.HardcodedSecretID, "extra"}, ids)
}

func TestRun_Canceled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	res, err := scan.New(scan.DefaultConfig(), linter).Run(ctx, f.paths())
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, res.Files)
	require.Empty(t, res.Findings)
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()

	cfg := scan.ConfigFrom(model.Scan{ContinueOnError: true})
	require.Equal(t, scan.DefaultConfig(), cfg)

	cfg = scan.ConfigFrom(model.Scan{Parallelism: 2, MaxFileSize: 100})
	require.Equal(t, scan.Config{Parallelism: 2, MaxFileSize: 100}, cfg)
}
