package scan

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/CZERTAINLY/Vetter/internal/log"
	"github.com/CZERTAINLY/Vetter/internal/model"
	"github.com/CZERTAINLY/Vetter/internal/parallel"
	"github.com/CZERTAINLY/Vetter/internal/walk"
)

// Detector produces the findings of a single file. It returns model.ErrNoMatch
// or an empty slice when there is nothing to report.
type Detector interface {
	Detect(ctx context.Context, file model.SourceFile) ([]model.Finding, error)
}

// Config holds the orchestrator settings. With a zero MaxFileSize every
// non-empty file is too big, so start from DefaultConfig or ConfigFrom.
type Config struct {
	Parallelism     int
	MaxFileSize     int64
	ContinueOnError bool
}

func DefaultConfig() Config {
	return Config{
		Parallelism:     model.DefaultParallelism,
		MaxFileSize:     model.DefaultMaxFileSize,
		ContinueOnError: true,
	}
}

// ConfigFrom maps the scan section of a configuration file
func ConfigFrom(cfg model.Scan) Config {
	ret := Config{
		Parallelism:     cfg.Parallelism,
		MaxFileSize:     cfg.MaxFileSize,
		ContinueOnError: cfg.ContinueOnError,
	}
	if ret.Parallelism <= 0 {
		ret.Parallelism = model.DefaultParallelism
	}
	if ret.MaxFileSize <= 0 {
		ret.MaxFileSize = model.DefaultMaxFileSize
	}
	return ret
}

type Scan struct {
	cfg            Config
	detectors      []Detector
	pool           sync.Pool
	poolNewCounter atomic.Int32
	poolPutCounter atomic.Int32
}

type Stats struct {
	PoolNewCounter int
	PoolPutCounter int
}

func New(cfg Config, detectors ...Detector) *Scan {
	s := &Scan{
		cfg:       cfg,
		detectors: detectors,
	}
	s.pool = sync.Pool{
		New: func() any {
			s.poolNewCounter.Add(1)
			return new(bytes.Buffer)
		},
	}
	return s
}

type fileResult struct {
	path     string
	findings []model.Finding
}

// Run scans every path once and returns the merged findings sorted by path and
// line, which makes the result independent of the scheduling.
//
//  1. A path listed more than once is scanned once
//  2. A file which can't be read or fails a detector becomes a scan-error
//     finding, unless ContinueOnError is false; then Run stops and returns the error
//  3. Cancellation stops new files from being started. Files already being
//     scanned complete; Run returns them together with the context error.
func (s *Scan) Run(ctx context.Context, paths []string) (model.Result, error) {
	paths = unique(paths)
	res := model.Result{
		Files:    make([]string, 0, len(paths)),
		Findings: []model.Finding{},
	}
	if len(paths) == 0 {
		return res, nil
	}

	scanned := make(map[string]struct{}, len(paths))
	pmap := parallel.NewMap(ctx, s.cfg.Parallelism, s.scan)
	for fr, err := range pmap.Iter(walk.Paths(ctx, paths...)) {
		switch {
		case err == nil:
			res.Findings = append(res.Findings, fr.findings...)
		case fr.path == "":
			slog.DebugContext(ctx, "ignoring input error", "error", err)
			continue
		case isCanceled(ctx, err):
			// not started, so not scanned at all
			continue
		case !s.cfg.ContinueOnError:
			return model.Result{}, fmt.Errorf("scanning %s: %w", fr.path, err)
		default:
			slog.WarnContext(ctx, "scan failed", "path", fr.path, "error", err)
			res.Findings = append(res.Findings, model.ScanError(fr.path, err))
		}
		scanned[fr.path] = struct{}{}
	}

	for _, path := range paths {
		if _, ok := scanned[path]; ok {
			res.Files = append(res.Files, path)
		}
	}
	res.Sort()
	return res, ctx.Err()
}

func (s *Scan) scan(ctx context.Context, entry walk.Entry) (fileResult, error) {
	ret := fileResult{path: entry.Path()}
	ctx = log.ContextAttrs(ctx, slog.String("path", entry.Path()))
	slog.DebugContext(ctx, "scanning")
	if ctx.Err() != nil {
		return ret, ctx.Err()
	}
	// once started, a file is scanned to the end
	ctx = context.WithoutCancel(ctx)

	info, err := entry.Stat()
	if err != nil {
		return ret, fmt.Errorf("%w: %w", model.ErrFileAccess, err)
	}
	if !info.Mode().IsRegular() {
		return ret, fmt.Errorf("%w: %s is not a regular file", model.ErrFileAccess, entry.Path())
	}
	if info.Size() > s.cfg.MaxFileSize {
		slog.DebugContext(ctx, "scanning skipped, too big file", "size", info.Size())
		return ret, fmt.Errorf("%w: entry too big (%d bytes): %w", model.ErrFileAccess, info.Size(), model.ErrTooBig)
	}

	content, err := s.read(entry)
	if err != nil {
		return ret, err
	}
	file := model.SourceFile{Path: entry.Path(), Content: content}

	var detectionErrors []error
	var found []model.Finding
	for _, detector := range s.detectors {
		dctx := ctx
		if ld, ok := detector.(interface{ LogAttrs() []slog.Attr }); ok {
			dctx = log.ContextAttrs(ctx, ld.LogAttrs()...)
		}

		d, err := detector.Detect(dctx, file)
		switch {
		case err == nil:
			found = append(found, d...)
		case errors.Is(err, model.ErrNoMatch):
			// ignore ErrNoMatch
		default:
			detectionErrors = append(detectionErrors, err)
		}
	}
	if len(detectionErrors) > 0 {
		return ret, fmt.Errorf("%w: %w", model.ErrDetector, errors.Join(detectionErrors...))
	}

	sortFile(found)
	ret.findings = found
	return ret, nil
}

func (s *Scan) read(entry walk.Entry) (string, error) {
	f, err := entry.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrFileAccess, err)
	}
	defer func() {
		_ = f.Close() // read only, close error is not interesting
	}()

	buf := s.pool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		s.poolPutCounter.Add(1)
		s.pool.Put(buf)
	}()

	// the file may have grown since Stat
	if _, err := buf.ReadFrom(io.LimitReader(f, s.cfg.MaxFileSize+1)); err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrFileAccess, err)
	}
	if int64(buf.Len()) > s.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: entry too big (more than %d bytes): %w", model.ErrFileAccess, s.cfg.MaxFileSize, model.ErrTooBig)
	}
	// String copies, so buf can be reused
	return buf.String(), nil
}

func (s *Scan) Stats() Stats {
	return Stats{
		PoolNewCounter: int(s.poolNewCounter.Load()),
		PoolPutCounter: int(s.poolPutCounter.Load()),
	}
}

// sortFile orders findings of one file by line, the detector order is kept
// within a line
func sortFile(findings []model.Finding) {
	slices.SortStableFunc(findings, func(a, b model.Finding) int {
		return cmp.Compare(a.Line, b.Line)
	})
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func unique(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	ret := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		ret = append(ret, p)
	}
	return ret
}
