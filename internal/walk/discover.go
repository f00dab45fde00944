package walk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Filter selects the files Discover returns
type Filter struct {
	Extensions []string // ".cs"; empty selects every file
	Exclude    []string // gitignore syntax, relative to each root directory
	GitIgnore  bool     // also honor the .gitignore at the root of each directory
}

// Discover resolves paths into the list of files to scan. A directory is
// walked recursively and filtered; a file is taken as is. A path which can't
// be inspected, including a file or directory the walk fails on, is kept, so
// the scan reports it.
// The result is deduplicated, directory contents come in lexical order.
func Discover(ctx context.Context, filter Filter, paths ...string) ([]string, error) {
	var ret []string
	seen := make(map[string]struct{})
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		ret = append(ret, path)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			add(path)
			continue
		}

		root, err := os.OpenRoot(path)
		if err != nil {
			return nil, fmt.Errorf("opening directory %s: %w", path, err)
		}
		skip := filter.skipFunc(ctx, root)
		for entry, err := range Roots(ctx, skip, root) {
			if err != nil {
				// kept, so the scan reports it
				slog.DebugContext(ctx, "walk failed", "path", entry.Path(), "error", err)
				add(entry.Path())
				continue
			}
			if !filter.matchExtension(entry.Path()) {
				continue
			}
			add(entry.Path())
		}
		_ = root.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return ret, nil
}

func (f Filter) matchExtension(path string) bool {
	if len(f.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	return slices.ContainsFunc(f.Extensions, func(e string) bool {
		return strings.EqualFold(e, ext)
	})
}

func (f Filter) skipFunc(ctx context.Context, root *os.Root) SkipFunc {
	patterns := slices.Clone(f.Exclude)
	if f.GitIgnore {
		b, err := root.ReadFile(".gitignore")
		switch {
		case err == nil:
			patterns = append(patterns, strings.Split(string(b), "\n")...)
		case !os.IsNotExist(err):
			slog.WarnContext(ctx, "can't read .gitignore", "dir", root.Name(), "error", err)
		}
	}
	if len(patterns) == 0 {
		return nil
	}

	matcher := ignore.CompileIgnoreLines(patterns...)
	return func(path string, isDir bool) bool {
		// patterns ending in '/' match directories only
		if isDir {
			path += "/"
		}
		return matcher.MatchesPath(path)
	}
}
