package walk_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/CZERTAINLY/Vetter/internal/walk"
	"github.com/stretchr/testify/require"
)

func creat(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDiscover(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	creat(t, dir, ".gitignore", "generated/\nignored.cs\n")
	a := creat(t, dir, "a.cs", "class A {}")
	creat(t, dir, "b.txt", "text")
	creat(t, dir, "bin/x.cs", "class X {}")
	creat(t, dir, "generated/g.cs", "class G {}")
	creat(t, dir, "ignored.cs", "class I {}")
	c := creat(t, dir, "sub/C.CS", "class C {}")

	filter := walk.Filter{
		Extensions: []string{".cs"},
		Exclude:    []string{"bin/"},
		GitIgnore:  true,
	}

	t.Run("filtered", func(t *testing.T) {
		paths, err := walk.Discover(t.Context(), filter, dir)
		require.NoError(t, err)
		require.Equal(t, []string{a, c}, paths)
	})

	t.Run("without gitignore", func(t *testing.T) {
		f := filter
		f.GitIgnore = false
		paths, err := walk.Discover(t.Context(), f, dir)
		require.NoError(t, err)
		require.Len(t, paths, 4)
		require.NotContains(t, paths, filepath.Join(dir, "bin", "x.cs"))
	})

	t.Run("no filter", func(t *testing.T) {
		paths, err := walk.Discover(t.Context(), walk.Filter{}, dir)
		require.NoError(t, err)
		require.Len(t, paths, 7)
	})

	t.Run("explicit files and missing paths are kept", func(t *testing.T) {
		missing := filepath.Join(dir, "missing.cs")
		txt := filepath.Join(dir, "b.txt")
		paths, err := walk.Discover(t.Context(), filter, txt, missing, dir, txt)
		require.NoError(t, err)
		require.Equal(t, []string{txt, missing, a, c}, paths)
	})
}

func TestPaths(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := creat(t, dir, "a.cs", "hello")
	missing := filepath.Join(dir, "missing.cs")

	var entries []walk.Entry
	for entry, err := range walk.Paths(t.Context(), a, missing) {
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	require.Len(t, entries, 2)

	require.Equal(t, a, entries[0].Path())
	info, err := entries[0].Stat()
	require.NoError(t, err)
	require.Equal(t, int64(5), info.Size())
	f, err := entries[0].Open()
	require.NoError(t, err)
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, "hello", string(b))

	_, err = entries[1].Stat()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFS(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	creat(t, dir, "a/b/c.cs", "c")
	creat(t, dir, "a/d.cs", "d")

	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })

	var paths []string
	for entry, err := range walk.Roots(t.Context(), nil, root) {
		require.NoError(t, err)
		paths = append(paths, entry.Path())
	}
	require.Equal(t, []string{
		filepath.Join(dir, "a", "b", "c.cs"),
		filepath.Join(dir, "a", "d.cs"),
	}, paths)

	// the iteration stops early
	for range walk.Roots(t.Context(), nil, root) {
		break
	}
}

func TestDiscover_WalkError(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	dir := t.TempDir()
	a := creat(t, dir, "a.cs", "class A {}")
	creat(t, dir, "locked/l.cs", "class L {}")
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	paths, err := walk.Discover(t.Context(), walk.Filter{Extensions: []string{".cs"}}, dir)
	require.NoError(t, err)
	require.Equal(t, []string{a, locked}, paths)
}
