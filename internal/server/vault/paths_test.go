package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

func TestClean(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"/":              "",
		"shared/":        "shared",
		`user-1\docs`:    "user-1/docs",
		"a//b/./c":       "a/b/c",
		"../../etc":      "etc",
		"/shared/a/../b": "shared/b",
	}
	for in, want := range tests {
		assert.Equal(t, want, Clean(in), in)
	}
}

func TestGuard_ResolveRejectsEscapes(t *testing.T) {
	g, err := NewGuard(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{
		"..",
		"../x",
		`..\x`,
		"a/../../x",
		`shared\..\..\x`,
		"%2e%2e/x",
		"%2e%2e%2fx",
		"..%2fsecret",
		"shared/%2E%2E/%2E%2E/x",
	} {
		t.Run(p, func(t *testing.T) {
			_, err := g.Resolve(p, false)
			assert.ErrorIs(t, err, common.ErrInvalidPath)
		})
	}
}

func TestGuard_ResolveStaysInsideRoot(t *testing.T) {
	g, err := NewGuard(t.TempDir())
	require.NoError(t, err)

	inputs := []string{
		"", ".", "/", "shared", "/etc/passwd", "a/b/../c", `a\b`, "a/./b/",
		"..", "../..", "a/../..", "%2e%2e", "a%2f..%2f..%2fb", "....//x", "a/..../b",
	}
	for _, p := range inputs {
		abs, err := g.Resolve(p, false)
		if err != nil {
			assert.ErrorIs(t, err, common.ErrInvalidPath, p)
			continue
		}
		rel, rerr := filepath.Rel(g.Root(), abs)
		require.NoError(t, rerr)
		assert.False(t, rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)), "%q resolved to %q", p, abs)
	}
}

func TestGuard_AbsoluteLookingInputIsRooted(t *testing.T) {
	g, err := NewGuard(t.TempDir())
	require.NoError(t, err)

	abs, err := g.Resolve("/etc/passwd", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(g.Root(), "etc", "passwd"), abs)
}

func TestGuard_EnforceExists(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "shared"), 0o770))
	g, err := NewGuard(root)
	require.NoError(t, err)

	_, err = g.Resolve("shared/missing", true)
	assert.ErrorIs(t, err, common.ErrInvalidPath)

	abs, err := g.Resolve("shared/missing", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(g.Root(), "shared", "missing"), abs)

	abs, err = g.Resolve("shared", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(g.Root(), "shared"), abs)
}

func TestGuard_RejectsSymlinkOutOfRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	g, err := NewGuard(root)
	require.NoError(t, err)

	_, err = g.Resolve("escape", true)
	assert.ErrorIs(t, err, common.ErrInvalidPath)
}

func TestGuard_Rel(t *testing.T) {
	g, err := NewGuard(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "", g.Rel(g.Root()))
	assert.Equal(t, "shared/a.pdb", g.Rel(filepath.Join(g.Root(), "shared", "a.pdb")))
}
