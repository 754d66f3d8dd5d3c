package vault

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

// Guard resolves vault-relative paths against the storage root and refuses
// anything that would land outside of it.
type Guard struct {
	root string
}

// NewGuard anchors a Guard at root. Symlinks in root itself are resolved so
// containment checks compare like with like.
func NewGuard(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault root %s: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Guard{root: abs}, nil
}

// Root returns the absolute vault root.
func (g *Guard) Root() string {
	return g.root
}

// Clean normalizes a vault-relative path to slash form without leading or
// trailing separators. Backslashes count as separators. The root is "".
func Clean(sub string) string {
	s := strings.ReplaceAll(sub, "\\", "/")
	s = path.Clean("/" + s)
	return strings.TrimPrefix(s, "/")
}

// Resolve joins sub onto the root and returns the absolute path. It fails
// with common.ErrInvalidPath when the normalized result escapes the root
// (raw or percent-decoded), when an existing path resolves through a
// symlink to somewhere outside the root, or, with enforceExists, when
// nothing exists there.
func (g *Guard) Resolve(sub string, enforceExists bool) (string, error) {
	raw := strings.ReplaceAll(sub, "\\", "/")

	candidates := []string{raw}
	if decoded, err := url.PathUnescape(raw); err == nil && decoded != raw {
		candidates = append(candidates, strings.ReplaceAll(decoded, "\\", "/"))
	}
	for _, c := range candidates {
		if !g.contains(filepath.Join(g.root, filepath.FromSlash(c))) {
			return "", fmt.Errorf("%w: %q escapes vault root", common.ErrInvalidPath, sub)
		}
	}

	abs := filepath.Join(g.root, filepath.FromSlash(raw))

	if _, err := os.Lstat(abs); err == nil {
		if real, err := filepath.EvalSymlinks(abs); err == nil && !g.contains(real) {
			return "", fmt.Errorf("%w: %q links outside vault root", common.ErrInvalidPath, sub)
		}
	} else if enforceExists {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidPath, sub)
	}

	return abs, nil
}

// Rel converts an absolute path under the root back to vault-relative form.
func (g *Guard) Rel(abs string) string {
	rel, err := filepath.Rel(g.root, abs)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (g *Guard) contains(abs string) bool {
	rel, err := filepath.Rel(g.root, filepath.Clean(abs))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
