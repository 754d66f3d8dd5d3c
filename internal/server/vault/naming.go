package vault

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var copyPattern = regexp.MustCompile(`^(.+?)(?: \((\d+)\))?(\.\w+)?$`)

// nameSequence yields name first, then "base (n).ext" candidates. A name
// already carrying "(n)" continues from n; otherwise numbering starts at 2.
func nameSequence(name string) func() string {
	m := copyPattern.FindStringSubmatch(name)
	if m == nil {
		m = []string{name, name, "", ""}
	}
	base, ext := m[1], m[3]
	n := 1
	if m[2] != "" {
		n, _ = strconv.Atoi(m[2])
	}

	first := true
	return func() string {
		if first {
			first = false
			return name
		}
		n++
		return fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
}

var unsafeNameChars = strings.NewReplacer("#", "_", "?", "_")

// SanitizeName replaces characters that break URLs and lower-cases the
// extension: "Report #1?.PDB" becomes "Report _1_.pdb".
func SanitizeName(name string) string {
	name = unsafeNameChars.Replace(name)
	ext := Ext(name)
	if ext == "" {
		return name
	}
	return name[:len(name)-len(ext)] + ext
}

// ReplaceExt swaps the extension of name for ext.
func ReplaceExt(name, ext string) string {
	old := Ext(name)
	if old == "" {
		return name + "." + ext
	}
	return name[:len(name)-len(old)] + ext
}
