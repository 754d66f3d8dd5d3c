package vault

import "strings"

// ExtClass says how an upload with a given extension is handled.
type ExtClass int

const (
	ExtUnsupported ExtClass = iota
	ExtSupported
	ExtExtra
	ExtConverted
	ExtExternal
)

// ConvertedExt is the extension converter output is stored under.
const ConvertedExt = "pdf"

// Extensions lists every accepted extension by class.
type Extensions struct {
	Supported []string `json:"supported"`
	Extras    []string `json:"extras"`
	Converted []string `json:"converted"`
	External  []string `json:"external"`
}

// KnownExtensions is the fixed extension allow-list.
var KnownExtensions = Extensions{
	Supported: []string{"pdb", "sdf", "cif", "pdf", "png", "jpg", "nanome", "nanosr", "lua", "obj"},
	Extras:    []string{"ccp4", "dcd", "dsn6", "dx", "gro", "mae", "mmcif", "moe", "mol2", "pqr", "pse", "psf", "smiles", "trr", "xtc", "xyz"},
	Converted: []string{"ppt", "pptx", "doc", "docx", "txt", "rtf", "odt", "odp"},
	External:  []string{"map", "map.gz"},
}

// Ext returns the lower-cased extension of name without the dot. Known
// double extensions such as "map.gz" win over the last segment.
func Ext(name string) string {
	lower := strings.ToLower(name)
	for _, e := range KnownExtensions.External {
		if strings.Contains(e, ".") && strings.HasSuffix(lower, "."+e) {
			return e
		}
	}
	i := strings.LastIndex(lower, ".")
	if i < 0 || i == len(lower)-1 {
		return ""
	}
	return lower[i+1:]
}

// Classify maps name to its extension class.
func Classify(name string) ExtClass {
	ext := Ext(name)
	if ext == "" {
		return ExtUnsupported
	}
	switch {
	case contains(KnownExtensions.External, ext):
		return ExtExternal
	case contains(KnownExtensions.Supported, ext):
		return ExtSupported
	case contains(KnownExtensions.Extras, ext):
		return ExtExtra
	case contains(KnownExtensions.Converted, ext):
		return ExtConverted
	}
	return ExtUnsupported
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
