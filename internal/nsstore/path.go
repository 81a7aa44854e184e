package nsstore

import "strings"

// Normalize mirrors the original Hyperspace master's NormalizeName: it
// collapses repeated interior separators and strips a trailing slash (except
// for the root itself). Callers must still reject non-absolute names and
// names with an explicit trailing slash per Coordinator §4.1 before calling
// operations that create nodes; Normalize is used for lookups and for
// deriving parent names.
func Normalize(name string) string {
	if name == "" {
		return "/"
	}
	parts := strings.Split(name, "/")
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return "/"
	}
	return "/" + strings.Join(kept, "/")
}

// IsValidNodeName reports whether name is an absolute path with no trailing
// slash, per Coordinator §4.1's open() precondition.
func IsValidNodeName(name string) bool {
	if name == "" || name[0] != '/' {
		return false
	}
	if len(name) > 1 && strings.HasSuffix(name, "/") {
		return false
	}
	return true
}

// ParentOf returns the normalized parent name and the child's base name,
// mirroring the original master's FindParentNode. The root's parent is the
// root itself with an empty child name.
func ParentOf(name string) (parent string, child string) {
	norm := Normalize(name)
	if norm == "/" {
		return "/", ""
	}
	idx := strings.LastIndexByte(norm, '/')
	child = norm[idx+1:]
	if idx == 0 {
		return "/", child
	}
	return norm[:idx], child
}
