// Package refstore implements the reference namespace: loose and
// packed refs, HEAD (symbolic or detached), compare-and-swap updates,
// and the per-ref reflog.
package refstore

import "strings"

// ValidName reports whether name is a well-formed reference name. Rules
// follow the classic git-check-ref-format set, adapted to this project's
// exact requirements: no empty component, no component starting with
// '.', no "..", no control characters, none of " ~^:?*[\\", no
// consecutive slashes, and no trailing slash, ".lock" suffix, or ".".
func ValidName(name string) bool {
	if name == "" || name == "@" {
		return false
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return false
	}
	if strings.HasSuffix(name, ".") || strings.HasSuffix(name, ".lock") {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") {
		return false
	}
	if strings.Contains(name, "@{") {
		return false
	}
	if strings.IndexFunc(name, isForbiddenRefRune) >= 0 {
		return false
	}

	for _, component := range strings.Split(name, "/") {
		if component == "" {
			return false
		}
		if strings.HasPrefix(component, ".") {
			return false
		}
		if strings.HasSuffix(component, ".lock") {
			return false
		}
	}
	return true
}

func isForbiddenRefRune(c rune) bool {
	switch {
	case c < 0x20 || c == 0x7f:
		return true
	case c == ' ' || c == '~' || c == '^' || c == ':':
		return true
	case c == '?' || c == '*' || c == '[' || c == '\\':
		return true
	}
	return false
}
