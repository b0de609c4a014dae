// restrict.go implements file access restrictions for context gathering.
package workflow

import (
	"path/filepath"
	"strings"
)

// Restrictions holds the allow/deny patterns from ALLOW-FILES, DENY-FILES,
// ALLOW-DIR and DENY-DIR directives. Deny always wins; when any allow list
// is present, paths must match it to be admitted.
type Restrictions struct {
	AllowFiles []string
	DenyFiles  []string
	AllowDirs  []string
	DenyDirs   []string
}

// Empty reports whether no restriction directives were given.
func (r Restrictions) Empty() bool {
	return len(r.AllowFiles) == 0 && len(r.DenyFiles) == 0 &&
		len(r.AllowDirs) == 0 && len(r.DenyDirs) == 0
}

// IsPathAllowed applies the restriction rules to one path. Evaluation
// order: deny patterns first (a match refuses the path outright), then the
// allow lists (when present, the path must match one of them). A path that
// matches both allow and deny is denied.
func (r Restrictions) IsPathAllowed(path string) bool {
	norm := filepath.ToSlash(path)

	for _, pat := range r.DenyFiles {
		if fileMatch(pat, norm) {
			return false
		}
	}
	for _, pat := range r.DenyDirs {
		if dirMatch(pat, norm) {
			return false
		}
	}

	hasAllow := len(r.AllowFiles) > 0 || len(r.AllowDirs) > 0
	if !hasAllow {
		return true
	}
	for _, pat := range r.AllowFiles {
		if fileMatch(pat, norm) {
			return true
		}
	}
	for _, pat := range r.AllowDirs {
		if dirMatch(pat, norm) {
			return true
		}
	}
	return false
}

// fileMatch matches a glob pattern against the path's base name, or against
// the whole path when the pattern contains a separator.
func fileMatch(pattern, path string) bool {
	pattern = filepath.ToSlash(pattern)
	if strings.Contains(pattern, "/") {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		// Relative patterns should also hit deeper paths.
		if ok, _ := filepath.Match("*/"+pattern, path); ok {
			return true
		}
		return false
	}
	ok, _ := filepath.Match(pattern, pathBase(path))
	return ok
}

// dirMatch reports whether any directory component of path matches the
// pattern, or whether path sits under the pattern as a directory prefix.
func dirMatch(pattern, path string) bool {
	pattern = filepath.ToSlash(strings.TrimSuffix(filepath.ToSlash(pattern), "/"))

	dir := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir = path[:i]
	} else {
		dir = ""
	}

	if dir == "" {
		return false
	}
	if strings.HasPrefix(path, pattern+"/") {
		return true
	}
	for _, comp := range strings.Split(dir, "/") {
		if comp == "" {
			continue
		}
		if ok, _ := filepath.Match(pattern, comp); ok {
			return true
		}
	}
	return false
}

func pathBase(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
