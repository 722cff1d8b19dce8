package agentloop

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathEscapeError reports a path that resolves outside the working directory.
// It carries both the offending path and the root to aid diagnosis.
type PathEscapeError struct {
	Path string
	Root string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path traversal attempt detected: %s is outside %s", e.Path, e.Root)
}

// ResolvePath resolves raw against root and verifies containment. Absolute
// paths are used as-is; relative paths are joined to root. The result is
// cleaned (".." and "." resolved) and symlinks in its existing prefix are
// followed, so a link inside the root that points elsewhere cannot smuggle
// operations out. The resolved path must equal the root or be nested under
// it; the comparison is per path component, so /work-evil does not pass for
// root /work.
//
// This check runs before any read, write, or existence check, never after.
func ResolvePath(raw, root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	absRoot = canonicalize(filepath.Clean(absRoot))

	var target string
	if filepath.IsAbs(raw) {
		target = filepath.Clean(raw)
	} else {
		target = filepath.Clean(filepath.Join(absRoot, raw))
	}
	target = canonicalize(target)

	if !containsPath(absRoot, target) {
		return "", &PathEscapeError{Path: raw, Root: root}
	}
	return target, nil
}

// canonicalize resolves symlinks in the longest existing prefix of path and
// rejoins the remainder that does not exist yet.
func canonicalize(path string) string {
	suffix := ""
	p := path
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(resolved, suffix)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path
		}
		suffix = filepath.Join(filepath.Base(p), suffix)
		p = parent
	}
}

// containsPath reports whether target equals root or is a descendant of it.
func containsPath(root, target string) bool {
	if target == root {
		return true
	}
	return strings.HasPrefix(target, root+string(filepath.Separator))
}
