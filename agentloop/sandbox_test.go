package agentloop

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// canonRoot mirrors the symlink resolution ResolvePath applies, so
// assertions hold when the temp dir itself sits behind a symlink.
func canonRoot(t *testing.T, root string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return root
	}
	return resolved
}

func TestResolvePathContainment(t *testing.T) {
	root := t.TempDir()
	canon := canonRoot(t, root)

	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"dot", ".", false},
		{"relative file", "notes.txt", false},
		{"nested nonexistent", "a/b/c.txt", false},
		{"absolute inside", filepath.Join(root, "inner.txt"), false},
		{"root itself", root, false},
		{"parent escape", "../../etc/passwd", true},
		{"dotdot chain", "a/../../outside", true},
		{"absolute outside", "/etc/passwd", true},
		{"sibling prefix", root + "-evil/file", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolved, err := ResolvePath(tc.raw, root)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ResolvePath(%q) = %q, want PathEscapeError", tc.raw, resolved)
				}
				var escape *PathEscapeError
				if !errors.As(err, &escape) {
					t.Fatalf("ResolvePath(%q) error = %T, want *PathEscapeError", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePath(%q) unexpected error: %v", tc.raw, err)
			}
			if resolved != canon && !strings.HasPrefix(resolved, canon+string(filepath.Separator)) {
				t.Errorf("resolved path %q not under root %q", resolved, canon)
			}
		})
	}
}

func TestResolvePathRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "exit")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := ResolvePath("exit/secret.txt", root)
	var escape *PathEscapeError
	if !errors.As(err, &escape) {
		t.Fatalf("ResolvePath through escaping symlink: error = %v, want *PathEscapeError", err)
	}
}

func TestResolvePathAllowsSymlinkWithinRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "real"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	resolved, err := ResolvePath("alias/file.txt", root)
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	canon := canonRoot(t, root)
	if !strings.HasPrefix(resolved, canon+string(filepath.Separator)) {
		t.Errorf("resolved path %q not under root %q", resolved, canon)
	}
}

func TestPathEscapeErrorMessage(t *testing.T) {
	root := t.TempDir()
	_, err := ResolvePath("../../etc/passwd", root)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "../../etc/passwd") || !strings.Contains(msg, root) {
		t.Errorf("error message should carry both path and root, got %q", msg)
	}
}
