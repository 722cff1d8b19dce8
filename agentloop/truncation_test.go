package agentloop

import (
	"strings"
	"testing"
)

func TestTruncateOutputShortPassthrough(t *testing.T) {
	if got := TruncateOutput("short", 100); got != "short" {
		t.Errorf("got %q", got)
	}
}

func TestTruncateOutputKeepsHeadAndTail(t *testing.T) {
	input := "HEAD" + strings.Repeat("m", 1000) + "TAIL"
	got := TruncateOutput(input, 200)

	if !strings.HasPrefix(got, "HEAD") {
		t.Errorf("head lost: %q", got[:20])
	}
	if !strings.HasSuffix(got, "TAIL") {
		t.Errorf("tail lost: %q", got[len(got)-20:])
	}
	if !strings.Contains(got, "WARNING: Tool output was truncated") {
		t.Error("missing truncation marker")
	}
	if len(got) >= len(input) {
		t.Errorf("output grew: %d >= %d", len(got), len(input))
	}
}

func TestTruncateToolOutputLimitSelection(t *testing.T) {
	long := strings.Repeat("z", 40000)

	// read_file allows 50000 chars, so 40000 pass untouched.
	if got := TruncateToolOutput(long, "read_file", nil); got != long {
		t.Error("read_file output under limit was truncated")
	}
	// run_command caps at 30000.
	if got := TruncateToolOutput(long, "run_command", nil); len(got) >= len(long) {
		t.Error("run_command output over limit was not truncated")
	}
	// Unknown tools fall back to the default cap.
	if got := TruncateToolOutput(long, "mystery", nil); len(got) >= len(long) {
		t.Error("fallback limit not applied")
	}
	// Overrides win over the builtin table.
	if got := TruncateToolOutput(long, "read_file", map[string]int{"read_file": 100}); len(got) >= len(long) {
		t.Error("override limit not applied")
	}
}
