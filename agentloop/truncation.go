package agentloop

import "fmt"

// Default character limits per tool before a result enters the history. The
// event stream always carries the full output.
var defaultToolCharLimits = map[string]int{
	"read_file":   50000,
	"run_command": 30000,
	"list_files":  20000,
}

// fallbackCharLimit applies to tools with no entry above.
const fallbackCharLimit = 30000

// TruncateOutput applies head/tail character truncation to output.
func TruncateOutput(output string, maxChars int) string {
	if len(output) <= maxChars {
		return output
	}
	half := maxChars / 2
	removed := len(output) - maxChars
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"Re-run the tool with more targeted parameters if you need the rest.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateToolOutput truncates a tool result using the per-tool limit, with
// optional overrides from configuration.
func TruncateToolOutput(output, toolName string, overrides map[string]int) string {
	maxChars, ok := overrides[toolName]
	if !ok {
		maxChars, ok = defaultToolCharLimits[toolName]
		if !ok {
			maxChars = fallbackCharLimit
		}
	}
	return TruncateOutput(output, maxChars)
}
