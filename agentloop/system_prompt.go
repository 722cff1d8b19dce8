package agentloop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BasePromptPath is where the base prompt lives, relative to the working
// directory. Operators can edit it between runs.
const BasePromptPath = "prompts/agent/prompt.md"

// defaultBasePrompt seeds prompts/agent/prompt.md when absent.
const defaultBasePrompt = `You are Ralph, an autonomous software agent. You work in small, verifiable
steps and leave the working directory in a consistent state after every
iteration.
`

// LoadBasePrompt reads the base prompt from the working directory, falling
// back to the built-in default when missing or unreadable.
func LoadBasePrompt(workdir string) string {
	data, err := os.ReadFile(filepath.Join(workdir, BasePromptPath))
	if err != nil {
		return defaultBasePrompt
	}
	return string(data)
}

// EnsurePromptFiles creates the prompt layout in the working directory:
// prompts/agent/prompt.md seeded with the default when absent, and
// prompts/instructions/ for the instruction working copy. Existing operator
// modifications are respected.
func EnsurePromptFiles(workdir string) error {
	promptFile := filepath.Join(workdir, BasePromptPath)
	if _, err := os.Stat(promptFile); err != nil {
		if err := os.MkdirAll(filepath.Dir(promptFile), 0755); err != nil {
			return fmt.Errorf("create prompt directory: %w", err)
		}
		if err := os.WriteFile(promptFile, []byte(defaultBasePrompt), 0644); err != nil {
			return fmt.Errorf("seed base prompt: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(workdir, InstructionsDir), 0755); err != nil {
		return fmt.Errorf("create instructions directory: %w", err)
	}
	return nil
}

// BuildSystemPrompt composes the per-iteration system prompt from the base
// prompt, the absolute working directory, and the current instruction text.
func BuildSystemPrompt(basePrompt, workdir, instruction string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(basePrompt))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&sb, "You are working in the directory: %s\n", workdir)
	sb.WriteString("Your goal is to follow these instructions:\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\n")
	sb.WriteString(`You have tools to list, read, and write files, and run commands.
If you need to explore the codebase, use list_files and read_file.
Do not hallucinate file contents. Always read them first.
When you are satisfied that you have completed the task, call the done tool.
If you cannot complete the task in one step, make progress and stop. You will be restarted with fresh context but the files will persist.
`)
	return sb.String()
}
