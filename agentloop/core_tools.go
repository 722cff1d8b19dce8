package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PolecatWorks/ralph/llm"
)

// DoneSignal is the completion sentinel returned by the done tool. The loop
// matches it exactly: case- and content-sensitive.
const DoneSignal = "RALPH_DONE"

// RegisterCoreTools registers the fixed ralph toolset on a registry. Each
// tool is total: operating-system faults are returned as descriptive result
// strings the model can observe and react to, never as Go errors. The error
// return is reserved for argument-contract violations.
func RegisterCoreTools(reg *ToolRegistry) {
	registerListFiles(reg)
	registerReadFile(reg)
	registerWriteFile(reg)
	registerRunCommand(reg)
	registerUpdatePRD(reg)
	registerAskUser(reg)
	registerUpdateInstruction(reg)
	registerDone(reg)
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func registerListFiles(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "list_files",
			Description: "List all files in the given directory, recursively. Paths are relative to the directory.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": stringProp("Directory to list. Defaults to the working directory."),
				},
			},
		},
		Executor: func(arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, ok := GetStringArg(args, "path")
			if !ok || path == "" {
				path = "."
			}
			files, err := env.ListFiles(path)
			if err != nil {
				return fmt.Sprintf("Error: %v", err), nil
			}
			return strings.Join(files, "\n"), nil
		},
	})
}

func registerReadFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "read_file",
			Description: "Read the content of a file.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": stringProp("Path to the file to read."),
				},
				"required": []string{"path"},
			},
		},
		Executor: func(arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, ok := GetStringArg(args, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			content, err := env.ReadFile(path)
			if err != nil {
				return fmt.Sprintf("Error reading file %s: %v", path, err), nil
			}
			return content, nil
		},
	})
}

func registerWriteFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "write_file",
			Description: "Write content to a file, creating parent directories as needed. Overwrites existing content.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    stringProp("Path to the file to write."),
					"content": stringProp("The full file content to write."),
				},
				"required": []string{"path", "content"},
			},
		},
		Executor: func(arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, ok := GetStringArg(args, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			content, ok := GetStringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			if err := env.WriteFile(path, content); err != nil {
				return fmt.Sprintf("Error writing to file %s: %v", path, err), nil
			}
			return fmt.Sprintf("Successfully wrote to %s", path), nil
		},
	})
}

func registerRunCommand(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "run_command",
			Description: "Run a shell command in the working directory. Returns stdout and stderr. Commands are killed after the timeout.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": stringProp("The shell command to run."),
				},
				"required": []string{"command"},
			},
		},
		Executor: func(arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			command, ok := GetStringArg(args, "command")
			if !ok || command == "" {
				return "", fmt.Errorf("command is required")
			}
			result, err := env.RunCommand(context.Background(), command)
			if err != nil {
				return fmt.Sprintf("Error running command: %v", err), nil
			}
			return fmt.Sprintf("stdout:\n%s\nstderr:\n%s", result.Stdout, result.Stderr), nil
		},
	})
}

func registerUpdatePRD(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "update_prd",
			Description: "Add a new user story to the PRD (prd.json). Use this tool to track requirements and progress.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"story_title": stringProp("The title of the user story."),
					"story_id":    stringProp("Optional story ID. Defaults to a generated one."),
					"notes":       stringProp("Optional notes for the story."),
				},
				"required": []string{"story_title"},
			},
		},
		Executor: func(arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			storyTitle, ok := GetStringArg(args, "story_title")
			if !ok || storyTitle == "" {
				return "", fmt.Errorf("story_title is required")
			}
			storyID, _ := GetStringArg(args, "story_id")
			notes, _ := GetStringArg(args, "notes")

			prdPath, err := ResolvePath(LedgerFileName, env.WorkingDirectory())
			if err != nil {
				return fmt.Sprintf("Error updating PRD: %v", err), nil
			}

			ledger := LoadLedger(prdPath)
			ledger.AppendStory(storyTitle, storyID, notes)
			if err := ledger.Save(prdPath); err != nil {
				return fmt.Sprintf("Error updating PRD: %v", err), nil
			}
			return fmt.Sprintf("Successfully added story '%s' to prd.json", storyTitle), nil
		},
	})
}

func registerAskUser(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "ask_user",
			Description: "Ask the user a question to get clarification or input. Execution pauses until the user answers.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": stringProp("The question to ask the user."),
				},
				"required": []string{"question"},
			},
		},
		Executor: func(arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			question, ok := GetStringArg(args, "question")
			if !ok || question == "" {
				return "", fmt.Errorf("question is required")
			}
			answer, err := env.AskOperator(question)
			if err != nil {
				return fmt.Sprintf("Error asking user: %v", err), nil
			}
			return answer, nil
		},
	})
}

func registerUpdateInstruction(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "update_instruction",
			Description: "Update the current instruction file with new details or clarifications. This overwrites the existing instruction file.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"new_instruction": stringProp("The full replacement instruction text."),
				},
				"required": []string{"new_instruction"},
			},
		},
		Executor: func(arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			newInstruction, ok := GetStringArg(args, "new_instruction")
			if !ok {
				return "", fmt.Errorf("new_instruction is required")
			}
			path := env.InstructionPath()
			if path == "" {
				return "Error: No instruction file path found in configuration.", nil
			}
			// The instruction path comes from the loop setup, not the model;
			// it is trusted and lives outside the per-call sandbox check.
			if err := os.WriteFile(path, []byte(newInstruction), 0644); err != nil {
				return fmt.Sprintf("Error updating instruction: %v", err), nil
			}
			return "Successfully updated instruction file.", nil
		},
	})
}

func registerDone(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "done",
			Description: "Signal that the objective is met and the loop should terminate.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		Executor: func(_ json.RawMessage, env ExecutionEnvironment) (string, error) {
			// Consistency check: a run without a working directory is
			// misconfigured even though done itself touches nothing.
			if env.WorkingDirectory() == "" || !filepath.IsAbs(env.WorkingDirectory()) {
				return "", fmt.Errorf("no working directory configured")
			}
			return DoneSignal, nil
		},
	})
}
