package agentloop

import (
	"fmt"
	"os"
	"path/filepath"
)

// InstructionsDir is where the instruction working copy lives, relative to
// the working directory.
const InstructionsDir = "prompts/instructions"

// InstructionStore owns the on-disk working copy of the instruction text.
// The loop re-reads it at the top of every iteration, so an
// update_instruction call in one iteration is visible to the very next one.
// No history of prior versions is kept; last write wins.
type InstructionStore struct {
	path     string
	fallback string
}

// NewInstructionStore creates a store for the working copy at path. fallback
// is the instruction text supplied at loop start, returned when the file is
// missing at read time.
func NewInstructionStore(path, fallback string) *InstructionStore {
	return &InstructionStore{path: path, fallback: fallback}
}

// Path returns the working copy location.
func (s *InstructionStore) Path() string { return s.path }

// Load returns the current instruction text. A missing or unreadable file
// falls back to the startup text rather than failing the iteration.
func (s *InstructionStore) Load() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.fallback
	}
	return string(data)
}

// Save overwrites the instruction working copy.
func (s *InstructionStore) Save(text string) error {
	if s.path == "" {
		return fmt.Errorf("no instruction file path configured")
	}
	return os.WriteFile(s.path, []byte(text), 0644)
}

// CopyInstruction copies the caller-supplied instruction file into the
// working directory's instructions dir and returns the working copy path and
// the instruction text.
func CopyInstruction(instructionFile, workdir string) (string, string, error) {
	data, err := os.ReadFile(instructionFile)
	if err != nil {
		return "", "", fmt.Errorf("read instruction file %s: %w", instructionFile, err)
	}

	dir := filepath.Join(workdir, InstructionsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("create instructions directory: %w", err)
	}

	target := filepath.Join(dir, filepath.Base(instructionFile))
	if err := os.WriteFile(target, data, 0644); err != nil {
		return "", "", fmt.Errorf("copy instruction to %s: %w", target, err)
	}
	return target, string(data), nil
}
