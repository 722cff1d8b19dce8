package agentloop

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"syscall"
	"time"
)

// DefaultCommandTimeout is the hard timeout for run_command. The subprocess
// is killed when it elapses.
const DefaultCommandTimeout = 60 * time.Second

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
}

// ExecutionEnvironment abstracts where tool operations run. All paths are
// resolved against the working directory and confined to it; run_command is
// the documented exception (shell commands can reference absolute paths).
type ExecutionEnvironment interface {
	// File operations.
	ReadFile(path string) (string, error)
	WriteFile(path string, content string) error
	ListFiles(path string) ([]string, error)

	// Command execution. The timeout is enforced by the environment; the
	// subprocess is killed when it elapses.
	RunCommand(ctx context.Context, command string) (*ExecResult, error)

	// Operator interaction: emit the question and block for a typed answer.
	AskOperator(question string) (string, error)

	// Metadata.
	WorkingDirectory() string
	InstructionPath() string
}

// LocalEnvironment runs tools on the local machine, sandboxed to workingDir.
type LocalEnvironment struct {
	workingDir      string
	instructionPath string
	commandTimeout  time.Duration
	stdin           io.Reader
	stdout          io.Writer
}

// LocalOption configures a LocalEnvironment.
type LocalOption func(*LocalEnvironment)

// WithCommandTimeout overrides the run_command timeout.
func WithCommandTimeout(d time.Duration) LocalOption {
	return func(e *LocalEnvironment) { e.commandTimeout = d }
}

// WithOperatorIO overrides the operator channel (stdin/stdout by default).
func WithOperatorIO(in io.Reader, out io.Writer) LocalOption {
	return func(e *LocalEnvironment) {
		e.stdin = in
		e.stdout = out
	}
}

// NewLocalEnvironment creates a local execution environment rooted at
// workingDir. instructionPath may be empty when no instruction working copy
// exists for the run.
func NewLocalEnvironment(workingDir, instructionPath string, opts ...LocalOption) *LocalEnvironment {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	abs, err := filepath.Abs(workingDir)
	if err == nil {
		workingDir = abs
	}
	e := &LocalEnvironment{
		workingDir:      workingDir,
		instructionPath: instructionPath,
		commandTimeout:  DefaultCommandTimeout,
		stdin:           os.Stdin,
		stdout:          os.Stdout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *LocalEnvironment) WorkingDirectory() string { return e.workingDir }

func (e *LocalEnvironment) InstructionPath() string { return e.instructionPath }

// ReadFile returns the file's UTF-8 content verbatim.
func (e *LocalEnvironment) ReadFile(path string) (string, error) {
	resolved, err := ResolvePath(path, e.workingDir)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes content, creating parent directories as needed.
func (e *LocalEnvironment) WriteFile(path string, content string) error {
	resolved, err := ResolvePath(path, e.workingDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	return os.WriteFile(resolved, []byte(content), 0644)
}

// ListFiles recursively enumerates files under path, returning paths relative
// to the resolved path. A nonexistent path yields an empty list, not an
// error.
func (e *LocalEnvironment) ListFiles(path string) ([]string, error) {
	resolved, err := ResolvePath(path, e.workingDir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(resolved); err != nil {
		return []string{}, nil
	}

	var files []string
	err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(resolved, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// pipeWaitDelay bounds how long Wait blocks on the output pipes once the
// shell has exited or the deadline has fired.
const pipeWaitDelay = time.Second

// RunCommand executes command through /bin/sh with cwd set to the working
// directory. Stdout and stderr are captured separately. The environment's
// timeout is a hard bound: the whole process group is killed the moment it
// expires, so a backgrounded child cannot keep the call hanging on the
// output pipes.
func (e *LocalEnvironment) RunCommand(ctx context.Context, command string) (*ExecResult, error) {
	timeout := e.commandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = e.workingDir
	// Own process group so the kill below reaches every descendant.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = pipeWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			return result, fmt.Errorf("command timed out after %s", timeout)
		}
		// The shell exited cleanly but a surviving child still held the
		// pipes when WaitDelay expired. The captured output stands.
		if errors.Is(err, exec.ErrWaitDelay) {
			return result, nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("run command: %w", err)
	}

	return result, nil
}

// AskOperator prints the question and blocks for one line of input.
func (e *LocalEnvironment) AskOperator(question string) (string, error) {
	fmt.Fprintf(e.stdout, "\n[AGENT ASKS]: %s\n", question)
	fmt.Fprint(e.stdout, "Your answer: ")
	reader := bufio.NewReader(e.stdin)
	answer, err := reader.ReadString('\n')
	if err != nil && answer == "" {
		return "", fmt.Errorf("read operator answer: %w", err)
	}
	return trimNewline(answer), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
