package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/samsaffron/conductor/internal/llm"
)

const (
	defaultShellTimeout = 2 * time.Minute
	maxShellTimeout     = 10 * time.Minute
)

// ShellResult contains the result of a shell command.
type ShellResult struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exitCode"`
	TimedOut  bool   `json:"timedOut,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ExecuteCommandTool implements execute_command. Commands matching a denied
// glob are refused; commands matching an elevation glob are not run and
// come back as pending with needsElevation set.
type ExecuteCommandTool struct {
	workDir   string
	timeout   time.Duration
	limits    OutputLimits
	denied    *commandMatcher
	elevation *commandMatcher
}

// NewExecuteCommandTool compiles the command globs in opts.
func NewExecuteCommandTool(opts Options) (*ExecuteCommandTool, error) {
	denied, err := compileCommandGlobs(opts.DeniedCommands)
	if err != nil {
		return nil, err
	}
	elevation, err := compileCommandGlobs(opts.ElevationCommands)
	if err != nil {
		return nil, err
	}
	return &ExecuteCommandTool{
		workDir:   opts.WorkDir,
		timeout:   opts.ShellTimeout,
		limits:    opts.Limits,
		denied:    denied,
		elevation: elevation,
	}, nil
}

// ExecuteCommandArgs are the arguments for execute_command.
type ExecuteCommandArgs struct {
	Command        string `json:"command"`
	Cmd            string `json:"cmd,omitempty"`
	WorkingDir     string `json:"working_dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (a ExecuteCommandArgs) command() string {
	if a.Command != "" {
		return a.Command
	}
	return a.Cmd
}

func (t *ExecuteCommandTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ExecuteCommandToolName,
		Description: "Execute a shell command in the workspace. Returns stdout, stderr, and exit code. Waits until pending file changes have been reviewed.",
		Schema: objectSchema(map[string]interface{}{
			"command":         stringSchema("Shell command to execute"),
			"working_dir":     stringSchema("Working directory relative to the workspace (default: workspace root)"),
			"timeout_seconds": integerSchema("Command timeout in seconds"),
		}, "command"),
	}
}

func (t *ExecuteCommandTool) Preview(args json.RawMessage) string {
	var a ExecuteCommandArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return truncateCommand(a.command())
}

// WaitsForApprovals marks execute_command as dependent on pending changes.
func (t *ExecuteCommandTool) WaitsForApprovals() bool { return true }

func (t *ExecuteCommandTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var a ExecuteCommandArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	command := strings.TrimSpace(a.command())
	if command == "" {
		return errorOutput(NewToolError(ErrInvalidParams, "command is required")), nil
	}

	if pattern, ok := t.denied.match(command); ok {
		return errorOutput(NewToolErrorf(ErrPermissionDenied, "command not allowed (matches %q): %s", pattern, truncateCommand(command))), nil
	}
	if pattern, ok := t.elevation.match(command); ok {
		return jsonOutput(map[string]any{
			"status":         "pending",
			"needsElevation": true,
			"command":        command,
			"note":           "command requires elevated privileges (matches " + pattern + "); ask the operator to run it",
		}), nil
	}

	timeout := t.timeout
	if a.TimeoutSeconds > 0 {
		timeout = time.Duration(a.TimeoutSeconds) * time.Second
	}
	if timeout > maxShellTimeout {
		timeout = maxShellTimeout
	}

	dir := t.workDir
	if a.WorkingDir != "" {
		resolved, err := resolvePath(t.workDir, a.WorkingDir)
		if err != nil {
			return errorOutput(NewToolErrorf(ErrInvalidParams, "cannot resolve working_dir: %v", err)), nil
		}
		dir = resolved
	}

	result, err := runShell(ctx, dir, command, timeout, t.limits)
	if err != nil {
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "command error: %v", err)), nil
	}
	return jsonOutput(result), nil
}

// RunTestsTool implements run_tests using the configured test command.
type RunTestsTool struct {
	workDir string
	command string
	timeout time.Duration
	limits  OutputLimits
}

func NewRunTestsTool(opts Options) *RunTestsTool {
	return &RunTestsTool{
		workDir: opts.WorkDir,
		command: opts.TestCommand,
		timeout: opts.ShellTimeout,
		limits:  opts.Limits,
	}
}

// RunTestsArgs are the arguments for run_tests.
type RunTestsArgs struct {
	Args string `json:"args,omitempty"`
}

func (t *RunTestsTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        RunTestsToolName,
		Description: "Run the project's test suite (" + t.command + "). Waits until pending file changes have been reviewed. Optional args are appended to the command.",
		Schema: objectSchema(map[string]interface{}{
			"args": stringSchema("Extra arguments appended to the test command, e.g. a package or -run filter"),
		}),
	}
}

func (t *RunTestsTool) Preview(args json.RawMessage) string {
	var a RunTestsArgs
	_ = json.Unmarshal(args, &a)
	return truncateCommand(strings.TrimSpace(t.command + " " + a.Args))
}

// WaitsForApprovals marks run_tests as dependent on pending changes.
func (t *RunTestsTool) WaitsForApprovals() bool { return true }

func (t *RunTestsTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var a RunTestsArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
		}
	}
	if t.command == "" {
		return errorOutput(NewToolError(ErrNotConfigured, "no test command configured")), nil
	}
	command := strings.TrimSpace(t.command + " " + a.Args)

	result, err := runShell(ctx, t.workDir, command, t.timeout, t.limits)
	if err != nil {
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "test command error: %v", err)), nil
	}
	return jsonOutput(map[string]any{
		"command":  command,
		"passed":   result.ExitCode == 0 && !result.TimedOut,
		"stdout":   result.Stdout,
		"stderr":   result.Stderr,
		"exitCode": result.ExitCode,
		"timedOut": result.TimedOut,
	}), nil
}

// runShell runs command with the user's shell. A non-zero exit is a result,
// not an error; only failures to start the process are returned as errors.
func runShell(ctx context.Context, dir, command string, timeout time.Duration, limits OutputLimits) (ShellResult, error) {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ShellResult{}, err
		}
		dir = wd
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, detectShell(), "-c", command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := ShellResult{
		Stdout: truncateBytes(stdout.String(), limits.MaxBytes),
		Stderr: truncateBytes(stderr.String(), limits.MaxBytes),
	}
	result.Truncated = len(result.Stdout) != stdout.Len() || len(result.Stderr) != stderr.Len()

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}

// detectShell returns the user's shell.
func detectShell() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		return "sh"
	}
	return shell
}

// truncateCommand truncates a command for previews and error messages.
func truncateCommand(cmd string) string {
	if len(cmd) > 50 {
		return cmd[:47] + "..."
	}
	return cmd
}
