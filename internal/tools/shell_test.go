package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func newTestCommandTool(t *testing.T, opts Options) *ExecuteCommandTool {
	t.Helper()
	if opts.Limits == (OutputLimits{}) {
		opts.Limits = DefaultOutputLimits()
	}
	tool, err := NewExecuteCommandTool(opts)
	if err != nil {
		t.Fatalf("NewExecuteCommandTool: %v", err)
	}
	return tool
}

func mustMarshalCommandArgs(args ExecuteCommandArgs) json.RawMessage {
	data, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return data
}

func decodeJSONOutput(t *testing.T, content string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(content), v); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, content)
	}
}

func TestExecuteCommandTool_Preview(t *testing.T) {
	tool := newTestCommandTool(t, Options{})

	tests := []struct {
		name     string
		args     json.RawMessage
		expected string
	}{
		{
			name:     "short command",
			args:     mustMarshalCommandArgs(ExecuteCommandArgs{Command: "echo hello"}),
			expected: "echo hello",
		},
		{
			name:     "cmd spelling",
			args:     json.RawMessage(`{"cmd":"ls -la"}`),
			expected: "ls -la",
		},
		{
			name:     "long command is truncated",
			args:     mustMarshalCommandArgs(ExecuteCommandArgs{Command: "echo this is a very long command that exceeds fifty characters limit here"}),
			expected: "echo this is a very long command that exceeds f...",
		},
		{
			name:     "invalid JSON",
			args:     json.RawMessage(`{invalid}`),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tool.Preview(tt.args); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestExecuteCommandTool_Execute(t *testing.T) {
	tool := newTestCommandTool(t, Options{WorkDir: t.TempDir()})

	tests := []struct {
		name       string
		args       json.RawMessage
		wantStdout string
		wantStderr string
		wantExit   int
	}{
		{
			name:       "successful command",
			args:       mustMarshalCommandArgs(ExecuteCommandArgs{Command: "echo hello"}),
			wantStdout: "hello",
		},
		{
			name:       "command with stderr",
			args:       mustMarshalCommandArgs(ExecuteCommandArgs{Command: "echo err >&2"}),
			wantStderr: "err",
		},
		{
			name:     "non-zero exit code",
			args:     mustMarshalCommandArgs(ExecuteCommandArgs{Command: "exit 42"}),
			wantExit: 42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := tool.Execute(context.Background(), tt.args)
			if err != nil {
				t.Fatalf("Execute returned error: %v", err)
			}
			if output.IsError {
				t.Fatalf("unexpected error output: %s", output.Content)
			}
			var result ShellResult
			decodeJSONOutput(t, output.Content, &result)
			if !strings.Contains(result.Stdout, tt.wantStdout) {
				t.Errorf("stdout = %q, want substring %q", result.Stdout, tt.wantStdout)
			}
			if !strings.Contains(result.Stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want substring %q", result.Stderr, tt.wantStderr)
			}
			if result.ExitCode != tt.wantExit {
				t.Errorf("exitCode = %d, want %d", result.ExitCode, tt.wantExit)
			}
		})
	}
}

func TestExecuteCommandTool_InvalidArgs(t *testing.T) {
	tool := newTestCommandTool(t, Options{})

	for name, args := range map[string]json.RawMessage{
		"missing command": mustMarshalCommandArgs(ExecuteCommandArgs{}),
		"invalid JSON":    json.RawMessage(`{invalid}`),
	} {
		t.Run(name, func(t *testing.T) {
			output, err := tool.Execute(context.Background(), args)
			if err != nil {
				t.Fatalf("Execute returned error: %v", err)
			}
			if !output.IsError || !strings.Contains(output.Content, "INVALID_PARAMS") {
				t.Errorf("expected INVALID_PARAMS error, got: %s", output.Content)
			}
		})
	}
}

func TestExecuteCommandTool_WorkingDir(t *testing.T) {
	dir := t.TempDir()
	tool := newTestCommandTool(t, Options{WorkDir: dir})

	output, err := tool.Execute(context.Background(), mustMarshalCommandArgs(ExecuteCommandArgs{Command: "pwd"}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	var result ShellResult
	decodeJSONOutput(t, output.Content, &result)
	// macOS temp dirs live behind a /private symlink
	if !strings.HasSuffix(strings.TrimSpace(result.Stdout), strings.TrimPrefix(dir, "/private")) {
		t.Errorf("expected working dir %q, got: %q", dir, result.Stdout)
	}
}

func TestExecuteCommandTool_Timeout(t *testing.T) {
	tool := newTestCommandTool(t, Options{ShellTimeout: 100 * time.Millisecond})

	output, err := tool.Execute(context.Background(), mustMarshalCommandArgs(ExecuteCommandArgs{Command: "sleep 5"}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	var result ShellResult
	decodeJSONOutput(t, output.Content, &result)
	if !result.TimedOut {
		t.Errorf("expected timedOut, got %+v", result)
	}
}

func TestExecuteCommandTool_DeniedCommand(t *testing.T) {
	tool := newTestCommandTool(t, Options{DeniedCommands: []string{"rm -rf /*"}})

	output, err := tool.Execute(context.Background(), mustMarshalCommandArgs(ExecuteCommandArgs{Command: "rm -rf /home"}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !output.IsError || !strings.Contains(output.Content, "PERMISSION_DENIED") {
		t.Errorf("expected PERMISSION_DENIED, got: %s", output.Content)
	}
}

func TestExecuteCommandTool_ElevationIsPending(t *testing.T) {
	dir := t.TempDir()
	tool := newTestCommandTool(t, Options{WorkDir: dir, ElevationCommands: []string{"sudo *"}})

	output, err := tool.Execute(context.Background(), mustMarshalCommandArgs(ExecuteCommandArgs{Command: "sudo touch marker"}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	var result struct {
		Status         string `json:"status"`
		NeedsElevation bool   `json:"needsElevation"`
	}
	decodeJSONOutput(t, output.Content, &result)
	if result.Status != "pending" || !result.NeedsElevation {
		t.Errorf("expected pending with needsElevation, got: %s", output.Content)
	}
}

func TestNewExecuteCommandTool_InvalidGlob(t *testing.T) {
	if _, err := NewExecuteCommandTool(Options{DeniedCommands: []string{"[unclosed"}}); err == nil {
		t.Fatal("expected error for invalid glob")
	}
}

func TestRunTestsTool(t *testing.T) {
	tool := NewRunTestsTool(Options{WorkDir: t.TempDir(), TestCommand: "echo ran", Limits: DefaultOutputLimits()})

	output, err := tool.Execute(context.Background(), json.RawMessage(`{"args":"./pkg"}`))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	var result struct {
		Command string `json:"command"`
		Passed  bool   `json:"passed"`
		Stdout  string `json:"stdout"`
	}
	decodeJSONOutput(t, output.Content, &result)
	if result.Command != "echo ran ./pkg" {
		t.Errorf("command = %q", result.Command)
	}
	if !result.Passed || !strings.Contains(result.Stdout, "ran ./pkg") {
		t.Errorf("unexpected result: %s", output.Content)
	}
}

func TestRunTestsTool_NotConfigured(t *testing.T) {
	tool := NewRunTestsTool(Options{})
	output, _ := tool.Execute(context.Background(), nil)
	if !output.IsError || !strings.Contains(output.Content, "NOT_CONFIGURED") {
		t.Errorf("expected NOT_CONFIGURED, got: %s", output.Content)
	}
}
