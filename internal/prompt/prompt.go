package prompt

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// SystemPrompt returns the system prompt for an agent session working in
// workDir with the given tools. instructions is optional user context.
func SystemPrompt(workDir string, toolNames []string, instructions string) string {
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	base := fmt.Sprintf(`You are a software engineering agent. You complete the user's request by calling tools, one step at a time, until the work is done.

Context:
- Operating System: %s
- Architecture: %s
- Working Directory: %s`, runtime.GOOS, runtime.GOARCH, workDir)

	if instructions != "" {
		base += fmt.Sprintf(`
- User Context: %s`, instructions)
	}

	if len(toolNames) > 0 {
		base += "\n- Tools: " + strings.Join(toolNames, ", ")
	}

	base += `

Rules:
1. Start non-trivial work with create_plan, then keep it current with update_task
2. Read files before changing them; write_file replaces the whole file
3. File writes wait for operator approval; a rejected write is final, do not retry it unchanged
4. Run the tests after changing code
5. Keep text between tool calls short
6. Call task_complete with a summary once the request is satisfied`

	return base
}

// UserPrompt formats the operator's request.
func UserPrompt(request string) string {
	return strings.TrimSpace(request)
}
