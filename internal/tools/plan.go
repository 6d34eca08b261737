package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samsaffron/conductor/internal/llm"
	"github.com/samsaffron/conductor/internal/loop"
)

// CreatePlanTool implements create_plan. The plan replaces any previous one
// in the session state.
type CreatePlanTool struct{}

// CreatePlanArgs are the arguments for create_plan.
type CreatePlanArgs struct {
	Tasks []string `json:"tasks"`
}

func (t *CreatePlanTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        CreatePlanToolName,
		Description: "Record the plan for the current request as an ordered list of tasks. Tasks get ids 1..n; update them with update_task as you go.",
		Schema: objectSchema(map[string]interface{}{
			"tasks": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Task descriptions in execution order",
			},
		}, "tasks"),
	}
}

func (t *CreatePlanTool) Preview(args json.RawMessage) string {
	var a CreatePlanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	if len(a.Tasks) == 1 {
		return "1 task"
	}
	return fmt.Sprintf("%d tasks", len(a.Tasks))
}

func (t *CreatePlanTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var a CreatePlanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	var descriptions []string
	for _, d := range a.Tasks {
		if d = strings.TrimSpace(d); d != "" {
			descriptions = append(descriptions, d)
		}
	}
	if len(descriptions) == 0 {
		return errorOutput(NewToolError(ErrInvalidParams, "tasks must contain at least one non-empty description")), nil
	}
	state := SessionFrom(ctx)
	if state == nil {
		return errorOutput(NewToolError(ErrNotConfigured, "no session state available")), nil
	}
	return jsonOutput(map[string]any{"tasks": state.SetPlan(descriptions)}), nil
}

// UpdateTaskTool implements update_task.
type UpdateTaskTool struct{}

// UpdateTaskArgs are the arguments for update_task. The id may arrive as a
// JSON string or number.
type UpdateTaskArgs struct {
	ID     string
	Status string
}

func (t *UpdateTaskTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        UpdateTaskToolName,
		Description: "Set the status of a plan task.",
		Schema: objectSchema(map[string]interface{}{
			"id": stringSchema("Task id from create_plan"),
			"status": map[string]interface{}{
				"type":        "string",
				"enum":        []string{string(loop.TaskPending), string(loop.TaskInProgress), string(loop.TaskCompleted)},
				"description": "New status",
			},
		}, "id", "status"),
	}
}

func (t *UpdateTaskTool) Preview(args json.RawMessage) string {
	var a UpdateTaskArgs
	if err := unmarshalTaskArgs(args, &a); err != nil {
		return ""
	}
	return fmt.Sprintf("#%s -> %s", a.ID, a.Status)
}

func (t *UpdateTaskTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var a UpdateTaskArgs
	if err := unmarshalTaskArgs(args, &a); err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	status, err := loop.ParseTaskStatus(a.Status)
	if err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	state := SessionFrom(ctx)
	if state == nil {
		return errorOutput(NewToolError(ErrNotConfigured, "no session state available")), nil
	}
	task, err := state.UpdateTask(a.ID, status)
	if err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	return jsonOutput(task), nil
}

// unmarshalTaskArgs accepts the id as either a JSON string or number.
func unmarshalTaskArgs(data json.RawMessage, a *UpdateTaskArgs) error {
	var raw struct {
		ID     any    `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.ID.(type) {
	case string:
		a.ID = strings.TrimPrefix(strings.TrimSpace(v), "#")
	case float64:
		a.ID = fmt.Sprintf("%d", int(v))
	default:
		return fmt.Errorf("id is required")
	}
	a.Status = raw.Status
	return nil
}

// TaskCompleteTool implements task_complete. A successful call ends the
// session as Completed.
type TaskCompleteTool struct{}

// TaskCompleteArgs are the arguments for task_complete.
type TaskCompleteArgs struct {
	Summary string `json:"summary"`
}

func (t *TaskCompleteTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        TaskCompleteToolName,
		Description: "Call when the request is fully done. Ends the session.",
		Schema: objectSchema(map[string]interface{}{
			"summary": stringSchema("Short summary of what was done"),
		}),
	}
}

func (t *TaskCompleteTool) Preview(args json.RawMessage) string {
	return ""
}

func (t *TaskCompleteTool) IsFinishingTool() bool { return true }

func (t *TaskCompleteTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var a TaskCompleteArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
		}
	}
	if state := SessionFrom(ctx); state != nil {
		state.CompleteOpenTasks()
		if a.Summary != "" {
			state.SetNote(a.Summary)
		}
	}
	return jsonOutput(map[string]any{"status": "completed", "summary": a.Summary}), nil
}
