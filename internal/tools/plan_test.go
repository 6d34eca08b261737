package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/samsaffron/conductor/internal/loop"
)

func TestPlanTools(t *testing.T) {
	state := loop.NewSessionState("build it")
	ctx := WithSession(context.Background(), state)

	create := &CreatePlanTool{}
	output, err := create.Execute(ctx, json.RawMessage(`{"tasks":["write parser","", "add tests"]}`))
	if err != nil || output.IsError {
		t.Fatalf("create_plan failed: %v %s", err, output.Content)
	}
	tasks := state.Tasks()
	if len(tasks) != 2 || tasks[0].ID != "1" || tasks[1].Description != "add tests" {
		t.Fatalf("unexpected plan %+v", tasks)
	}

	update := &UpdateTaskTool{}
	for _, args := range []string{`{"id":1,"status":"done"}`, `{"id":"#2","status":"in_progress"}`} {
		output, err = update.Execute(ctx, json.RawMessage(args))
		if err != nil || output.IsError {
			t.Fatalf("update_task %s failed: %v %s", args, err, output.Content)
		}
	}
	tasks = state.Tasks()
	if tasks[0].Status != loop.TaskCompleted || tasks[1].Status != loop.TaskInProgress {
		t.Errorf("unexpected statuses %+v", tasks)
	}
}

func TestUpdateTaskTool_Errors(t *testing.T) {
	state := loop.NewSessionState("x")
	state.SetPlan([]string{"only"})
	ctx := WithSession(context.Background(), state)
	tool := &UpdateTaskTool{}

	tests := []struct {
		name string
		ctx  context.Context
		args string
		want string
	}{
		{name: "unknown id", ctx: ctx, args: `{"id":"9","status":"done"}`, want: "INVALID_PARAMS"},
		{name: "bad status", ctx: ctx, args: `{"id":"1","status":"maybe"}`, want: "INVALID_PARAMS"},
		{name: "missing id", ctx: ctx, args: `{"status":"done"}`, want: "INVALID_PARAMS"},
		{name: "no session", ctx: context.Background(), args: `{"id":"1","status":"done"}`, want: "NOT_CONFIGURED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, _ := tool.Execute(tt.ctx, json.RawMessage(tt.args))
			if !output.IsError || !strings.Contains(output.Content, tt.want) {
				t.Errorf("expected %s, got %s", tt.want, output.Content)
			}
		})
	}
}

func TestCreatePlanTool_RejectsEmptyPlan(t *testing.T) {
	ctx := WithSession(context.Background(), loop.NewSessionState("x"))
	output, _ := (&CreatePlanTool{}).Execute(ctx, json.RawMessage(`{"tasks":["  "]}`))
	if !output.IsError {
		t.Errorf("expected error, got %s", output.Content)
	}
}
