package loop

import (
	"strings"
	"testing"
)

func TestSnapshotSeedPreservesCounts(t *testing.T) {
	state := NewSessionState("build a todo app")
	state.SetPlan([]string{"scaffold", "add storage", "write tests"})
	if _, err := state.UpdateTask("1", TaskCompleted); err != nil {
		t.Fatal(err)
	}
	if _, err := state.UpdateTask("2", TaskCompleted); err != nil {
		t.Fatal(err)
	}
	state.AddFile("a.txt")
	state.AddFile("b.txt")
	state.SetPartialWrite("c.txt", "partial")

	snap := state.Snapshot()
	seed, err := snap.Seed()
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if !strings.Contains(seed, "2 of 3 tasks completed, 2 files written") {
		t.Errorf("seed summary missing counts:\n%s", seed)
	}

	got, err := ParseSeed(seed)
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if len(got.Tasks) != 3 {
		t.Errorf("task count = %d, want 3", len(got.Tasks))
	}
	if got.CompletedTasks() != 2 {
		t.Errorf("completed count = %d, want 2", got.CompletedTasks())
	}
	if len(got.Files) != 2 {
		t.Errorf("file count = %d, want 2", len(got.Files))
	}
	if got.LastWrite == nil || got.LastWrite.Path != "c.txt" || got.LastWrite.Content != "partial" {
		t.Errorf("last write = %+v", got.LastWrite)
	}
	if got.Request != "build a todo app" {
		t.Errorf("request = %q", got.Request)
	}
}

func TestSeedTruncatesLongPartialWrite(t *testing.T) {
	snap := Snapshot{
		Request:   "x",
		LastWrite: &PartialWrite{Path: "big.go", Content: strings.Repeat("a", maxSeedContent+100)},
	}
	seed, err := snap.Seed()
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.LastWrite.Content) != maxSeedContent {
		t.Errorf("carried content length = %d, want %d", len(got.LastWrite.Content), maxSeedContent)
	}
	if len(snap.LastWrite.Content) != maxSeedContent+100 {
		t.Error("Seed modified the snapshot it was called on")
	}
}

func TestSeedTruncatesOnRuneBoundary(t *testing.T) {
	content := strings.Repeat("a", maxSeedContent-1) + strings.Repeat("é", 10)
	snap := Snapshot{Request: "x", LastWrite: &PartialWrite{Path: "accents.txt", Content: content}}
	seed, err := snap.Seed()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(seed, "!!binary") {
		t.Fatalf("partial write encoded as binary:\n%s", seed)
	}
	got, err := ParseSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if want := strings.Repeat("a", maxSeedContent-1); got.LastWrite.Content != want {
		t.Errorf("carried content ends with %q", got.LastWrite.Content[len(got.LastWrite.Content)-4:])
	}
}

func TestSeedSurvivesFencesInContent(t *testing.T) {
	snap := Snapshot{
		Request:   "docs",
		LastWrite: &PartialWrite{Path: "README.md", Content: "# Title\n```\ncode\n```\n"},
	}
	seed, err := snap.Seed()
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseSeed(seed)
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if got.LastWrite.Content != snap.LastWrite.Content {
		t.Errorf("content = %q, want %q", got.LastWrite.Content, snap.LastWrite.Content)
	}
}

func TestParseSeedWithoutBlock(t *testing.T) {
	if _, err := ParseSeed("just some text"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSessionStateFromSnapshot(t *testing.T) {
	snap := Snapshot{
		Request: "r",
		Tasks:   []Task{{ID: "1", Description: "a", Status: TaskCompleted}},
		Files:   []string{"x.go", "x.go", "y.go"},
		Note:    "halfway",
	}
	state := NewSessionStateFromSnapshot(snap)
	if files := state.Files(); len(files) != 2 {
		t.Errorf("files = %v, want deduplicated", files)
	}
	if tasks := state.Tasks(); len(tasks) != 1 || tasks[0].Status != TaskCompleted {
		t.Errorf("tasks = %+v", tasks)
	}
	if state.Snapshot().Note != "halfway" {
		t.Error("note not restored")
	}
}

func TestAddFileClearsMatchingPartialWrite(t *testing.T) {
	state := NewSessionState("r")
	state.SetPartialWrite("a.go", "pack")
	state.AddFile("b.go")
	if state.PartialWrite() == nil {
		t.Fatal("unrelated file cleared the partial write")
	}
	state.AddFile("a.go")
	if state.PartialWrite() != nil {
		t.Fatal("completed write did not clear the partial write")
	}
}

func TestParseTaskStatus(t *testing.T) {
	for in, want := range map[string]TaskStatus{
		"done":        TaskCompleted,
		"In_Progress": TaskInProgress,
		"pending":     TaskPending,
	} {
		got, err := ParseTaskStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseTaskStatus(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseTaskStatus("blocked"); err == nil {
		t.Error("expected error for unknown status")
	}
}
