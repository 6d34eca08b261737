package loop

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// TaskStatus is the progress of one plan entry.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// ParseTaskStatus accepts the canonical names plus a few common spellings.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "todo":
		return TaskPending, nil
	case "in_progress", "in-progress", "active", "doing":
		return TaskInProgress, nil
	case "completed", "complete", "done":
		return TaskCompleted, nil
	}
	return "", fmt.Errorf("unknown task status %q (want pending, in_progress or completed)", s)
}

type Task struct {
	ID          string     `yaml:"id" json:"id"`
	Description string     `yaml:"description" json:"description"`
	Status      TaskStatus `yaml:"status" json:"status"`
}

// PartialWrite is the last file write seen in flight: the target path and
// whatever prefix of the content had arrived.
type PartialWrite struct {
	Path    string `yaml:"path" json:"path"`
	Content string `yaml:"content" json:"content"`
}

// SessionState is the progress a session accumulates: the original request,
// the task plan, files produced and the last in-flight write. Tools write
// it during dispatch; the continuation manager reads it to build a snapshot.
type SessionState struct {
	mu        sync.Mutex
	request   string
	tasks     []Task
	files     []string
	seen      map[string]bool
	lastWrite *PartialWrite
	note      string
}

func NewSessionState(request string) *SessionState {
	return &SessionState{request: request, seen: map[string]bool{}}
}

// NewSessionStateFromSnapshot restores the progress carried by a snapshot.
func NewSessionStateFromSnapshot(snap Snapshot) *SessionState {
	s := NewSessionState(snap.Request)
	s.tasks = append(s.tasks, snap.Tasks...)
	for _, f := range snap.Files {
		s.AddFile(f)
	}
	if snap.LastWrite != nil {
		pw := *snap.LastWrite
		s.lastWrite = &pw
	}
	s.note = snap.Note
	return s
}

func (s *SessionState) Request() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// SetPlan replaces the task list. Ids are assigned 1..n.
func (s *SessionState) SetPlan(descriptions []string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = s.tasks[:0]
	for i, d := range descriptions {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		s.tasks = append(s.tasks, Task{ID: strconv.Itoa(i + 1), Description: d, Status: TaskPending})
	}
	return append([]Task(nil), s.tasks...)
}

// UpdateTask sets the status of one task.
func (s *SessionState) UpdateTask(id string, status TaskStatus) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].Status = status
			return s.tasks[i], nil
		}
	}
	return Task{}, fmt.Errorf("no task with id %q", id)
}

// CompleteOpenTasks marks every unfinished task completed.
func (s *SessionState) CompleteOpenTasks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		s.tasks[i].Status = TaskCompleted
	}
}

func (s *SessionState) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.tasks...)
}

// AddFile records a produced file path once. A completed write to the same
// path clears the matching partial write.
func (s *SessionState) AddFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastWrite != nil && s.lastWrite.Path == path {
		s.lastWrite = nil
	}
	if s.seen[path] {
		return
	}
	s.seen[path] = true
	s.files = append(s.files, path)
}

func (s *SessionState) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// SetPartialWrite records the last write that was cut off mid-stream.
func (s *SessionState) SetPartialWrite(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWrite = &PartialWrite{Path: path, Content: content}
}

func (s *SessionState) PartialWrite() *PartialWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastWrite == nil {
		return nil
	}
	pw := *s.lastWrite
	return &pw
}

func (s *SessionState) SetNote(note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note = note
}

// Snapshot copies the current progress.
func (s *SessionState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Request: s.request,
		Tasks:   append([]Task(nil), s.tasks...),
		Files:   append([]string(nil), s.files...),
		Note:    s.note,
	}
	if s.lastWrite != nil {
		pw := *s.lastWrite
		snap.LastWrite = &pw
	}
	return snap
}
