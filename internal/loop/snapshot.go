package loop

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// maxSeedContent caps how much of a partial write is carried into a seed.
const maxSeedContent = 4000

const (
	seedOpen  = "```yaml conductor-snapshot"
	seedClose = "```"
)

// Snapshot is the compact progress summary that seeds a continuation session.
type Snapshot struct {
	Request   string        `yaml:"request"`
	Tasks     []Task        `yaml:"tasks,omitempty"`
	Files     []string      `yaml:"files,omitempty"`
	LastWrite *PartialWrite `yaml:"last_write,omitempty"`
	Note      string        `yaml:"note,omitempty"`
}

// CompletedTasks counts tasks in the completed state.
func (s Snapshot) CompletedTasks() int {
	n := 0
	for _, t := range s.Tasks {
		if t.Status == TaskCompleted {
			n++
		}
	}
	return n
}

// Seed renders the snapshot as the opening user message of a fresh session:
// a short instruction followed by a machine-readable YAML block.
func (s Snapshot) Seed() (string, error) {
	carried := s
	if carried.LastWrite != nil && len(carried.LastWrite.Content) > maxSeedContent {
		pw := *carried.LastWrite
		pw.Content = cutAtRune(pw.Content, maxSeedContent)
		carried.LastWrite = &pw
	}
	data, err := yaml.Marshal(carried)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	var b strings.Builder
	b.WriteString("The previous session stopped before finishing (it ran out of context or time). ")
	b.WriteString("Continue the original request from where it left off. Do not redo completed tasks ")
	b.WriteString("or rewrite files that already exist unless they need changes.\n\n")
	fmt.Fprintf(&b, "Progress: %d of %d tasks completed, %d files written.\n", s.CompletedTasks(), len(s.Tasks), len(s.Files))
	if carried.LastWrite != nil {
		fmt.Fprintf(&b, "The write to %s was interrupted; rewrite it in full.\n", carried.LastWrite.Path)
	}
	b.WriteString("\n")
	b.WriteString(seedOpen)
	b.WriteString("\n")
	b.Write(data)
	b.WriteString(seedClose)
	b.WriteString("\n")
	return b.String(), nil
}

// cutAtRune returns at most n bytes of s without splitting a UTF-8 sequence.
// A split rune would make yaml encode the content as !!binary.
func cutAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ParseSeed extracts the snapshot embedded by Seed.
func ParseSeed(seed string) (Snapshot, error) {
	start := strings.Index(seed, seedOpen)
	if start < 0 {
		return Snapshot{}, fmt.Errorf("no snapshot block in seed")
	}
	body := seed[start+len(seedOpen):]
	end := strings.LastIndex(body, "\n"+seedClose)
	if end < 0 {
		return Snapshot{}, fmt.Errorf("unterminated snapshot block")
	}
	var snap Snapshot
	if err := yaml.Unmarshal([]byte(body[:end]), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
