package tools

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitRepoInfo contains information about a git repository.
type GitRepoInfo struct {
	IsRepo bool   // Whether the path is inside a git repository
	Root   string // Absolute path to the repository root
}

// DetectGitRepo detects if the given directory is inside a git repository.
// Returns GitRepoInfo with IsRepo=false if not in a repo or if git is unavailable.
func DetectGitRepo(dir string) GitRepoInfo {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return GitRepoInfo{}
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = absDir
	output, err := cmd.Output()
	if err != nil {
		// Not in a git repo or git not available
		return GitRepoInfo{}
	}

	root := strings.TrimSpace(string(output))
	if root == "" {
		return GitRepoInfo{}
	}
	return GitRepoInfo{IsRepo: true, Root: root}
}

// DefaultWorkDir is the root tools resolve relative paths against when none
// is configured: the enclosing git repository, else the current directory.
func DefaultWorkDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	if info := DetectGitRepo(wd); info.IsRepo {
		return info.Root
	}
	return wd
}

// RelativeToWorkDir returns path relative to root, or path unchanged when it
// lies outside root.
func RelativeToWorkDir(path, root string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
