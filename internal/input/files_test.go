package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestReadFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"test1.txt":       "content1",
		"test2.txt":       "content2",
		"pkg/a.go":        "package pkg\n",
		"pkg/inner/b.go":  "package inner\n",
		"lines.txt":       "one\ntwo\nthree\nfour",
		"pkg/inner/c.txt": "not go",
	})

	t.Run("single file", func(t *testing.T) {
		files, err := ReadFiles([]string{"test1.txt"}, root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 1 || files[0].Path != "test1.txt" || files[0].Content != "content1" {
			t.Errorf("files = %+v", files)
		}
	})

	t.Run("absolute path", func(t *testing.T) {
		files, err := ReadFiles([]string{filepath.Join(root, "test2.txt")}, root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 1 || files[0].Path != "test2.txt" {
			t.Errorf("files = %+v", files)
		}
	})

	t.Run("doublestar glob", func(t *testing.T) {
		files, err := ReadFiles([]string{"pkg/**/*.go"}, root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("expected 2 files, got %+v", files)
		}
		if files[0].Path != filepath.Join("pkg", "a.go") || files[1].Path != filepath.Join("pkg", "inner", "b.go") {
			t.Errorf("paths = %q, %q", files[0].Path, files[1].Path)
		}
	})

	t.Run("glob matching nothing is skipped", func(t *testing.T) {
		files, err := ReadFiles([]string{"*.rs"}, root)
		if err != nil || len(files) != 0 {
			t.Errorf("files = %+v, err = %v", files, err)
		}
	})

	t.Run("missing literal path", func(t *testing.T) {
		if _, err := ReadFiles([]string{"nope.txt"}, root); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("line range", func(t *testing.T) {
		files, err := ReadFiles([]string{"lines.txt:2-3"}, root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 1 || files[0].Path != "lines.txt:2-3" || files[0].Content != "two\nthree" {
			t.Errorf("files = %+v", files)
		}
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		files, err := ReadFiles([]string{"test1.txt", "*.txt"}, root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 3 {
			t.Errorf("expected test1, test2 and lines once each, got %+v", files)
		}
	})
}

func TestWithAttachments(t *testing.T) {
	if got := WithAttachments("fix it", nil); got != "fix it" {
		t.Errorf("no files: %q", got)
	}

	got := WithAttachments("fix it", []FileContent{
		{Path: "a.go", Content: "package a"},
		{Path: "b.go", Content: "package b\n"},
	})
	want := "<<<<< FILE: a.go >>>>>\npackage a\n<<<<< END FILE >>>>>\n" +
		"<<<<< FILE: b.go >>>>>\npackage b\n<<<<< END FILE >>>>>\n\nfix it"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestReadRequest(t *testing.T) {
	got, err := ReadRequest([]string{"fix", "the", "build"}, nil)
	if err != nil || got != "fix the build" {
		t.Errorf("args: %q %v", got, err)
	}

	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	f.WriteString("\n  add a README  \n")
	f.Seek(0, 0)
	if got, err := ReadRequest(nil, f); err != nil || got != "add a README" {
		t.Errorf("stdin: %q %v", got, err)
	}

	empty, err := os.Create(filepath.Join(t.TempDir(), "empty"))
	if err != nil {
		t.Fatal(err)
	}
	defer empty.Close()
	if _, err := ReadRequest(nil, empty); err == nil || !strings.Contains(err.Error(), "no request") {
		t.Errorf("expected error for empty request, got %v", err)
	}
}
