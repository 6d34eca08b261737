package approval

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samsaffron/conductor/internal/tools"
)

// applyChange writes the proposed content: a uniquely-named temp file in the
// same directory, then a rename over the target.
func applyChange(c tools.ProposedChange) error {
	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(c.Path); err == nil {
		mode = info.Mode().Perm()
	}

	tf, err := os.CreateTemp(dir, "."+filepath.Base(c.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tf.Name()

	if _, err := tf.Write([]byte(c.Proposed)); err != nil {
		tf.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tf.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	// CreateTemp uses 0600
	if err := os.Chmod(tempPath, mode); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("set file permissions: %w", err)
	}
	if err := os.Rename(tempPath, c.Path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
