package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"github.com/samsaffron/conductor/internal/config"
)

// OutputLimits defines limits for tool output.
type OutputLimits struct {
	MaxLines   int   // Max lines for read_file (default 2000)
	MaxBytes   int64 // Max bytes per tool output (default 50KB)
	MaxResults int   // Max results for list/search (default 100)
}

// DefaultOutputLimits returns the default output limits.
func DefaultOutputLimits() OutputLimits {
	return OutputLimits{
		MaxLines:   2000,
		MaxBytes:   50 * 1024, // 50KB
		MaxResults: 100,
	}
}

// Options configures the built-in tools.
type Options struct {
	WorkDir           string
	Limits            OutputLimits
	ShellTimeout      time.Duration
	TestCommand       string
	ElevationCommands []string // globs answered with needsElevation instead of running
	DeniedCommands    []string // globs refused outright
	Searcher          Searcher
	SearchMaxResults  int
}

// OptionsFromConfig maps the tools section of the app config.
func OptionsFromConfig(cfg config.ToolsConfig) Options {
	limits := DefaultOutputLimits()
	if cfg.MaxOutputBytes > 0 {
		limits.MaxBytes = int64(cfg.MaxOutputBytes)
	}
	if cfg.MaxOutputLines > 0 {
		limits.MaxLines = cfg.MaxOutputLines
	}
	opts := Options{
		WorkDir:           cfg.WorkDir,
		Limits:            limits,
		ShellTimeout:      cfg.ShellTimeout,
		TestCommand:       cfg.TestCommand,
		ElevationCommands: cfg.ElevationCommands,
		DeniedCommands:    cfg.DeniedCommands,
		SearchMaxResults:  cfg.SearchMaxResults,
	}
	if opts.WorkDir == "" {
		opts.WorkDir = DefaultWorkDir()
	}
	opts.Searcher = NewDuckDuckGoSearcher(cfg.SearchEndpoint, nil)
	return opts
}

// commandMatcher holds compiled shell command globs.
type commandMatcher struct {
	patterns []string
	globs    []glob.Glob
}

func compileCommandGlobs(patterns []string) (*commandMatcher, error) {
	m := &commandMatcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid command pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, p)
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// match returns the first pattern matching cmd.
func (m *commandMatcher) match(cmd string) (string, bool) {
	if m == nil {
		return "", false
	}
	for i, g := range m.globs {
		if g.Match(cmd) {
			return m.patterns[i], true
		}
	}
	return "", false
}

// resolvePath makes p absolute relative to root (or the working directory).
func resolvePath(root, p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	return filepath.Join(root, p), nil
}
