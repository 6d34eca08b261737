package cmd

import (
	"strings"
	"testing"

	"github.com/samsaffron/conductor/internal/config"
	"github.com/samsaffron/conductor/internal/engine"
)

func TestEngineOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Provider:  "work",
		Providers: map[string]config.ProviderConfig{"work": {Model: "deepseek-chat"}},
		Loop: config.LoopConfig{
			MaxIterations:    30,
			MaxContinuations: 10,
			MaxOutputTokens:  8192,
			Instructions:     "keep diffs small",
		},
	}
	opts := engineOptions(cfg, []string{"read_file"}, "/repo", nil)
	if opts.Model != "deepseek-chat" || opts.MaxIterations != 30 || opts.MaxContinuations != engine.DefaultMaxContinuations {
		t.Errorf("opts = %+v", opts)
	}
	if !strings.Contains(opts.System, "keep diffs small") || !strings.Contains(opts.System, "/repo") {
		t.Errorf("system prompt = %q", opts.System)
	}
}

func TestEngineOptionsContinuationOff(t *testing.T) {
	cfg := &config.Config{Loop: config.LoopConfig{MaxIterations: 30}}
	if opts := engineOptions(cfg, nil, "", nil); opts.MaxContinuations >= 0 {
		t.Errorf("max_continuations 0 should disable continuation, got %d", opts.MaxContinuations)
	}
}

func TestMaskSecrets(t *testing.T) {
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"anthropic": {APIKey: "sk-ant-secret"},
		"ollama":    {},
	}}
	masked := maskSecrets(cfg)
	if masked.Providers["anthropic"].APIKey != "[set]" || masked.Providers["ollama"].APIKey != "" {
		t.Errorf("masked = %+v", masked.Providers)
	}
	if cfg.Providers["anthropic"].APIKey != "sk-ant-secret" {
		t.Error("original config was modified")
	}
}
