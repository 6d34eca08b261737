package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/conductor/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Provider: "ollama",
		Providers: map[string]config.ProviderConfig{
			"work": {Type: config.ProviderTypeOpenAICompat, BaseURL: "http://localhost:9999/v1", Catalog: "deepseek"},
		},
		Retry: config.RetryConfig{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Second},
	}
}

func TestNewProviderByName(t *testing.T) {
	cfg := testConfig()

	p, err := NewProviderByName(cfg, "ollama")
	if err != nil {
		t.Fatal(err)
	}
	rp, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("expected retry wrapper, got %T", p)
	}
	if rp.config.MaxAttempts != 2 {
		t.Errorf("max attempts = %d", rp.config.MaxAttempts)
	}
	// First catalog entry is the default model.
	if !strings.Contains(p.Name(), "qwen3-coder") {
		t.Errorf("name = %q", p.Name())
	}

	p, err = NewProviderByName(cfg, "work", WithRetryHook(func(string, int, time.Duration, error) {}))
	if err != nil {
		t.Fatal(err)
	}
	if p.(*RetryProvider).config.OnRetry == nil {
		t.Error("retry hook not applied")
	}
	if models := p.ListModels(); len(models) == 0 || models[0].ID != "deepseek-chat" {
		t.Errorf("catalog = %+v", models)
	}
}

func TestNewProviderByNameUnknown(t *testing.T) {
	_, err := NewProviderByName(testConfig(), "olama")
	if err == nil || !strings.Contains(err.Error(), `did you mean "ollama"`) {
		t.Errorf("err = %v", err)
	}
}

func TestCompatRequiresBaseURL(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["mystery"] = config.ProviderConfig{}
	if _, err := NewProviderByName(cfg, "mystery"); err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Errorf("err = %v", err)
	}
}

func TestParseProviderModel(t *testing.T) {
	provider, model, err := ParseProviderModel("anthropic:claude-opus-4-6", nil)
	if err != nil || provider != "anthropic" || model != "claude-opus-4-6" {
		t.Errorf("got %q %q %v", provider, model, err)
	}
	if provider, _, err := ParseProviderModel("work", testConfig()); err != nil || provider != "work" {
		t.Errorf("configured name: %q %v", provider, err)
	}
	if _, _, err := ParseProviderModel(":x", nil); err == nil {
		t.Error("expected error for empty provider")
	}
}

func TestValidateModel(t *testing.T) {
	if err := ValidateModel("gemini", "gemini-2.5-pro"); err != nil {
		t.Error(err)
	}
	err := ValidateModel("gemini", "gemini-25-pro")
	if err == nil || !strings.Contains(err.Error(), "gemini-2.5-pro") {
		t.Errorf("err = %v", err)
	}
	if err := ValidateModel("my-server", "anything"); err != nil {
		t.Errorf("uncatalogued provider should accept any model: %v", err)
	}
}
