package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/samsaffron/conductor/internal/config"
)

// Default base URLs for local OpenAI-compatible servers.
var compatDefaults = map[string]string{
	"lmstudio": "http://localhost:1234/v1",
	"deepseek": "https://api.deepseek.com/v1",
}

// ParseProviderModel parses "provider:model" or just "provider" from a flag value.
// Returns (provider, model, error). Model will be empty if not specified.
func ParseProviderModel(s string, cfg *config.Config) (string, string, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return "", "", fmt.Errorf("invalid provider format: %q", s)
	}
	provider := strings.TrimSpace(parts[0])
	model := ""
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}

	candidates := GetBuiltInProviderNames()
	if cfg != nil {
		if _, ok := cfg.Providers[provider]; ok {
			return provider, model, nil
		}
		candidates = append(candidates, cfg.ProviderNames()...)
	}
	for _, name := range GetBuiltInProviderNames() {
		if provider == name {
			return provider, model, nil
		}
	}
	return "", "", unknownNameError("provider", provider, candidates)
}

// ValidateModel checks a model id against the static catalog. Providers
// without a catalog accept anything.
func ValidateModel(provider, model string) error {
	models := ListModels(provider)
	if len(models) == 0 || model == "" {
		return nil
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		if m.ID == model {
			return nil
		}
		ids = append(ids, m.ID)
	}
	return unknownNameError(provider+" model", model, ids)
}

func unknownNameError(what, name string, candidates []string) error {
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		return fmt.Errorf("unknown %s: %s", what, name)
	}
	return fmt.Errorf("unknown %s: %s (did you mean %q?)", what, name, matches[0].Str)
}

// ProviderOption adjusts how the factory builds a provider.
type ProviderOption func(*RetryConfig)

// WithRetryHook sets RetryConfig.OnRetry on the wrapped provider.
func WithRetryHook(fn func(provider string, attempt int, wait time.Duration, err error)) ProviderOption {
	return func(rc *RetryConfig) { rc.OnRetry = fn }
}

// NewProvider creates the configured default provider wrapped with retry
// for rate limits (429) and transient errors.
func NewProvider(cfg *config.Config, opts ...ProviderOption) (Provider, error) {
	return NewProviderByName(cfg, cfg.Provider, opts...)
}

// NewProviderByName creates a provider by name from the config. Built-in
// provider types work without an explicit config entry.
func NewProviderByName(cfg *config.Config, name string, opts ...ProviderOption) (Provider, error) {
	providerCfg, ok := cfg.Providers[name]
	if !ok {
		builtIn := false
		for _, n := range GetBuiltInProviderNames() {
			builtIn = builtIn || n == name
		}
		if !builtIn {
			return nil, unknownNameError("provider", name, append(GetBuiltInProviderNames(), cfg.ProviderNames()...))
		}
		providerCfg = config.ProviderConfig{Type: config.InferProviderType(name, "")}
	}

	provider, err := createProviderFromConfig(name, providerCfg, NewHTTPClient(cfg.HTTP.Timeout))
	if err != nil {
		return nil, err
	}
	retry := DefaultRetryConfig()
	if cfg.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseBackoff > 0 {
		retry.BaseBackoff = cfg.Retry.BaseBackoff
	}
	if cfg.Retry.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.Retry.MaxBackoff
	}
	for _, opt := range opts {
		opt(&retry)
	}
	return WrapWithRetry(provider, retry), nil
}

func createProviderFromConfig(name string, cfg config.ProviderConfig, client *http.Client) (Provider, error) {
	providerType := config.InferProviderType(name, cfg.Type)
	catalog := providerType
	if providerType == config.ProviderTypeOpenAICompat {
		catalog = cfg.Catalog
		if catalog == "" {
			catalog = name
		}
	}
	if cfg.Model == "" {
		// First catalog entry is the default model.
		if models := ListModels(catalog); len(models) > 0 {
			cfg.Model = models[0].ID
		}
	}

	switch providerType {
	case config.ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, client)

	case config.ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, client)

	case config.ProviderTypeGemini:
		return NewGeminiProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, client)

	case config.ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Marker, cfg.InlineTools, client), nil

	case config.ProviderTypeOpenAICompat:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = compatDefaults[name]
		}
		if baseURL == "" {
			return nil, fmt.Errorf("provider %q requires base_url", name)
		}
		// Use provider name as display name, with first letter capitalized
		displayName := strings.ToUpper(name[:1]) + name[1:]
		return NewOpenAICompatProvider(baseURL, cfg.APIKey, cfg.Model, CompatOptions{
			Name:        displayName,
			Catalog:     catalog,
			Headers:     cfg.Headers,
			InlineTools: cfg.InlineTools,
			Marker:      cfg.Marker,
			HTTPClient:  client,
		}), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}
}
