package llm

import (
	"sort"
	"strings"
)

// defaultOutputCeiling applies to models missing from the catalog.
const defaultOutputCeiling = 8192

// ProviderModels is the static model catalog per provider type.
var ProviderModels = map[string][]ModelInfo{
	"anthropic": {
		{ID: "claude-sonnet-4-6", DisplayName: "Claude Sonnet 4.6", ContextWindow: 200_000, OutputCeiling: 64_000, RateLimit: "tier-based; 429 with retry-after"},
		{ID: "claude-opus-4-6", DisplayName: "Claude Opus 4.6", ContextWindow: 200_000, OutputCeiling: 32_000, RateLimit: "tier-based; 429 with retry-after"},
		{ID: "claude-haiku-4-5", DisplayName: "Claude Haiku 4.5", ContextWindow: 200_000, OutputCeiling: 64_000, RateLimit: "tier-based; 429 with retry-after"},
	},
	"openai": {
		{ID: "gpt-5.2", DisplayName: "GPT-5.2", ContextWindow: 400_000, OutputCeiling: 128_000, RateLimit: "tier-based TPM/RPM"},
		{ID: "gpt-5-mini", DisplayName: "GPT-5 mini", ContextWindow: 400_000, OutputCeiling: 128_000, RateLimit: "tier-based TPM/RPM"},
		{ID: "gpt-4.1", DisplayName: "GPT-4.1", ContextWindow: 1_047_576, OutputCeiling: 32_768, RateLimit: "tier-based TPM/RPM"},
		{ID: "o3-mini", DisplayName: "o3-mini", ContextWindow: 200_000, OutputCeiling: 100_000, RateLimit: "tier-based TPM/RPM"},
	},
	"gemini": {
		{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro", ContextWindow: 1_048_576, OutputCeiling: 65_536, RateLimit: "free tier 5 RPM; paid tier higher"},
		{ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", ContextWindow: 1_048_576, OutputCeiling: 65_536, RateLimit: "free tier 10 RPM; paid tier higher"},
		{ID: "gemini-2.5-flash-lite", DisplayName: "Gemini 2.5 Flash-Lite", ContextWindow: 1_048_576, OutputCeiling: 65_536, RateLimit: "free tier 15 RPM; paid tier higher"},
	},
	"deepseek": {
		{ID: "deepseek-chat", DisplayName: "DeepSeek V3", ContextWindow: 128_000, OutputCeiling: 8_192, RateLimit: "no fixed limit; requests queue under load"},
		{ID: "deepseek-reasoner", DisplayName: "DeepSeek R1", ContextWindow: 128_000, OutputCeiling: 64_000, RateLimit: "no fixed limit; requests queue under load"},
	},
	"ollama": {
		{ID: "qwen3-coder", DisplayName: "Qwen3 Coder (local)", ContextWindow: 32_768, OutputCeiling: 8_192, RateLimit: "local; bounded by hardware"},
		{ID: "llama3.1", DisplayName: "Llama 3.1 (local)", ContextWindow: 131_072, OutputCeiling: 4_096, RateLimit: "local; bounded by hardware"},
	},
	"lmstudio": {
		{ID: "local-model", DisplayName: "LM Studio loaded model", ContextWindow: 32_768, OutputCeiling: 4_096, RateLimit: "local; bounded by hardware"},
	},
}

// ListModels returns the catalog entries for a provider type.
func ListModels(provider string) []ModelInfo {
	models := ProviderModels[strings.ToLower(provider)]
	out := make([]ModelInfo, len(models))
	copy(out, models)
	return out
}

// LookupModel finds a model by provider type and id.
func LookupModel(provider, model string) (ModelInfo, bool) {
	for _, m := range ProviderModels[strings.ToLower(provider)] {
		if m.ID == model {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// OutputCeiling returns the maximum output tokens for a model.
func OutputCeiling(provider, model string) int {
	if m, ok := LookupModel(provider, model); ok && m.OutputCeiling > 0 {
		return m.OutputCeiling
	}
	return defaultOutputCeiling
}

// ClampOutputTokens limits a requested output budget to the model's
// ceiling. A non-positive request yields the ceiling.
func ClampOutputTokens(provider, model string, requested int) int {
	ceiling := OutputCeiling(provider, model)
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

// GetBuiltInProviderNames returns the provider types with a catalog entry.
func GetBuiltInProviderNames() []string {
	names := make([]string, 0, len(ProviderModels))
	for name := range ProviderModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
