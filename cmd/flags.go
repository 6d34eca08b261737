package cmd

import (
	"strings"

	"github.com/samsaffron/conductor/internal/config"
	"github.com/samsaffron/conductor/internal/llm"
	"github.com/spf13/cobra"
)

// AddProviderFlag adds the --provider/-p flag with completion
func AddProviderFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVarP(dest, "provider", "p", "", "Override provider, optionally with model (e.g., anthropic:claude-opus-4-6)")
	if err := cmd.RegisterFlagCompletionFunc("provider", ProviderFlagCompletion); err != nil {
		panic("failed to register provider completion: " + err.Error())
	}
}

// ProviderFlagCompletion completes provider names, and provider:model once a
// colon has been typed.
func ProviderFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	names := llm.GetBuiltInProviderNames()
	cfg, err := loadConfig("")
	if err == nil {
		names = append(names, cfg.ProviderNames()...)
	}

	if provider, _, ok := strings.Cut(toComplete, ":"); ok {
		providerType := provider
		if cfg != nil {
			if pc, found := cfg.Providers[provider]; found {
				providerType = config.InferProviderType(provider, pc.Type)
			}
		}
		var completions []string
		for _, m := range llm.ListModels(providerType) {
			completions = append(completions, provider+":"+m.ID)
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, name := range names {
		if strings.HasPrefix(name, toComplete) {
			completions = append(completions, name)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}
