package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/samsaffron/conductor/internal/config"
	"github.com/samsaffron/conductor/internal/llm"
	"github.com/spf13/cobra"
)

var modelsProvider string
var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models a provider serves",
	Long: `List the models a provider serves, with their context window, output
ceiling and rate limit notes.

Examples:
  conductor models                       # list models from the current provider
  conductor models --provider gemini     # list models from Gemini
  conductor models --json                # output as JSON`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVarP(&modelsProvider, "provider", "p", "", "Provider to list models from")
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
	modelsCmd.RegisterFlagCompletionFunc("provider", ProviderFlagCompletion)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	providerName := modelsProvider
	if providerName == "" {
		providerName = cfg.Provider
	}
	if providerName, _, err = llm.ParseProviderModel(providerName, cfg); err != nil {
		return err
	}

	var models []llm.ModelInfo
	provider, err := llm.NewProviderByName(cfg, providerName)
	if err != nil {
		// Listing needs no credentials, so fall back to the static catalog.
		slog.Debug("provider unavailable, using catalog", "provider", providerName, "error", err)
		models = llm.ListModels(config.InferProviderType(providerName, cfg.Providers[providerName].Type))
	} else {
		models = provider.ListModels()
	}

	if modelsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}

	if len(models) == 0 {
		fmt.Printf("No catalog for %s; any model name is accepted.\n", providerName)
		return nil
	}

	fmt.Printf("Available models from %s:\n\n", providerName)
	for _, m := range models {
		fmt.Printf("  %-24s %s\n", m.ID, m.DisplayName)
		fmt.Printf("  %-24s context %s, output %s\n", "", formatTokens(m.ContextWindow), formatTokens(m.OutputCeiling))
		if m.RateLimit != "" {
			fmt.Printf("  %-24s %s\n", "", m.RateLimit)
		}
	}
	return nil
}

func formatTokens(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1000:
		return fmt.Sprintf("%dK", n/1000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
