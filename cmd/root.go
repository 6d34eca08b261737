package cmd

import (
	"log/slog"
	"os"

	"github.com/samsaffron/conductor/internal/config"
	"github.com/samsaffron/conductor/internal/llm"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugLog, "debug", "d", false, "Log debug information to stderr")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/conductor/config.yaml)")
}

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Drive coding requests through an LLM tool loop",
	Long: `conductor runs a request against a language model that works through it
with tools: reading and writing files, searching code, running commands and
tests. File writes wait for your approval.

Examples:
  conductor chat "add a --verbose flag to the CLI"
  conductor chat -p anthropic:claude-opus-4-6 "fix the failing tests"
  conductor models --provider gemini
  conductor config                       # view configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debugLog)
	},
}

var debugLog bool
var configFile string

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the config file and applies a --provider override of the
// form provider[:model].
func loadConfig(providerFlag string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if providerFlag != "" {
		provider, model, err := llm.ParseProviderModel(providerFlag, cfg)
		if err != nil {
			return nil, err
		}
		cfg.ApplyOverrides(provider, model)
	}
	return cfg, nil
}
