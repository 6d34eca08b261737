package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/samsaffron/conductor/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage conductor configuration",
	Long: `View or edit your conductor configuration.

Examples:
  conductor config                     # show the effective config
  conductor config path                # print the config file path
  conductor config edit                # edit in $EDITOR`,
	RunE: configShow, // Default to show
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration file path",
	RunE:  configPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file in $EDITOR",
	RunE:  configEdit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
}

func configShow(cmd *cobra.Command, args []string) error {
	path, err := resolvedConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		fmt.Printf("# No config file (using defaults)\n")
		fmt.Printf("# Create one at: %s\n\n", path)
	} else {
		fmt.Printf("# %s\n\n", path)
	}

	out, err := yaml.Marshal(maskSecrets(cfg))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

// maskSecrets returns a copy of cfg with API keys replaced by their status.
func maskSecrets(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.APIKey != "" {
			pc.APIKey = "[set]"
		}
		masked.Providers[name] = pc
	}
	return &masked
}

func configPath(cmd *cobra.Command, args []string) error {
	path, err := resolvedConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func configEdit(cmd *cobra.Command, args []string) error {
	path, err := resolvedConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	c := exec.Command(editor, path)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

func resolvedConfigPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return config.GetConfigPath()
}
