package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider types understood by the factory.
const (
	ProviderTypeAnthropic    = "anthropic"
	ProviderTypeOpenAI       = "openai"
	ProviderTypeGemini       = "gemini"
	ProviderTypeOllama       = "ollama"
	ProviderTypeOpenAICompat = "openai-compat"
)

type Config struct {
	Provider  string                    `mapstructure:"provider" yaml:"provider"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Loop      LoopConfig                `mapstructure:"loop" yaml:"loop"`
	Approval  ApprovalConfig            `mapstructure:"approval" yaml:"approval"`
	HTTP      HTTPConfig                `mapstructure:"http" yaml:"http"`
	Retry     RetryConfig               `mapstructure:"retry" yaml:"retry"`
	Tools     ToolsConfig               `mapstructure:"tools" yaml:"tools"`
}

// ProviderConfig configures one named backend. Type may be omitted when the
// name is itself a provider type ("anthropic", "ollama", ...).
type ProviderConfig struct {
	Type        string            `mapstructure:"type" yaml:"type,omitempty"`
	APIKey      string            `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model       string            `mapstructure:"model" yaml:"model,omitempty"`
	BaseURL     string            `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	InlineTools bool              `mapstructure:"inline_tools" yaml:"inline_tools,omitempty"` // describe tools in the prompt, parse calls from text
	Marker      string            `mapstructure:"marker" yaml:"marker,omitempty"`             // inline tool-call marker
	Catalog     string            `mapstructure:"catalog" yaml:"catalog,omitempty"`           // model catalog key for compat servers
}

type LoopConfig struct {
	MaxIterations    int     `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxContinuations int     `mapstructure:"max_continuations" yaml:"max_continuations"`
	MaxOutputTokens  int     `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	Temperature      float32 `mapstructure:"temperature" yaml:"temperature"`
	Instructions     string  `mapstructure:"instructions" yaml:"instructions,omitempty"`
}

type ApprovalConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	AutoApprove  bool          `mapstructure:"auto_approve" yaml:"auto_approve"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" yaml:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

type ToolsConfig struct {
	WorkDir           string        `mapstructure:"work_dir" yaml:"work_dir,omitempty"`
	ShellTimeout      time.Duration `mapstructure:"shell_timeout" yaml:"shell_timeout"`
	TestCommand       string        `mapstructure:"test_command" yaml:"test_command"`
	ElevationCommands []string      `mapstructure:"elevation_commands" yaml:"elevation_commands"` // globs answered with needsElevation
	DeniedCommands    []string      `mapstructure:"denied_commands" yaml:"denied_commands"`
	MaxOutputBytes    int           `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	MaxOutputLines    int           `mapstructure:"max_output_lines" yaml:"max_output_lines"`
	SearchEndpoint    string        `mapstructure:"search_endpoint" yaml:"search_endpoint,omitempty"`
	SearchMaxResults  int           `mapstructure:"search_max_results" yaml:"search_max_results"`
}

// Load reads config.yaml from the config directory (or the working
// directory). A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	return load(v)
}

// LoadFile reads an explicit config file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("CONDUCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	for name, pc := range cfg.Providers {
		pc.resolve(name)
		cfg.Providers[name] = pc
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "anthropic")
	v.SetDefault("loop.max_iterations", 30)
	v.SetDefault("loop.max_continuations", 10)
	v.SetDefault("loop.max_output_tokens", 8192)
	v.SetDefault("approval.poll_interval", time.Second)
	v.SetDefault("approval.timeout", 300*time.Second)
	v.SetDefault("http.timeout", 120*time.Second)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_backoff", time.Second)
	v.SetDefault("retry.max_backoff", 30*time.Second)
	v.SetDefault("tools.shell_timeout", 2*time.Minute)
	v.SetDefault("tools.test_command", "go test ./...")
	v.SetDefault("tools.elevation_commands", []string{"sudo *", "doas *", "su *"})
	v.SetDefault("tools.denied_commands", []string{"rm -rf /", "rm -rf /*", "mkfs*", ":(){*"})
	v.SetDefault("tools.max_output_bytes", 50*1024)
	v.SetDefault("tools.max_output_lines", 2000)
	v.SetDefault("tools.search_max_results", 5)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Loop.MaxIterations <= 0 {
		return fmt.Errorf("loop.max_iterations must be positive, got %d", c.Loop.MaxIterations)
	}
	if c.Loop.MaxContinuations < 0 {
		return fmt.Errorf("loop.max_continuations must not be negative, got %d", c.Loop.MaxContinuations)
	}
	if c.Approval.PollInterval <= 0 {
		return fmt.Errorf("approval.poll_interval must be positive")
	}
	if c.Approval.Timeout < c.Approval.PollInterval {
		return fmt.Errorf("approval.timeout (%s) is shorter than approval.poll_interval (%s)", c.Approval.Timeout, c.Approval.PollInterval)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}

// ApplyOverrides applies provider and model overrides to the config.
// If provider is non-empty, it overrides the global provider.
// If model is non-empty, it overrides the model for the active provider.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model == "" {
		return
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	pc := c.Providers[c.Provider]
	pc.Model = model
	c.Providers[c.Provider] = pc
}

// ProviderNames returns the configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InferProviderType returns the provider type for a configured name. An
// explicit type wins; otherwise well-known names map to their own type and
// anything else is treated as an OpenAI-compatible server.
func InferProviderType(name, explicitType string) string {
	if explicitType != "" {
		return explicitType
	}
	switch name {
	case ProviderTypeAnthropic, ProviderTypeOpenAI, ProviderTypeGemini, ProviderTypeOllama:
		return name
	default:
		return ProviderTypeOpenAICompat
	}
}

func (pc *ProviderConfig) resolve(name string) {
	pc.Type = InferProviderType(name, pc.Type)
	pc.APIKey = expandEnv(pc.APIKey)
	pc.BaseURL = expandEnv(pc.BaseURL)
	if pc.APIKey != "" {
		return
	}
	switch pc.Type {
	case ProviderTypeAnthropic:
		pc.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case ProviderTypeOpenAI:
		pc.APIKey = os.Getenv("OPENAI_API_KEY")
	case ProviderTypeGemini:
		pc.APIKey = os.Getenv("GEMINI_API_KEY")
	case ProviderTypeOpenAICompat:
		pc.APIKey = os.Getenv(strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_API_KEY")
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for conductor.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "conductor"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "conductor"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
