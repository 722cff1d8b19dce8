// Package config loads the ralph service configuration from a YAML file,
// RALPH_-prefixed environment variables, and a secrets directory, in that
// order of increasing precedence for the first two; secrets only fill keys
// left empty.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AIClientConfig configures the model provider connection.
type AIClientConfig struct {
	// Provider is a gollm provider identifier: openai, anthropic, google,
	// ollama, groq, mistral.
	Provider      string  `yaml:"model_provider" env:"MODEL_PROVIDER"`
	Model         string  `yaml:"model" env:"MODEL"`
	APIKey        string  `yaml:"api_key" env:"API_KEY"`
	OllamaBaseURL string  `yaml:"ollama_base_url" env:"OLLAMA_BASE_URL"`
	Temperature   float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens     int     `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// ToolboxConfig restricts which tools the agent may use. An empty list
// allows everything.
type ToolboxConfig struct {
	AllowedTools []string `yaml:"allowed_tools" env:"ALLOWED_TOOLS"`
}

// LoopSettings configures loop behavior that is not per-run (per-run limits
// come from the CLI).
type LoopSettings struct {
	CommandTimeoutSeconds int  `yaml:"command_timeout_seconds" env:"COMMAND_TIMEOUT_SECONDS"`
	EnableLoopDetection   bool `yaml:"enable_loop_detection" env:"ENABLE_LOOP_DETECTION"`
	LoopDetectionWindow   int  `yaml:"loop_detection_window" env:"LOOP_DETECTION_WINDOW"`
}

// RalphConfig is the root configuration for the ralph service.
type RalphConfig struct {
	AIClient AIClientConfig `yaml:"aiclient" envPrefix:"AICLIENT__"`
	Toolbox  ToolboxConfig  `yaml:"toolbox" envPrefix:"TOOLBOX__"`
	Loop     LoopSettings   `yaml:"loop" envPrefix:"LOOP__"`
}

// Default returns the configuration defaults applied before any source.
func Default() RalphConfig {
	return RalphConfig{
		AIClient: AIClientConfig{
			Provider:    "google",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Loop: LoopSettings{
			CommandTimeoutSeconds: 60,
			EnableLoopDetection:   true,
			LoopDetectionWindow:   6,
		},
	}
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"google":    true,
	"ollama":    true,
	"groq":      true,
	"mistral":   true,
}

// Load builds the configuration from configPath (YAML, optional: empty skips
// it), the process environment (RALPH_ prefix, nested sections delimited
// with __, e.g. RALPH_AICLIENT__MODEL), and secretsDir (optional; one file
// per secret, nested per section: <secretsDir>/aiclient/api_key).
func Load(configPath, secretsDir string) (*RalphConfig, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "RALPH_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if secretsDir != "" {
		if err := cfg.applySecrets(secretsDir); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySecrets fills empty secret fields from one-file-per-secret entries.
func (c *RalphConfig) applySecrets(dir string) error {
	if c.AIClient.APIKey == "" {
		key, err := readSecret(filepath.Join(dir, "aiclient", "api_key"))
		if err != nil {
			return err
		}
		c.AIClient.APIKey = key
	}
	return nil
}

// readSecret returns the trimmed file content, or "" when the file does not
// exist.
func readSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Validate checks the configuration is runnable.
func (c *RalphConfig) Validate() error {
	if !validProviders[c.AIClient.Provider] {
		return fmt.Errorf("unsupported model provider: %s", c.AIClient.Provider)
	}
	if c.AIClient.Model == "" {
		return fmt.Errorf("aiclient.model is required")
	}
	if c.AIClient.Provider != "ollama" && c.AIClient.APIKey == "" {
		return fmt.Errorf("aiclient.api_key is required for provider %s (set it in config, RALPH_AICLIENT__API_KEY, or the secrets directory)", c.AIClient.Provider)
	}
	if c.Loop.CommandTimeoutSeconds <= 0 {
		return fmt.Errorf("loop.command_timeout_seconds must be positive")
	}
	return nil
}
