package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. HOMEOSTAT_SERVER_PORT.
const EnvPrefix = "HOMEOSTAT_"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the effective configuration: defaults, then the YAML file at
// path (if non-empty), then .env, then environment variables. Paths are
// resolved against DataDir and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	applyProviderKeys(&cfg.LLM)

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyProviderKeys picks up the providers' conventional key variables and
// selects anthropic when only its key is present.
func applyProviderKeys(c *LLMConfig) {
	if c.AnthropicKey == "" {
		c.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Provider == "" && c.AnthropicKey != "" {
		c.Provider = "anthropic"
	}
}

// Resolve fills empty paths from DataDir and makes relative ones absolute
// under it.
func (c *Config) Resolve() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, ".homeostat")
	}

	c.State.File = c.under(c.State.File, "neuro_state.json")
	c.Ledger.Path = c.under(c.Ledger.Path, "homeostat.db")
	c.Checkpoint.Dir = c.under(c.Checkpoint.Dir, "checkpoints")
	for i, s := range c.Checkpoint.Siblings {
		c.Checkpoint.Siblings[i] = c.under(s, s)
	}
	return nil
}

func (c *Config) under(path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// Validate checks structural constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	out.LLM.AnthropicKey = mask(out.LLM.AnthropicKey)
	out.LLM.OpenAIKey = mask(out.LLM.OpenAIKey)
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
