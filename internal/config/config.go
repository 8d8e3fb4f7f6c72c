package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/lazypower/homeostat/internal/checkpoint"
	"github.com/lazypower/homeostat/internal/engine"
)

// Config holds all homeostat configuration.
type Config struct {
	// DataDir anchors every relative or empty path below. Defaults to
	// ~/.homeostat.
	DataDir    string           `yaml:"data_dir" env:"DATA_DIR"`
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	State      StateConfig      `yaml:"state" envPrefix:"STATE_"`
	Ledger     LedgerConfig     `yaml:"ledger" envPrefix:"LEDGER_"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" envPrefix:"CHECKPOINT_"`
	Pulse      PulseConfig      `yaml:"pulse" envPrefix:"PULSE_"`
	Executive  ExecutiveConfig  `yaml:"executive" envPrefix:"EXECUTIVE_"`
	Physiology engine.Params    `yaml:"physiology"`
	LLM        LLMConfig        `yaml:"llm" envPrefix:"LLM_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Bind string `yaml:"bind" env:"BIND" validate:"required"`
	Port int    `yaml:"port" env:"PORT" validate:"gte=1,lte=65535"`
}

type StateConfig struct {
	File        string `yaml:"file" env:"FILE"`
	BackupEvery int    `yaml:"backup_every" env:"BACKUP_EVERY" validate:"gte=0"`
}

type LedgerConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

type CheckpointConfig struct {
	Dir      string   `yaml:"dir" env:"DIR"`
	Siblings []string `yaml:"siblings" env:"SIBLINGS" envSeparator:","`
	Every    int      `yaml:"every" env:"EVERY" validate:"gte=1"`
	Keep     int      `yaml:"keep" env:"KEEP" validate:"gte=0"`
}

type PulseConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL" validate:"gt=0"`
	// SleepPressure triggers an automatic sleep once fatigue reaches it.
	// Zero disables automatic sleep.
	SleepPressure float64 `yaml:"sleep_pressure" env:"SLEEP_PRESSURE" validate:"gte=0"`
}

type ExecutiveConfig struct {
	CortisolThreshold float64 `yaml:"cortisol_threshold" env:"CORTISOL_THRESHOLD" validate:"gte=0,lte=1"`
}

type LLMConfig struct {
	Provider      string        `yaml:"provider" env:"PROVIDER" validate:"omitempty,oneof=claude-cli anthropic ollama openai mock"` // empty disables the oracles
	Model         string        `yaml:"model" env:"MODEL"`
	OllamaURL     string        `yaml:"ollama_url" env:"OLLAMA_URL"`
	OllamaModel   string        `yaml:"ollama_model" env:"OLLAMA_MODEL"`
	AnthropicKey  string        `yaml:"anthropic_key" env:"ANTHROPIC_KEY"`
	OpenAIKey     string        `yaml:"openai_key" env:"OPENAI_KEY"`
	OpenAIBaseURL string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL" validate:"omitempty,url"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gte=0"`
	RatePerMinute float64       `yaml:"rate_per_minute" env:"RATE_PER_MINUTE" validate:"gte=0"`
	Burst         int           `yaml:"burst" env:"BURST" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=text json"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		State: StateConfig{
			BackupEvery: 33,
		},
		Ledger: LedgerConfig{
			Enabled: true,
		},
		Checkpoint: CheckpointConfig{
			Siblings: slices.Clone(checkpoint.DefaultSiblings),
			Every:    5,
		},
		Pulse: PulseConfig{
			Interval: 10 * time.Second,
		},
		Executive: ExecutiveConfig{
			CortisolThreshold: 0.7,
		},
		Physiology: engine.DefaultParams(),
		LLM: LLMConfig{
			Timeout:       120 * time.Second,
			RatePerMinute: 30,
			Burst:         2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// BaseURL is where a local client reaches the daemon.
func (c *Config) BaseURL() string {
	host := c.Server.Bind
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}
