package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/homeostat/internal/config"
)

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// SystemPrompt frames every oracle call.
const SystemPrompt = "You are the subconscious regulator of an autonomous agent. " +
	"Answer tersely and only in the format requested."

const (
	defaultTimeout    = 120 * time.Second
	maxTokens         = 1024
	oracleTemperature = 0.3
)

// NewClient creates an LLM client based on the config provider setting.
// A positive RatePerMinute wraps the client in a rate limiter.
func NewClient(cfg config.LLMConfig) (Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var client Client
	switch cfg.Provider {
	case "claude-cli":
		model := cfg.Model
		if model == "" {
			model = "haiku"
		}
		client = NewClaudeCLI(model, timeout)
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		client = NewAnthropic(cfg.AnthropicKey, model, timeout)
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.2"
		}
		client = NewOllama(url, model, timeout)
	case "openai":
		if cfg.OpenAIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY or a base URL")
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		client = NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, model, timeout)
	case "mock":
		client = &MockClient{Response: &Response{Provider: "mock"}}
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}

	if cfg.RatePerMinute > 0 {
		client = Limit(client, cfg.RatePerMinute, cfg.Burst)
	}
	return client, nil
}
