package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Ollama calls a local Ollama instance.
type Ollama struct {
	url    string
	model  string
	client *http.Client
}

// NewOllama creates a new Ollama client.
func NewOllama(url, model string, timeout time.Duration) *Ollama {
	return &Ollama{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// Complete sends a prompt to Ollama's generate endpoint.
func (o *Ollama) Complete(ctx context.Context, prompt string) (*Response, error) {
	start := time.Now()
	reqBody := map[string]any{
		"model":  o.model,
		"system": SystemPrompt,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": oracleTemperature,
			"num_predict": maxTokens,
		},
	}

	var result struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := postJSON(ctx, o.client, o.url+"/api/generate", nil, reqBody, &result); err != nil {
		return nil, fmt.Errorf("ollama api: %w", err)
	}
	slog.Debug("ollama completion", "model", o.model, "took", time.Since(start))

	return &Response{
		Content:    result.Response,
		Provider:   "ollama",
		TokensUsed: result.PromptEvalCount + result.EvalCount,
	}, nil
}
