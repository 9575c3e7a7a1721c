package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lazypower/statuscast/internal/config"
)

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is one system+user completion.
type Request struct {
	System string
	User   string
	Params Params
}

// Params are per-request model parameters. Zero values use provider defaults.
type Params struct {
	MaxTokens   int
	Temperature float64
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

func (p Params) maxTokens() int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return 2048
}

func (p Params) temperature() float64 {
	if p.Temperature > 0 {
		return p.Temperature
	}
	return 0.3
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// APIError is a non-2xx response from a provider's HTTP API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// RateLimited reports whether the provider throttled the request.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Unauthorized reports whether the provider rejected the credentials.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// FailureReason names the transport failure behind err for logs and metrics.
func FailureReason(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &apiErr) && apiErr.RateLimited():
		return "rate_limited"
	case errors.As(err, &apiErr) && apiErr.Unauthorized():
		return "auth"
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 500:
		return "server_error"
	}
	return "error"
}

// NewClient creates an LLM client based on the config provider setting.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "claude-cli":
		model := cfg.Model
		if model == "" {
			model = "haiku"
		}
		return NewClaudeCLI(model), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(cfg.AnthropicKey, model), nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.2"
		}
		return NewOllama(url, model), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   model,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
