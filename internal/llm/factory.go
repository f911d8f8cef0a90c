package llm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"flock/internal/logging"
)

// providerEnvKeys lists where each provider's credential lives when the
// config does not carry one directly.
var providerEnvKeys = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"deepseek":  {"DEEPSEEK_API_KEY"},
	"moonshot":  {"MOONSHOT_API_KEY"},
	"qwen":      {"QWEN_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
}

type factoryEntry struct {
	client Client
	err    error
}

// Factory resolves (provider, model) pairs into clients, caching both
// successes and failures. A backend that failed to configure once is
// not retried on every tick.
type Factory struct {
	apiKey  string
	baseURL string
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]factoryEntry
}

// NewFactory builds a factory. apiKey, when set, overrides per-provider
// environment credentials; baseURL overrides the provider endpoint for
// ollama and the OpenAI-compatible backends.
func NewFactory(apiKey, baseURL string, timeout time.Duration) *Factory {
	return &Factory{
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: timeout,
		cache:   make(map[string]factoryEntry),
	}
}

// Resolve returns the cached client for provider/model, constructing it
// on first use.
func (f *Factory) Resolve(ctx context.Context, provider, model string) (Client, error) {
	key := provider + "/" + model

	f.mu.Lock()
	defer f.mu.Unlock()

	if entry, ok := f.cache[key]; ok {
		return entry.client, entry.err
	}

	client, err := f.build(ctx, provider, model)
	f.cache[key] = factoryEntry{client: client, err: err}
	if err != nil {
		logging.APIError("backend %s unavailable: %v", key, err)
	} else {
		logging.API("backend %s ready", key)
	}
	return client, err
}

func (f *Factory) build(ctx context.Context, provider, model string) (Client, error) {
	switch provider {
	case "ollama":
		return NewOllamaClient(model, f.baseURL, f.timeout), nil
	case "openai", "deepseek", "moonshot", "qwen":
		return NewOpenAICompatClient(provider, model, f.credential(provider), f.baseURL, f.timeout)
	case "anthropic":
		return NewAnthropicClient(model, f.credential(provider), f.timeout)
	case "gemini":
		return NewGeminiClient(ctx, model, f.credential(provider))
	default:
		return nil, fmt.Errorf("%w: unsupported provider: %s", ErrConfiguration, provider)
	}
}

func (f *Factory) credential(provider string) string {
	if f.apiKey != "" {
		return f.apiKey
	}
	for _, env := range providerEnvKeys[provider] {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}
