// Package llm holds the generation backends. Every provider satisfies
// the same narrow Client contract; the factory resolves and caches one
// client per (provider, model) pair. Failures split into two kinds:
// ErrConfiguration (missing credentials, unsupported provider) and
// ErrRequest (network, timeout, malformed response). Callers treat a
// failed generation as an empty draft and record the error string for
// diagnostics.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrConfiguration marks backends that can never work as configured.
var ErrConfiguration = errors.New("llm: configuration error")

// ErrRequest marks transient request failures.
var ErrRequest = errors.New("llm: request error")

// Request is one generation call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Client generates text for a prompt pair.
type Client interface {
	// Generate returns the model text, trimmed. Errors wrap either
	// ErrConfiguration or ErrRequest.
	Generate(ctx context.Context, req Request) (string, error)
	// Name identifies the backend as provider/model.
	Name() string
}

// ModelWhitelist enumerates the models each provider accepts. Model
// updates from the user surface are validated against this table.
var ModelWhitelist = map[string][]string{
	"ollama":    {"llama3:latest", "llama3.1:8b", "qwen2.5:7b", "mistral:7b"},
	"openai":    {"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini"},
	"deepseek":  {"deepseek-chat", "deepseek-reasoner"},
	"moonshot":  {"moonshot-v1-8k", "moonshot-v1-32k"},
	"qwen":      {"qwen-turbo", "qwen-plus", "qwen-max"},
	"anthropic": {"claude-3-5-haiku-20241022", "claude-sonnet-4-20250514"},
	"gemini":    {"gemini-2.0-flash", "gemini-2.5-flash"},
}

// Providers lists the supported provider names, sorted.
func Providers() []string {
	out := make([]string, 0, len(ModelWhitelist))
	for p := range ModelWhitelist {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ValidateModel checks a (provider, model) pair against the whitelist.
func ValidateModel(provider, model string) error {
	models, ok := ModelWhitelist[provider]
	if !ok {
		return fmt.Errorf("%w: unsupported provider: %s", ErrConfiguration, provider)
	}
	for _, m := range models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q not allowed for provider %s", ErrConfiguration, model, provider)
}
