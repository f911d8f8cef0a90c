package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flock/internal/logging"
)

// openAIEndpoints maps each OpenAI-compatible provider to its chat
// completions endpoint.
var openAIEndpoints = map[string]string{
	"openai":   "https://api.openai.com/v1/chat/completions",
	"deepseek": "https://api.deepseek.com/v1/chat/completions",
	"moonshot": "https://api.moonshot.cn/v1/chat/completions",
	"qwen":     "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions",
}

// OpenAICompatClient speaks the OpenAI chat completions protocol,
// covering openai, deepseek, moonshot, and qwen.
type OpenAICompatClient struct {
	provider   string
	model      string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAICompatClient builds a client for one of the compatible
// providers. endpoint overrides the default when non-empty.
func NewOpenAICompatClient(provider, model, apiKey, endpoint string, timeout time.Duration) (*OpenAICompatClient, error) {
	if endpoint == "" {
		endpoint = openAIEndpoints[provider]
	}
	if endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint for provider %s", ErrConfiguration, provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key for provider %s", ErrConfiguration, provider)
	}
	return &OpenAICompatClient{
		provider:   provider,
		model:      model,
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *OpenAICompatClient) Name() string {
	return c.provider + "/" + c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAICompatClient) Generate(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	raw, err := postJSON(ctx, c.httpClient, c.endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	})
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrRequest, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned from model", ErrRequest)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// postJSON posts a JSON body and returns the raw response bytes.
// Non-2xx statuses and transport failures map to ErrRequest.
func postJSON(ctx context.Context, client *http.Client, url string, body interface{}, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		logging.APIError("POST %s failed: %v", url, err)
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRequest, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.APIError("POST %s status %d: %s", url, resp.StatusCode, truncate(string(raw), 200))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrRequest, resp.StatusCode, truncate(string(raw), 200))
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
