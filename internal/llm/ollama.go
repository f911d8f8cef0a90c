package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient speaks to a local ollama daemon. No credentials are
// required; an unreachable daemon is a request error like any other.
type OllamaClient struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient builds a client. baseURL overrides the local default
// when non-empty.
func NewOllamaClient(model, baseURL string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaClient{
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OllamaClient) Name() string {
	return "ollama/" + c.model
}

type ollamaRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	prompt := strings.TrimSpace(req.SystemPrompt + "\n\n" + req.UserPrompt)
	body := ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	raw, err := postJSON(ctx, c.httpClient, c.baseURL+"/api/generate", body, nil)
	if err != nil {
		return "", err
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrRequest, err)
	}
	return strings.TrimSpace(parsed.Response), nil
}
