package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateModel(t *testing.T) {
	cases := []struct {
		provider string
		model    string
		wantErr  bool
	}{
		{"ollama", "llama3:latest", false},
		{"openai", "gpt-4o-mini", false},
		{"anthropic", "claude-3-5-haiku-20241022", false},
		{"openai", "gpt-2", true},
		{"nonsense", "whatever", true},
	}
	for _, tc := range cases {
		err := ValidateModel(tc.provider, tc.model)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrConfiguration, "%s/%s", tc.provider, tc.model)
		} else {
			assert.NoError(t, err, "%s/%s", tc.provider, tc.model)
		}
	}
}

func TestProvidersSorted(t *testing.T) {
	providers := Providers()
	require.NotEmpty(t, providers)
	for i := 1; i < len(providers); i++ {
		assert.Less(t, providers[i-1], providers[i])
	}
}

func TestOpenAICompatGenerate(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "  hello world  "}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewOpenAICompatClient("openai", "gpt-4o-mini", "test-key", srv.URL, 5*time.Second)
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), Request{
		SystemPrompt: "be brief",
		UserPrompt:   "say hello",
		Temperature:  0.7,
		MaxTokens:    128,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestOpenAICompatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	client, err := NewOpenAICompatClient("openai", "gpt-4o-mini", "test-key", srv.URL, 5*time.Second)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{UserPrompt: "hi"})
	assert.ErrorIs(t, err, ErrRequest)
}

func TestOpenAICompatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewOpenAICompatClient("deepseek", "deepseek-chat", "test-key", srv.URL, 5*time.Second)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{UserPrompt: "hi"})
	assert.ErrorIs(t, err, ErrRequest)
}

func TestOpenAICompatMissingKey(t *testing.T) {
	_, err := NewOpenAICompatClient("openai", "gpt-4o-mini", "", "", 5*time.Second)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAnthropicMissingKey(t *testing.T) {
	_, err := NewAnthropicClient("claude-3-5-haiku-20241022", "", 5*time.Second)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestOllamaGenerateMergesPrompts(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Prompt
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(map[string]string{"response": "a local reply"})
	}))
	defer srv.Close()

	client := NewOllamaClient("llama3:latest", srv.URL, 5*time.Second)
	out, err := client.Generate(context.Background(), Request{
		SystemPrompt: "persona here",
		UserPrompt:   "write a post",
	})
	require.NoError(t, err)
	assert.Equal(t, "a local reply", out)
	assert.Equal(t, "persona here\n\nwrite a post", gotPrompt)
}

func TestFactoryCachesClientsAndFailures(t *testing.T) {
	f := NewFactory("", "", 5*time.Second)
	ctx := context.Background()

	// Ollama needs no credentials and always constructs.
	first, err := f.Resolve(ctx, "ollama", "llama3:latest")
	require.NoError(t, err)
	second, err := f.Resolve(ctx, "ollama", "llama3:latest")
	require.NoError(t, err)
	assert.Same(t, first.(*OllamaClient), second.(*OllamaClient))

	// A provider that cannot configure fails the same way every time.
	_, err1 := f.Resolve(ctx, "bogus", "model")
	_, err2 := f.Resolve(ctx, "bogus", "model")
	assert.ErrorIs(t, err1, ErrConfiguration)
	assert.Equal(t, err1, err2)
}

func TestFactoryCredentialOverride(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")

	f := NewFactory("explicit-key", "", 5*time.Second)
	assert.Equal(t, "explicit-key", f.credential("openai"))

	f = NewFactory("", "", 5*time.Second)
	assert.Equal(t, "env-key", f.credential("openai"))
}
