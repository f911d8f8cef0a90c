package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/config"
	"flock/internal/critic"
	"flock/internal/llm"
)

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "tick", "tui", "metrics", "seed", "daemon"} {
		assert.True(t, names[want], "missing %q subcommand", want)
	}

	sub := map[string]bool{}
	for _, cmd := range daemonCmd.Commands() {
		sub[cmd.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status", "run"} {
		assert.True(t, sub[want], "missing daemon %q subcommand", want)
	}
}

func TestSeedFlags(t *testing.T) {
	stories, err := seedCmd.Flags().GetInt("stories")
	require.NoError(t, err)
	assert.Equal(t, 30, stories)

	topic, err := seedCmd.Flags().GetString("topic")
	require.NoError(t, err)
	assert.Empty(t, topic)
}

func TestCriticInvokerReachesModelBlend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"response": "SCORE=0.9;FEEDBACK=grounded and specific"})
	}))
	defer srv.Close()

	testCfg := config.FromEnv()
	testCfg.LLM.Provider = "ollama"
	testCfg.LLM.Model = "llama3:latest"

	factory := llm.NewFactory("", srv.URL, 2*time.Second)
	c := critic.New(criticInvoker(factory, testCfg), 1.0)

	eval := c.Evaluate("A careful note on agent tooling tradeoffs. #flock", "persona", "objective", nil)
	require.GreaterOrEqual(t, eval.ModelScore, 0.0, "model path must be reachable through the wired backend")
	assert.InDelta(t, 0.9, eval.ModelScore, 1e-9)
	assert.Equal(t, "grounded and specific", eval.Feedback)
}

func TestConfigFlagDefault(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "flock.yaml", flag.DefValue)
}
