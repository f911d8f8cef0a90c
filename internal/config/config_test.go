package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected Provider=ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Population != 20 {
		t.Errorf("expected Population=20, got %d", cfg.Population)
	}
	if cfg.PostThreshold != 0.55 {
		t.Errorf("expected PostThreshold=0.55, got %v", cfg.PostThreshold)
	}
	if cfg.HumanDailyLimit != 10 {
		t.Errorf("expected HumanDailyLimit=10, got %d", cfg.HumanDailyLimit)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-3-5-haiku-20241022"
	cfg.Population = 7

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LLM.Provider != "anthropic" {
		t.Errorf("expected Provider=anthropic, got %s", loaded.LLM.Provider)
	}
	if loaded.Population != 7 {
		t.Errorf("expected Population=7, got %d", loaded.Population)
	}
}

func TestConfig_LoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such-file.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider, got %s", cfg.LLM.Provider)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("FLOCK_PROVIDER", "deepseek")
	t.Setenv("FLOCK_MODEL", "deepseek-chat")
	t.Setenv("FLOCK_API_KEY", "env-key")
	t.Setenv("FLOCK_POPULATION", "3")
	t.Setenv("FLOCK_POST_THRESHOLD", "0.8")
	t.Setenv("FLOCK_RUMINATION_ENABLED", "false")

	cfg := FromEnv()
	if cfg.LLM.Provider != "deepseek" {
		t.Errorf("expected Provider=deepseek, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected APIKey=env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Population != 3 {
		t.Errorf("expected Population=3, got %d", cfg.Population)
	}
	if cfg.PostThreshold != 0.8 {
		t.Errorf("expected PostThreshold=0.8, got %v", cfg.PostThreshold)
	}
	if cfg.Rumination.Enabled {
		t.Error("expected rumination disabled")
	}
}

func TestConfig_MalformedEnvIsIgnored(t *testing.T) {
	t.Setenv("FLOCK_POPULATION", "not-a-number")
	t.Setenv("FLOCK_POST_THRESHOLD", "plenty")

	cfg := FromEnv()
	if cfg.Population != 20 {
		t.Errorf("malformed int override applied: %d", cfg.Population)
	}
	if cfg.PostThreshold != 0.55 {
		t.Errorf("malformed float override applied: %v", cfg.PostThreshold)
	}
}

func TestConfig_Clamps(t *testing.T) {
	t.Setenv("FLOCK_POPULATION", "0")
	t.Setenv("FLOCK_TICK_SECONDS", "1")
	t.Setenv("FLOCK_HUMAN_DAILY_LIMIT", "-4")
	t.Setenv("FLOCK_AGENT_COMMENT_DAILY_LIMIT", "-1")
	t.Setenv("FLOCK_CRITIC_STRICTNESS", "0.1")
	t.Setenv("FLOCK_DIVERSITY_FLOOR", "1.5")
	t.Setenv("FLOCK_INERTIA_FACTOR", "9")
	t.Setenv("FLOCK_CANDIDATE_DRAFTS", "0")

	cfg := FromEnv()
	if cfg.Population != 1 {
		t.Errorf("Population = %d, want floor 1", cfg.Population)
	}
	if cfg.TickSeconds != 5 {
		t.Errorf("TickSeconds = %d, want floor 5", cfg.TickSeconds)
	}
	if cfg.HumanDailyLimit != 1 {
		t.Errorf("HumanDailyLimit = %d, want floor 1", cfg.HumanDailyLimit)
	}
	if cfg.AgentCommentDailyLimit != 0 {
		t.Errorf("AgentCommentDailyLimit = %d, want floor 0", cfg.AgentCommentDailyLimit)
	}
	if cfg.CriticStrictness != 0.5 {
		t.Errorf("CriticStrictness = %v, want floor 0.5", cfg.CriticStrictness)
	}
	if cfg.DiversityFloor != 0.95 {
		t.Errorf("DiversityFloor = %v, want cap 0.95", cfg.DiversityFloor)
	}
	if cfg.InertiaFactor != 1.0 {
		t.Errorf("InertiaFactor = %v, want cap 1.0", cfg.InertiaFactor)
	}
	if cfg.CandidateDrafts != 1 {
		t.Errorf("CandidateDrafts = %d, want floor 1", cfg.CandidateDrafts)
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TickInterval().Seconds() != 600 {
		t.Errorf("TickInterval = %v, want 600s", cfg.TickInterval())
	}
	if cfg.LLMTimeout().Seconds() != 60 {
		t.Errorf("LLMTimeout = %v, want 60s", cfg.LLMTimeout())
	}
}

func TestConfig_DatabasePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/flock"
	if got := cfg.DatabasePath(); got != filepath.Join("/var/lib/flock", "flock.db") {
		t.Errorf("DatabasePath = %q", got)
	}
	cfg.DBPath = "/tmp/other.db"
	if got := cfg.DatabasePath(); got != "/tmp/other.db" {
		t.Errorf("absolute DBPath not honored: %q", got)
	}
}
