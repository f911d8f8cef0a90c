// Package config holds all flock configuration. Settings load from an
// optional YAML file, then environment variables override, then every
// numeric knob is clamped to a sane floor so a bad environment can
// degrade behavior but never break an invariant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all flock configuration.
type Config struct {
	// Core settings
	DataDir  string `yaml:"data_dir"`
	DBPath   string `yaml:"db_path"`
	Timezone string `yaml:"timezone"`

	// Community and scheduling
	Population        int `yaml:"population"`
	TickSeconds       int `yaml:"tick_seconds"`
	MaxAgentsPerTick  int `yaml:"max_agents_per_tick"` // 0 = whole population
	VirtualDaySeconds int `yaml:"virtual_day_seconds"` // 0 = real calendar days

	// Admission limits
	HumanDailyLimit        int `yaml:"human_daily_limit"`
	AgentPostDailyLimit    int `yaml:"agent_post_daily_limit"`
	AgentCommentDailyLimit int `yaml:"agent_comment_daily_limit"`
	HumanContentMaxChars   int `yaml:"human_content_max_chars"`

	// Generation backend
	LLM LLMConfig `yaml:"llm"`

	// Candidate pipeline
	CandidateDrafts  int     `yaml:"candidate_drafts"`
	PostThreshold    float64 `yaml:"post_threshold"`
	CommentThreshold float64 `yaml:"comment_threshold"`
	CriticStrictness float64 `yaml:"critic_strictness"`

	// Diversity filter
	DiversityWindow int     `yaml:"diversity_window"`
	DiversityFloor  float64 `yaml:"diversity_floor"`
	DiversityWeight float64 `yaml:"diversity_weight"`

	// Affect
	InertiaFactor float64 `yaml:"inertia_factor"`

	// Rumination
	Rumination RuminationConfig `yaml:"rumination"`

	// HTTP surface
	ServerAddr string `yaml:"server_addr"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	Provider         string `yaml:"provider"` // ollama, openai, deepseek, moonshot, qwen, anthropic, gemini
	Model            string `yaml:"model"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	FallbackProvider string `yaml:"fallback_provider"`
	FallbackModel    string `yaml:"fallback_model"`
}

// RuminationConfig configures the deep reflection engine.
type RuminationConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BudgetPerTick int    `yaml:"budget_per_tick"`
	Provider      string `yaml:"provider"` // empty = main backend
	Model         string `yaml:"model"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  ".",
		DBPath:   "flock.db",
		Timezone: "America/Los_Angeles",

		Population:        20,
		TickSeconds:       600,
		MaxAgentsPerTick:  0,
		VirtualDaySeconds: 0,

		HumanDailyLimit:        10,
		AgentPostDailyLimit:    1,
		AgentCommentDailyLimit: 2,
		HumanContentMaxChars:   1000,

		LLM: LLMConfig{
			Provider:       "ollama",
			Model:          "llama3:latest",
			TimeoutSeconds: 60,
		},

		CandidateDrafts:  2,
		PostThreshold:    0.55,
		CommentThreshold: 0.5,
		CriticStrictness: 1.0,

		DiversityWindow: 5,
		DiversityFloor:  0.45,
		DiversityWeight: 0.2,

		InertiaFactor: 0.25,

		Rumination: RuminationConfig{
			Enabled:       true,
			BudgetPerTick: 3,
		},

		ServerAddr: ":8000",

		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, applies environment
// overrides, and clamps every numeric knob.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			// Missing file means defaults plus environment.
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.clamp()
	return cfg, nil
}

// FromEnv builds a config from defaults and environment alone.
func FromEnv() *Config {
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	cfg.clamp()
	return cfg
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	envStr(&c.DataDir, "FLOCK_DATA_DIR")
	envStr(&c.DBPath, "FLOCK_DB_PATH")
	envStr(&c.Timezone, "FLOCK_TZ")

	envInt(&c.Population, "FLOCK_POPULATION")
	envInt(&c.TickSeconds, "FLOCK_TICK_SECONDS")
	envInt(&c.MaxAgentsPerTick, "FLOCK_MAX_AGENTS_PER_TICK")
	envInt(&c.VirtualDaySeconds, "FLOCK_VIRTUAL_DAY_SECONDS")

	envInt(&c.HumanDailyLimit, "FLOCK_HUMAN_DAILY_LIMIT")
	envInt(&c.AgentPostDailyLimit, "FLOCK_AGENT_POST_DAILY_LIMIT")
	envInt(&c.AgentCommentDailyLimit, "FLOCK_AGENT_COMMENT_DAILY_LIMIT")
	envInt(&c.HumanContentMaxChars, "FLOCK_HUMAN_CONTENT_MAX_CHARS")

	envStr(&c.LLM.Provider, "FLOCK_PROVIDER")
	envStr(&c.LLM.Model, "FLOCK_MODEL")
	envStr(&c.LLM.BaseURL, "FLOCK_BASE_URL")
	envInt(&c.LLM.TimeoutSeconds, "FLOCK_LLM_TIMEOUT_SECONDS")
	envStr(&c.LLM.FallbackProvider, "FLOCK_FALLBACK_PROVIDER")
	envStr(&c.LLM.FallbackModel, "FLOCK_FALLBACK_MODEL")

	// Provider API keys in priority order, the generic key last.
	if key := os.Getenv("FLOCK_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	envInt(&c.CandidateDrafts, "FLOCK_CANDIDATE_DRAFTS")
	envFloat(&c.PostThreshold, "FLOCK_POST_THRESHOLD")
	envFloat(&c.CommentThreshold, "FLOCK_COMMENT_THRESHOLD")
	envFloat(&c.CriticStrictness, "FLOCK_CRITIC_STRICTNESS")

	envInt(&c.DiversityWindow, "FLOCK_DIVERSITY_WINDOW")
	envFloat(&c.DiversityFloor, "FLOCK_DIVERSITY_FLOOR")
	envFloat(&c.DiversityWeight, "FLOCK_DIVERSITY_WEIGHT")

	envFloat(&c.InertiaFactor, "FLOCK_INERTIA_FACTOR")

	envBool(&c.Rumination.Enabled, "FLOCK_RUMINATION_ENABLED")
	envInt(&c.Rumination.BudgetPerTick, "FLOCK_RUMINATION_BUDGET")
	envStr(&c.Rumination.Provider, "FLOCK_RUMINATION_PROVIDER")
	envStr(&c.Rumination.Model, "FLOCK_RUMINATION_MODEL")

	envStr(&c.ServerAddr, "FLOCK_SERVER_ADDR")

	envBool(&c.Logging.Debug, "FLOCK_DEBUG")
	envStr(&c.Logging.Level, "FLOCK_LOG_LEVEL")
}

// clamp enforces the load-time floors. A hostile environment can make
// the simulation slow or dull, never invalid.
func (c *Config) clamp() {
	c.Population = maxInt(1, c.Population)
	c.TickSeconds = maxInt(5, c.TickSeconds)
	c.MaxAgentsPerTick = maxInt(0, c.MaxAgentsPerTick)
	c.VirtualDaySeconds = maxInt(0, c.VirtualDaySeconds)

	c.HumanDailyLimit = maxInt(1, c.HumanDailyLimit)
	c.AgentPostDailyLimit = maxInt(1, c.AgentPostDailyLimit)
	c.AgentCommentDailyLimit = maxInt(0, c.AgentCommentDailyLimit)
	c.HumanContentMaxChars = maxInt(1, c.HumanContentMaxChars)

	c.LLM.TimeoutSeconds = maxInt(5, c.LLM.TimeoutSeconds)

	c.CandidateDrafts = maxInt(1, c.CandidateDrafts)
	c.PostThreshold = clampF(c.PostThreshold, 0.0, 1.0)
	c.CommentThreshold = clampF(c.CommentThreshold, 0.0, 1.0)
	// Strictness below 0.5 would let quality overshoot wildly before
	// the final clamp; 0.5 is the configured floor.
	c.CriticStrictness = maxF(0.5, c.CriticStrictness)

	c.DiversityWindow = maxInt(1, c.DiversityWindow)
	c.DiversityFloor = clampF(c.DiversityFloor, 0.0, 0.95)
	c.DiversityWeight = clampF(c.DiversityWeight, 0.0, 1.0)

	c.InertiaFactor = clampF(c.InertiaFactor, 0.0, 1.0)

	c.Rumination.BudgetPerTick = maxInt(0, c.Rumination.BudgetPerTick)
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TickInterval returns the scheduler interval as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// LLMTimeout returns the generation request timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// DatabasePath joins the data dir and db path unless db path is
// already absolute.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.DBPath) {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, c.DBPath)
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return
	}
	*dst = n
}

func envFloat(dst *float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return
	}
	*dst = f
}

func envBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func clampF(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
