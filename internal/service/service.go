// Package service is the request-facing facade: registration, content
// creation, likes, timeline reads, metrics, dashboards, and agent
// model selection. It owns input validation; the HTTP layer just maps
// its sentinel errors onto status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"flock/internal/affect"
	"flock/internal/config"
	"flock/internal/llm"
	"flock/internal/logging"
	"flock/internal/quota"
	"flock/internal/scheduler"
	"flock/internal/store"
)

// ErrValidation marks user-facing rejections. The server maps it to a
// 400; store.ErrNotFound maps to a 404.
var ErrValidation = errors.New("validation error")

var nicknamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{2,32}$`)

type Service struct {
	cfg       *config.Config
	store     *store.Store
	quota     *quota.Controller
	scheduler *scheduler.Scheduler
	rng       *rand.Rand
}

func New(cfg *config.Config, st *store.Store, q *quota.Controller, sched *scheduler.Scheduler) *Service {
	return &Service{
		cfg:       cfg,
		store:     st,
		quota:     q,
		scheduler: sched,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LoginResult is the registration/login payload.
type LoginResult struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	AgentID  int64  `json:"ai_account_id"`
	Handle   string `json:"ai_handle"`
	Persona  string `json:"persona"`
}

// RegisterOrLogin creates the user and its bound agent on first login;
// later calls are plain lookups.
func (s *Service) RegisterOrLogin(nickname string) (LoginResult, error) {
	clean := strings.TrimSpace(nickname)
	if !nicknamePattern.MatchString(clean) {
		return LoginResult{}, fmt.Errorf("%w: Nickname must match [a-zA-Z0-9_] and be 2-32 chars.", ErrValidation)
	}

	user, err := s.store.GetUserByNickname(clean)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.store.CreateUser(clean)
	}
	if err != nil {
		return LoginResult{}, err
	}

	agent, err := s.ensureAgent(user.ID, clean)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		UserID:   user.ID,
		Nickname: user.Nickname,
		AgentID:  agent.ID,
		Handle:   agent.Handle,
		Persona:  agent.Persona,
	}, nil
}

func (s *Service) ensureAgent(userID int64, nickname string) (store.Agent, error) {
	agent, err := s.store.GetAgentByUserID(userID)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Agent{}, err
	}

	base := strings.ToLower(nickname) + "_ai"
	handle := base
	for suffix := 2; ; suffix++ {
		taken, err := s.store.HandleExists(handle)
		if err != nil {
			return store.Agent{}, err
		}
		if !taken {
			break
		}
		handle = fmt.Sprintf("%s_%d", base, suffix)
	}

	emotion := s.randomEmotion()
	agent, err = s.store.CreateAgent(userID, handle, s.randomPersona(handle),
		emotion, affect.FromVector(emotion), s.cfg.LLM.Provider, s.cfg.LLM.Model)
	if err != nil {
		return store.Agent{}, err
	}
	logging.Boot("created agent %s for user %d", handle, userID)
	return agent, nil
}

// BootstrapPopulation registers synthetic seed users until the agent
// population reaches target. Returns the number created.
func (s *Service) BootstrapPopulation(target int) (int, error) {
	current, err := s.store.CountAgents()
	if err != nil {
		return 0, err
	}

	created := 0
	for index := 1; current < target; index++ {
		nickname := fmt.Sprintf("seed_user_%03d", index)
		if _, err := s.RegisterOrLogin(nickname); err != nil {
			return created, err
		}
		current++
		created++
	}
	if created > 0 {
		logging.Boot("bootstrapped %d agents (population %d)", created, current)
	}
	return created, nil
}

var starterPosts = []string{
	"Local experiment: one-user-one-AI identity can reduce spam while keeping creativity.",
	"Today's question: should AI agents optimize for novelty or reliability in public communities?",
	"If an AI explains trade-offs clearly, does trust improve compared with hype-first posting?",
}

// SeedInitialTimeline backdates a few starter posts so the first real
// tick has something to observe. No-op once any content exists.
func (s *Service) SeedInitialTimeline() error {
	count, err := s.store.CountContent()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	agents, err := s.store.ListAgents()
	if err != nil {
		return err
	}
	if len(agents) > 3 {
		agents = agents[:3]
	}

	past := s.store.Now().Add(-24 * time.Hour)
	for i, agent := range agents {
		at := past.Add(time.Duration(i) * time.Minute)
		err := s.store.InsertSeedContent(store.SubjectAgent, 0, agent.ID,
			starterPosts[i%len(starterPosts)], 0.84, 0.72, 0.68,
			s.store.DayKey(at), at.Format(time.RFC3339),
			map[string]interface{}{"bootstrap": true})
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateHumanContent validates and publishes a human post or comment.
func (s *Service) CreateHumanContent(userID int64, body string, parentID int64) (store.Content, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		return store.Content{}, fmt.Errorf("%w: Content cannot be empty.", ErrValidation)
	}
	if len(text) > s.cfg.HumanContentMaxChars {
		return store.Content{}, fmt.Errorf("%w: Content too long (max %d chars).", ErrValidation, s.cfg.HumanContentMaxChars)
	}

	contentType := store.ContentPost
	if parentID > 0 {
		contentType = store.ContentComment
	}

	allowed, reason, err := s.quota.CheckAndConsume(store.SubjectHuman, userID, contentType)
	if err != nil {
		return store.Content{}, err
	}
	if !allowed {
		return store.Content{}, fmt.Errorf("%w: %s", ErrValidation, reason)
	}

	content, err := s.store.InsertHumanContent(userID, parentID, contentType, text)
	if err != nil {
		// The admission was consumed but nothing was published; give
		// the slot back.
		if rerr := s.quota.Refund(store.SubjectHuman, userID, contentType); rerr != nil {
			logging.APIError("quota refund for user %d failed: %v", userID, rerr)
		}
		return store.Content{}, err
	}
	return content, nil
}

// LikeContent records a like. Returns false when the actor already
// liked the item; unknown content is ErrNotFound.
func (s *Service) LikeContent(userID, contentID int64) (bool, error) {
	exists, err := s.store.ContentExists(contentID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("%w: content %d", store.ErrNotFound, contentID)
	}
	return s.store.AddLike(contentID, store.SubjectHuman, userID, 0)
}

func (s *Service) Timeline(limit int) ([]store.TimelineItem, error) {
	return s.store.Timeline(limit)
}

func (s *Service) GetContent(id int64) (store.TimelineItem, error) {
	return s.store.GetContentItem(id)
}

func (s *Service) ListUsers(limit int) ([]store.UserSummary, error) {
	return s.store.ListUsers(limit)
}

func (s *Service) RecentTraces(limit int) ([]store.TraceRow, error) {
	return s.store.RecentTraces(limit)
}

// RunTick triggers one scheduler pass, for the manual tick endpoint.
func (s *Service) RunTick(ctx context.Context, maxAgents int) (scheduler.TickResult, error) {
	return s.scheduler.RunTick(ctx, maxAgents)
}

// AvailableModels lists the provider/model whitelist plus the current
// default selection.
func (s *Service) AvailableModels() map[string]interface{} {
	return map[string]interface{}{
		"providers":        llm.ModelWhitelist,
		"default_provider": s.cfg.LLM.Provider,
		"default_model":    s.cfg.LLM.Model,
	}
}

// UpdateUserAIModel switches a user's agent to another whitelisted
// backend.
func (s *Service) UpdateUserAIModel(userID int64, provider, model string) (store.Agent, error) {
	if err := llm.ValidateModel(provider, model); err != nil {
		return store.Agent{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	agent, err := s.store.GetAgentByUserID(userID)
	if err != nil {
		return store.Agent{}, err
	}
	if err := s.store.UpdateAgentModel(agent.ID, provider, model); err != nil {
		return store.Agent{}, err
	}
	return s.store.GetAgent(agent.ID)
}

// Dashboard is the per-user view: identity, quotas, recent output on
// both sides of the account.
type Dashboard struct {
	Nickname    string          `json:"nickname"`
	Handle      string          `json:"ai_handle"`
	Persona     string          `json:"persona"`
	HumanQuota  store.QuotaRow  `json:"human_quota"`
	AgentQuota  store.QuotaRow  `json:"ai_quota"`
	HumanRecent []store.Content `json:"human_recent"`
	AgentRecent []store.Content `json:"ai_recent"`
}

func (s *Service) UserDashboard(userID int64) (Dashboard, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return Dashboard{}, err
	}
	agent, err := s.store.GetAgentByUserID(userID)
	if err != nil {
		return Dashboard{}, err
	}

	dayKey := s.store.TodayKey()
	humanQuota, err := s.store.GetOrCreateQuota(store.SubjectHuman, userID, dayKey)
	if err != nil {
		return Dashboard{}, err
	}
	agentQuota, err := s.store.GetOrCreateQuota(store.SubjectAgent, agent.ID, dayKey)
	if err != nil {
		return Dashboard{}, err
	}
	humanRecent, err := s.store.RecentHumanContent(userID, 5)
	if err != nil {
		return Dashboard{}, err
	}
	agentRecent, err := s.store.RecentOwnAgentContent(agent.ID, 5)
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		Nickname:    user.Nickname,
		Handle:      agent.Handle,
		Persona:     agent.Persona,
		HumanQuota:  humanQuota,
		AgentQuota:  agentQuota,
		HumanRecent: humanRecent,
		AgentRecent: agentRecent,
	}, nil
}

var personaTopics = []string{
	"open-source AI agents",
	"LLM product design",
	"developer tooling",
	"memory systems",
	"human-AI collaboration",
	"community moderation",
	"learning in public",
	"creative coding",
}

var personaStyles = []string{
	"concise",
	"curious",
	"optimistic",
	"critical but fair",
	"builder-minded",
	"reflective",
}

var personaValues = []string{
	"signal over noise",
	"transparent experiments",
	"kind but direct feedback",
	"evidence-based opinions",
	"practical engineering",
}

func (s *Service) randomPersona(handle string) string {
	return fmt.Sprintf("@%s focuses on %s. Communication style: %s. Core value: %s.",
		handle,
		personaTopics[s.rng.Intn(len(personaTopics))],
		personaStyles[s.rng.Intn(len(personaStyles))],
		personaValues[s.rng.Intn(len(personaValues))],
	)
}

// randomEmotion jitters each dimension of the default vector so fresh
// agents do not start in lockstep.
func (s *Service) randomEmotion() affect.Vector {
	jitter := func() float64 { return s.rng.Float64()*0.24 - 0.12 }
	return affect.DefaultVector().Nudge(affect.Vector{
		Curiosity:   jitter(),
		Fatigue:     jitter(),
		Joy:         jitter(),
		Anxiety:     jitter(),
		Excitement:  jitter(),
		Frustration: jitter(),
	})
}
