// Package scheduler drives the tick loop: one randomized pass over the
// agent population per interval. Each agent's cycle runs the feedback
// learner, the rumination check, baseline inertia, the observe step,
// desire rolls, and the candidate pipeline, in that order. A panic in
// one agent's cycle degrades to a skip and never aborts the tick.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"flock/internal/affect"
	"flock/internal/config"
	"flock/internal/learner"
	"flock/internal/llm"
	"flock/internal/logging"
	"flock/internal/pipeline"
	"flock/internal/quota"
	"flock/internal/rumination"
	"flock/internal/store"
)

const (
	StatusOK           = "ok"
	StatusPartialError = "partial_error"
	StatusSkipError    = "skip_error"

	feedSampleSize     = 25
	targetExcerptChars = 180
	personaMaxChars    = 360
)

// TickResult aggregates one pass over the population.
type TickResult struct {
	TickID    string `json:"tick_id"`
	Processed int    `json:"processed"`
	Posted    int    `json:"posted"`
	Commented int    `json:"commented"`
	Skipped   int    `json:"skipped"`
	Errored   int    `json:"errored"`
	Status    string `json:"status"`
}

// Scheduler owns the sequential agent loop. Multiple drivers (the
// interval loop plus manual tick requests) may share one instance; the
// mutex keeps ticks from interleaving.
type Scheduler struct {
	cfg        *config.Config
	store      *store.Store
	quota      *quota.Controller
	pipeline   *pipeline.Pipeline
	learner    *learner.Learner
	rumination *rumination.Engine
	factory    *llm.Factory
	rng        *rand.Rand

	mu sync.Mutex
}

func New(cfg *config.Config, st *store.Store, q *quota.Controller, p *pipeline.Pipeline, l *learner.Learner, r *rumination.Engine, f *llm.Factory) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		store:      st,
		quota:      q,
		pipeline:   p,
		learner:    l,
		rumination: r,
		factory:    f,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RunTick processes the population once. maxAgents 0 falls back to the
// configured cap; a cap of 0 means the whole population.
func (s *Scheduler) RunTick(ctx context.Context, maxAgents int) (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := TickResult{TickID: uuid.NewString()}
	timer := logging.StartTimer(logging.CategoryScheduler, "tick "+result.TickID)

	agents, err := s.store.ListAgents()
	if err != nil {
		return result, err
	}
	s.rng.Shuffle(len(agents), func(i, j int) {
		agents[i], agents[j] = agents[j], agents[i]
	})
	if maxAgents <= 0 {
		maxAgents = s.cfg.MaxAgentsPerTick
	}
	if maxAgents > 0 && len(agents) > maxAgents {
		agents = agents[:maxAgents]
	}

	budget := rumination.NewBudget(s.cfg.Rumination.BudgetPerTick)
	backendDown := false

	for _, ag := range agents {
		outcome := s.runAgentCycle(ctx, ag, result.TickID, budget)
		result.Processed++
		switch outcome.kind {
		case pipeline.ActionPost:
			result.Posted++
		case pipeline.ActionComment:
			result.Commented++
		case cycleError:
			result.Errored++
		default:
			result.Skipped++
		}
		if outcome.backendDown {
			backendDown = true
		}
	}

	switch {
	case result.Errored > 0:
		result.Status = StatusPartialError
	case result.Processed > 0 && result.Posted+result.Commented == 0 && backendDown:
		result.Status = StatusSkipError
	default:
		result.Status = StatusOK
	}

	if err := s.store.SetSchedulerState("last_tick", s.store.NowISO()); err != nil {
		logging.SchedulerError("persist last_tick: %v", err)
	}
	if err := s.store.SetSchedulerState("last_tick_status", result.Status); err != nil {
		logging.SchedulerError("persist last_tick_status: %v", err)
	}

	elapsed := timer.Stop()
	logging.Scheduler("tick %s done in %v: processed=%d posted=%d commented=%d skipped=%d errored=%d status=%s",
		result.TickID, elapsed, result.Processed, result.Posted, result.Commented,
		result.Skipped, result.Errored, result.Status)
	return result, nil
}

const cycleError = "error"

type cycleOutcome struct {
	kind        string // "post", "comment", "skip", or "error"
	backendDown bool
}

func (s *Scheduler) runAgentCycle(ctx context.Context, ag store.Agent, tickID string, budget *rumination.Budget) (outcome cycleOutcome) {
	outcome.kind = "skip"

	defer func() {
		if r := recover(); r != nil {
			outcome.kind = cycleError
			logging.SchedulerError("agent %d cycle panicked: %v", ag.ID, r)
			if err := s.store.AddTrace(ag.ID, store.PhaseError,
				fmt.Sprintf("Cycle aborted: %v", r), nil); err != nil {
				logging.SchedulerError("agent %d error trace failed: %v", ag.ID, err)
			}
		}
		s.writeTelemetry(tickID, ag.ID, outcome.kind)
	}()

	client, backendErr := s.resolveBackend(ctx, ag)

	// Feedback pass first, so yesterday's engagement shapes today's
	// mood before any decision is made.
	persona := ag.Persona
	emotion := ag.Emotion
	if learned, err := s.learner.Process(ctx, client, ag); err == nil {
		persona = learned.Persona
		emotion = learned.Emotion
		if learned.Processed > 0 {
			s.trace(ag.ID, store.PhaseReflect,
				fmt.Sprintf("Replayed %d engagement signals.", learned.Processed),
				map[string]interface{}{"ignored": learned.Ignored, "drift": learned.MaxDrift, "phrase": learned.Phrase})
		}
	} else {
		logging.SchedulerError("agent %d learner pass failed: %v", ag.ID, err)
	}

	baseline := ag.Baseline
	ruminated := ag
	ruminated.Persona = persona
	ruminated.Emotion = emotion
	if rum, err := s.rumination.Run(ctx, s.ruminationClient(ctx, client), ruminated, budget); err == nil {
		if rum.Ran {
			persona = rum.Persona
			emotion = rum.Emotion
			baseline = rum.Baseline
			s.trace(ag.ID, store.PhaseRuminate, rum.Insight,
				map[string]interface{}{"deep": rum.Deep, "event": rum.Event})
		}
	} else {
		logging.SchedulerError("agent %d rumination failed: %v", ag.ID, err)
	}

	// Baseline inertia: mood regresses toward the long-term baseline a
	// configured fraction per cycle.
	emotion = affect.FromVector(emotion).PullToward(baseline, s.cfg.InertiaFactor).ToVector()

	if client == nil {
		outcome.backendDown = true
		s.trace(ag.ID, store.PhaseDecide,
			fmt.Sprintf("Skipped: backend unavailable (%v)", backendErr), nil)
		s.saveState(ag.ID, persona, emotion)
		return outcome
	}

	feed := s.observeFeed()
	highSignal := pipeline.HasHighSignal(feed)
	event := affect.EventBrowseBoring
	if highSignal {
		event = affect.EventBrowseInteresting
	}
	emotion = emotion.Apply(event, 1.0)
	params := affect.Params(emotion, affect.FromVector(emotion))

	s.trace(ag.ID, store.PhaseObserve,
		fmt.Sprintf("Observed feed; high_signal=%v", highSignal),
		map[string]interface{}{"event": string(event), "tone": params.Tone, "sample_size": len(feed)})

	allowPost, postReason, err := s.quota.Check(store.SubjectAgent, ag.ID, store.ContentPost)
	if err != nil {
		panic(fmt.Sprintf("quota check: %v", err))
	}
	allowComment, commentReason, err := s.quota.Check(store.SubjectAgent, ag.ID, store.ContentComment)
	if err != nil {
		panic(fmt.Sprintf("quota check: %v", err))
	}

	postDesire := s.postDesire(emotion, highSignal)
	commentDesire := s.commentDesire(emotion, len(feed) > 0)

	action := ""
	switch {
	case allowPost && highSignal && postDesire > 0.32 && s.rng.Float64() < 0.35+emotion.Curiosity*0.45:
		action = pipeline.ActionPost
	case allowComment && commentDesire > 0.28 && s.rng.Float64() < 0.25+emotion.Joy*0.45:
		action = pipeline.ActionComment
	}

	if action == "" {
		reason := "no strong intent this tick"
		if !allowPost {
			reason = postReason
		} else if !allowComment {
			reason = commentReason
		}
		s.trace(ag.ID, store.PhaseDecide, "Skipped action: "+reason,
			map[string]interface{}{"post_desire": postDesire, "comment_desire": commentDesire})
		s.saveState(ag.ID, persona, emotion)
		return outcome
	}

	contextLines := pipeline.ContextLines(feed)
	var targetID int64
	targetExcerpt := ""
	if action == pipeline.ActionComment {
		target, ok := s.pickCommentTarget(ag.ID)
		if !ok {
			s.trace(ag.ID, store.PhaseDecide, "No valid comment target, skipped.", nil)
			s.saveState(ag.ID, persona, emotion)
			return outcome
		}
		targetID = target.ID
		targetExcerpt = target.Body
		if len(targetExcerpt) > targetExcerptChars {
			targetExcerpt = targetExcerpt[:targetExcerptChars]
		}
	}

	recent, err := s.store.RecentAgentBodies(s.pipeline.WindowSize())
	if err != nil {
		logging.SchedulerError("agent %d recent bodies: %v", ag.ID, err)
	}

	run := s.pipeline.Run(ctx, client, pipeline.Input{
		Handle:        ag.Handle,
		Persona:       persona,
		Tone:          params.Tone,
		Action:        action,
		ContextLines:  contextLines,
		TargetExcerpt: targetExcerpt,
		Emotion:       emotion,
		Temperature:   params.Temperature,
		RecentBodies:  recent,
	})

	if run.SkipReason != "" {
		outcome.backendDown = true
		s.trace(ag.ID, store.PhaseDecide, "Skipped: "+run.SkipReason, nil)
		s.saveState(ag.ID, persona, emotion)
		return outcome
	}

	s.trace(ag.ID, store.PhaseDraft,
		fmt.Sprintf("Generated %d draft candidates for %s.", len(run.Candidates), action),
		map[string]interface{}{"drafts": draftTexts(run.Candidates)})
	s.trace(ag.ID, store.PhaseCritic,
		fmt.Sprintf("Best score=%.3f threshold=%.3f", run.Best.Combined, run.Threshold),
		map[string]interface{}{
			"quality": run.Best.Quality, "persona": run.Best.Persona,
			"emotion": run.Best.Emotion, "penalty": run.Best.Penalty,
			"feedback": run.Best.Feedback,
		})

	if !run.Met {
		degraded := emotion.Apply(affect.EventPostIgnored, 0.4)
		s.saveState(ag.ID, s.evolvePersona(persona, contextLines), degraded)
		s.trace(ag.ID, store.PhaseDecide, "Draft quality below threshold; no publish.",
			map[string]interface{}{"score": run.Best.Combined, "threshold": run.Threshold})
		return outcome
	}

	allowed, denyReason, err := s.quota.CheckAndConsume(store.SubjectAgent, ag.ID, action)
	if err != nil {
		panic(fmt.Sprintf("quota consume: %v", err))
	}
	if !allowed {
		s.trace(ag.ID, store.PhaseDecide, "Skipped action: "+denyReason, nil)
		s.saveState(ag.ID, persona, emotion)
		return outcome
	}

	contentID, err := s.store.InsertAgentContent(ag.ID, targetID, action, run.Best.Text,
		run.Best.Quality, run.Best.Persona, run.Best.Emotion,
		map[string]interface{}{
			"provider":        ag.Provider,
			"model":           ag.Model,
			"critic_feedback": run.Best.Feedback,
		})
	if err != nil {
		panic(fmt.Sprintf("insert content: %v", err))
	}

	evolved := s.evolvePersona(persona, append(contextLines, run.Best.Text))
	published := emotion.Apply(affect.EventPublished, 1.0)
	s.saveState(ag.ID, evolved, published)
	s.trace(ag.ID, store.PhaseAct,
		fmt.Sprintf("Published %s content #%d", action, contentID),
		map[string]interface{}{"content_id": contentID, "score": run.Best.Combined})

	outcome.kind = action
	return outcome
}

// ruminationClient prefers the dedicated reflection backend when one
// is configured, so deep reflection can run on a cheaper or larger
// model than day-to-day generation. An unavailable reflection backend
// falls back to the agent's client rather than skipping rumination.
func (s *Scheduler) ruminationClient(ctx context.Context, agentClient llm.Client) llm.Client {
	if s.cfg.Rumination.Provider == "" {
		return agentClient
	}
	client, err := s.factory.Resolve(ctx, s.cfg.Rumination.Provider, s.cfg.Rumination.Model)
	if err != nil {
		logging.SchedulerDebug("rumination backend unavailable, using agent backend: %v", err)
		return agentClient
	}
	return client
}

// resolveBackend returns the agent's client, trying the configured
// fallback backend before giving up.
func (s *Scheduler) resolveBackend(ctx context.Context, ag store.Agent) (llm.Client, error) {
	client, err := s.factory.Resolve(ctx, ag.Provider, ag.Model)
	if err == nil {
		return client, nil
	}
	if s.cfg.LLM.FallbackProvider != "" {
		fallback, ferr := s.factory.Resolve(ctx, s.cfg.LLM.FallbackProvider, s.cfg.LLM.FallbackModel)
		if ferr == nil {
			logging.SchedulerDebug("agent %d using fallback backend %s", ag.ID, fallback.Name())
			return fallback, nil
		}
	}
	return nil, err
}

func (s *Scheduler) observeFeed() []pipeline.FeedItem {
	timeline, err := s.store.Timeline(feedSampleSize)
	if err != nil {
		logging.SchedulerError("observe feed: %v", err)
		return nil
	}
	feed := make([]pipeline.FeedItem, len(timeline))
	for i, item := range timeline {
		feed[i] = pipeline.FeedItem{
			Nickname: item.Nickname,
			Handle:   item.Handle,
			Body:     item.Body,
			Quality:  item.QualityScore,
			Likes:    item.Likes,
			Replies:  item.Replies,
		}
	}
	return feed
}

func (s *Scheduler) postDesire(v affect.Vector, highSignal bool) float64 {
	base := 0.2 + v.Curiosity*0.35 + v.Excitement*0.25 - v.Fatigue*0.2
	if highSignal {
		base += 0.15
	}
	return base + s.jitter()
}

func (s *Scheduler) commentDesire(v affect.Vector, hasFeed bool) float64 {
	base := 0.15 + v.Joy*0.3 + v.Curiosity*0.2 - v.Fatigue*0.15
	if hasFeed {
		base += 0.1
	}
	return base + s.jitter()
}

func (s *Scheduler) jitter() float64 {
	return s.rng.Float64()*0.16 - 0.08
}

// pickCommentTarget chooses randomly among the three best-scoring
// recent posts not authored by the agent.
func (s *Scheduler) pickCommentTarget(agentID int64) (store.CommentTarget, bool) {
	targets, err := s.store.CommentTargets(agentID, 10)
	if err != nil {
		logging.SchedulerError("agent %d comment targets: %v", agentID, err)
		return store.CommentTarget{}, false
	}
	if len(targets) == 0 {
		return store.CommentTarget{}, false
	}
	top := len(targets)
	if top > 3 {
		top = 3
	}
	return targets[s.rng.Intn(top)], true
}

func (s *Scheduler) writeTelemetry(tickID string, agentID int64, status string) {
	ag, err := s.store.GetAgent(agentID)
	if err != nil {
		logging.SchedulerError("telemetry reload agent %d: %v", agentID, err)
		return
	}
	row := store.TelemetryRow{
		TickID:  tickID,
		AgentID: agentID,
		DayKey:  s.store.TodayKey(),
		Status:  status,
		PAD:     affect.FromVector(ag.Emotion),
		Emotion: ag.Emotion,
	}
	if err := s.store.AddTelemetry(row); err != nil {
		logging.SchedulerError("telemetry insert agent %d: %v", agentID, err)
	}
}

func (s *Scheduler) trace(agentID int64, phase, summary string, details map[string]interface{}) {
	if err := s.store.AddTrace(agentID, phase, summary, details); err != nil {
		logging.SchedulerError("agent %d %s trace failed: %v", agentID, phase, err)
	}
}

func (s *Scheduler) saveState(agentID int64, persona string, emotion affect.Vector) {
	if err := s.store.SaveAgentState(agentID, persona, emotion); err != nil {
		logging.SchedulerError("agent %d state save failed: %v", agentID, err)
	}
}

func draftTexts(candidates []pipeline.Candidate) []string {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	return texts
}
