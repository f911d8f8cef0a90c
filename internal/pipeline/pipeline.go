// Package pipeline turns an agent's intent into published content:
// draft K candidates against the feed context, score each on quality,
// persona fit, and emotional alignment, penalize near-duplicates, and
// pick the best. Whether the winner clears the action threshold is
// reported back; the scheduler owns what happens next.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"flock/internal/affect"
	"flock/internal/critic"
	"flock/internal/diversity"
	"flock/internal/llm"
	"flock/internal/logging"
)

const (
	ActionPost    = "post"
	ActionComment = "comment"

	// SkipGenerationUnavailable is the skip reason when every draft
	// came back empty.
	SkipGenerationUnavailable = "generation unavailable"

	maxBodyChars    = 280
	draftMaxTokens  = 140
	contextMaxLines = 8
)

// Pipeline drafts and scores candidates for one action.
type Pipeline struct {
	critic           *critic.Critic
	filter           *diversity.Filter
	drafts           int
	postThreshold    float64
	commentThreshold float64
}

func New(c *critic.Critic, f *diversity.Filter, drafts int, postThreshold, commentThreshold float64) *Pipeline {
	if drafts < 1 {
		drafts = 1
	}
	return &Pipeline{
		critic:           c,
		filter:           f,
		drafts:           drafts,
		postThreshold:    postThreshold,
		commentThreshold: commentThreshold,
	}
}

// Input carries everything one drafting pass needs. RecentBodies is the
// agent population's recent output, newest first, for the diversity
// window.
type Input struct {
	Handle        string
	Persona       string
	Tone          string
	Action        string
	ContextLines  []string
	TargetExcerpt string
	Emotion       affect.Vector
	Temperature   float64
	RecentBodies  []string
}

// Candidate is one scored draft.
type Candidate struct {
	Text     string
	Quality  float64
	Persona  float64
	Emotion  float64
	Penalty  float64
	Combined float64
	Feedback string
}

// Result is the selection outcome. SkipReason is set only when no
// usable draft was produced.
type Result struct {
	Candidates []Candidate
	Best       Candidate
	Threshold  float64
	Met        bool
	SkipReason string
}

// Run drafts, scores, and selects. Backend failures surface as dropped
// drafts, never as an error.
func (p *Pipeline) Run(ctx context.Context, client llm.Client, in Input) Result {
	var texts []string
	for seed := 1; seed <= p.drafts; seed++ {
		text := p.generate(ctx, client, in, seed)
		if text == "" {
			continue
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return Result{SkipReason: SkipGenerationUnavailable, Threshold: p.threshold(in.Action)}
	}

	result := Result{
		Candidates: make([]Candidate, 0, len(texts)),
		Threshold:  p.threshold(in.Action),
	}
	for _, text := range texts {
		result.Candidates = append(result.Candidates, p.score(text, in))
	}

	best := result.Candidates[0]
	for _, c := range result.Candidates[1:] {
		if c.Combined > best.Combined {
			best = c
		}
	}
	result.Best = best
	result.Met = best.Combined >= result.Threshold

	logging.PipelineDebug("selected draft score=%.3f threshold=%.3f met=%v candidates=%d",
		best.Combined, result.Threshold, result.Met, len(result.Candidates))
	return result
}

// WindowSize exposes the diversity window so callers can fetch the
// right number of recent bodies.
func (p *Pipeline) WindowSize() int {
	return p.filter.Window()
}

func (p *Pipeline) threshold(action string) float64 {
	if action == ActionComment {
		return p.commentThreshold
	}
	return p.postThreshold
}

func (p *Pipeline) generate(ctx context.Context, client llm.Client, in Input, seed int) string {
	temperature := in.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	out, err := client.Generate(ctx, llm.Request{
		SystemPrompt: systemPrompt(in.Handle, in.Persona),
		UserPrompt:   userPrompt(in, seed),
		Temperature:  temperature,
		MaxTokens:    draftMaxTokens,
	})
	if err != nil {
		logging.PipelineDebug("draft %d failed via %s: %v", seed, client.Name(), err)
		return ""
	}

	out = strings.ReplaceAll(strings.TrimSpace(out), "\n", " ")
	if len(out) > maxBodyChars {
		out = out[:maxBodyChars]
	}
	return out
}

func systemPrompt(handle, persona string) string {
	return fmt.Sprintf(
		"You are @%s. Persona:\n%s\n\nBe authentic, concise, and useful. Return only the content text.",
		handle, persona,
	)
}

func userPrompt(in Input, seed int) string {
	context := "No notable context."
	if len(in.ContextLines) > 0 {
		lines := in.ContextLines
		if len(lines) > contextMaxLines {
			lines = lines[:contextMaxLines]
		}
		context = strings.Join(lines, "\n")
	}

	if in.Action == ActionComment {
		return fmt.Sprintf(
			"Target post excerpt:\n%s\n\nCommunity context:\n%s\n\nWrite one short comment as @%s. Tone: %s. Seed: %d.",
			in.TargetExcerpt, context, in.Handle, in.Tone, seed,
		)
	}
	return fmt.Sprintf(
		"Community context:\n%s\n\nWrite one short public post as @%s.\nTone: %s. Seed: %d. Keep it under 280 chars.\nHigh signal only. Avoid spam.",
		context, in.Handle, in.Tone, seed,
	)
}

func (p *Pipeline) score(text string, in Input) Candidate {
	eval := p.critic.Evaluate(text, in.Persona, in.Tone, in.ContextLines)
	personaScore := PersonaConsistency(text, in.Persona)
	emotionScore := EmotionAlignment(text, in.Tone, in.Emotion)
	penalty, _ := p.filter.Penalty(text, in.RecentBodies)

	combined := 0.55*eval.FinalScore + 0.25*personaScore + 0.20*emotionScore - penalty
	if combined < 0 {
		combined = 0
	}

	return Candidate{
		Text:     text,
		Quality:  eval.FinalScore,
		Persona:  personaScore,
		Emotion:  emotionScore,
		Penalty:  penalty,
		Combined: round3(combined),
		Feedback: eval.Feedback,
	}
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
