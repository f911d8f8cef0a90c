// Package learner replays an agent's own recent engagement back into
// its emotional state and persona. Each content item is consumed
// exactly once, tracked through the feedback ledger, so likes and
// replies influence the agent only the first time they are seen.
package learner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"flock/internal/affect"
	"flock/internal/llm"
	"flock/internal/logging"
	"flock/internal/store"
	"flock/internal/textutil"
)

const (
	// lookback is the trailing window of own content considered per
	// pass. Long enough for engagement to accumulate before the item
	// is consumed.
	lookback = 48 * time.Hour

	trendingItemSample = 30
	trendingTokenCount = 12

	personaMaxChars = 360
)

// Learner runs the feedback pass for one agent at a time.
type Learner struct {
	store *store.Store
}

func New(st *store.Store) *Learner {
	return &Learner{store: st}
}

// Outcome reports what one pass changed. Persona and Emotion are the
// post-pass values; the caller persists them.
type Outcome struct {
	Persona   string
	Emotion   affect.Vector
	Processed int
	Ignored   int
	MaxDrift  float64
	Phrase    string
}

// Process consumes unprocessed engagement for the agent. The client
// supplies the adaptation phrase; when it fails, a heuristic phrase
// stands in. Items are ledger-marked whether or not they changed
// anything.
func (l *Learner) Process(ctx context.Context, client llm.Client, ag store.Agent) (Outcome, error) {
	out := Outcome{Persona: ag.Persona, Emotion: ag.Emotion}

	since := l.store.Now().Add(-lookback).Format(time.RFC3339)
	items, err := l.store.AgentContentSince(ag.ID, since)
	if err != nil {
		return out, err
	}
	if len(items) == 0 {
		return out, nil
	}

	trend, err := l.trendingTokens()
	if err != nil {
		return out, err
	}
	personaTokens := textutil.Tokens(ag.Persona)

	totalEngagement := 0
	for _, item := range items {
		done, err := l.store.FeedbackProcessed(ag.ID, item.ID)
		if err != nil {
			return out, err
		}
		if done {
			continue
		}

		engagement := item.Likes + item.Replies
		itemTokens := textutil.Tokens(item.Body)
		drift := math.Max(0, textutil.Overlap(itemTokens, trend)-textutil.Overlap(itemTokens, personaTokens))

		out.Emotion = applySignals(out.Emotion, engagement, drift)
		out.Processed++
		totalEngagement += engagement
		if engagement == 0 {
			out.Ignored++
		}
		if drift > out.MaxDrift {
			out.MaxDrift = drift
		}

		if err := l.store.MarkFeedbackProcessed(ag.ID, item.ID); err != nil {
			return out, err
		}
	}
	if out.Processed == 0 {
		return out, nil
	}

	out.Phrase = l.adaptationPhrase(ctx, client, ag.Persona, out.Ignored, totalEngagement, out.MaxDrift)
	capFrac := driftCap(out.Ignored, totalEngagement, out.MaxDrift)
	out.Persona = MergePersona(ag.Persona, out.Phrase, capFrac)

	logging.Learner("agent %d processed=%d ignored=%d engagement=%d drift=%.3f cap=%.2f",
		ag.ID, out.Processed, out.Ignored, totalEngagement, out.MaxDrift, capFrac)
	return out, nil
}

// applySignals maps one item's engagement reading onto bounded emotion
// nudges.
func applySignals(v affect.Vector, engagement int, drift float64) affect.Vector {
	if engagement > 0 {
		v = v.Nudge(affect.Vector{
			Joy:         math.Min(0.15, 0.03*float64(engagement)),
			Excitement:  math.Min(0.10, 0.02*float64(engagement)),
			Frustration: -0.02,
		})
	} else {
		v = v.Nudge(affect.Vector{
			Frustration: 0.08,
			Fatigue:     0.04,
			Excitement:  -0.05,
		})
	}
	if drift > 0 {
		v = v.Nudge(affect.Vector{
			Anxiety:   math.Min(0.08, drift*0.2),
			Curiosity: math.Min(0.06, drift*0.15),
		})
	}
	return v
}

// driftCap adapts how much new vocabulary a single pass may introduce.
func driftCap(ignored, engagement int, maxDrift float64) float64 {
	c := 0.10
	if ignored > 0 {
		c += 0.05
	}
	if maxDrift > 0.3 {
		c += 0.05
	}
	if engagement >= 5 {
		c += 0.05
	}
	return math.Min(c, 0.25)
}

func (l *Learner) adaptationPhrase(ctx context.Context, client llm.Client, persona string, ignored, engagement int, drift float64) string {
	if client != nil {
		out, err := client.Generate(ctx, llm.Request{
			SystemPrompt: "You refine a social persona. Reply with one short phrase, under 12 words, no preamble.",
			UserPrompt: fmt.Sprintf(
				"Persona:\n%s\n\nRecent signals: engagement=%d ignored_items=%d topic_drift=%.2f.\nSuggest one adjustment phrase.",
				persona, engagement, ignored, drift,
			),
			Temperature: 0.6,
			MaxTokens:   40,
		})
		if err == nil {
			out = strings.TrimSpace(strings.ReplaceAll(out, "\n", " "))
			if out != "" {
				return out
			}
		} else {
			logging.Learner("adaptation phrase via %s failed: %v", client.Name(), err)
		}
	}

	switch {
	case ignored > 0:
		return "Trying shorter, more concrete takes."
	case drift > 0.3:
		return "Leaning back into core topics."
	default:
		return "Doubling down on what resonated."
	}
}

// trendingTokens builds the community trending set: the most frequent
// tokens across a sample of recent items.
func (l *Learner) trendingTokens() (map[string]bool, error) {
	bodies, err := l.store.RecentContent(trendingItemSample)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, body := range bodies {
		for token := range textutil.Tokens(body) {
			counts[token]++
		}
	}

	type tc struct {
		token string
		count int
	}
	ranked := make([]tc, 0, len(counts))
	for token, count := range counts {
		ranked = append(ranked, tc{token, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].token < ranked[j].token
	})

	trend := make(map[string]bool, trendingTokenCount)
	for i, entry := range ranked {
		if i == trendingTokenCount {
			break
		}
		trend[entry.token] = true
	}
	return trend, nil
}

// MergePersona appends a bounded amount of new vocabulary from the
// phrase to the persona. Tokens the persona already carries are
// filtered first; capFraction of the current persona token count
// limits how many survivors are kept. The rumination engine reuses
// this with a larger cap.
func MergePersona(persona, phrase string, capFraction float64) string {
	personaTokens := textutil.Tokens(persona)
	allowed := int(float64(len(personaTokens)) * capFraction)
	if allowed < 1 {
		allowed = 1
	}

	var fresh []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(phrase) {
		token := strings.ToLower(strings.Trim(word, ".,!?:;\"'()"))
		if len(token) < 4 || personaTokens[token] || seen[token] {
			continue
		}
		if !textutil.IsWord(token) {
			continue
		}
		seen[token] = true
		fresh = append(fresh, token)
		if len(fresh) == allowed {
			break
		}
	}
	if len(fresh) == 0 {
		return persona
	}

	merged := fmt.Sprintf("%s Adapting: %s.", persona, strings.Join(fresh, " "))
	if len(merged) > personaMaxChars {
		merged = merged[:personaMaxChars]
	}
	return merged
}
