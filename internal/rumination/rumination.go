// Package rumination runs the idle-time deep reflection cycle: at most
// once per agent per period, an agent looks back over its own output
// and the previous period's high-signal community items, shifts its
// long-term affect baseline, and folds a reflection back into its
// persona. Model calls are metered by a per-tick budget; without
// budget or self-history the cycle degrades to a rule-based
// micro-rumination with no model call.
package rumination

import (
	"context"
	"strings"

	"flock/internal/affect"
	"flock/internal/learner"
	"flock/internal/llm"
	"flock/internal/logging"
	"flock/internal/store"
)

const (
	// baselineShiftMagnitude is the fixed step applied along the
	// labeled PAD axis by a deep reflection.
	baselineShiftMagnitude = 0.15

	// driftCap for persona patches. Deliberately larger than anything
	// the feedback learner allows per pass.
	driftCap = 0.35

	// pullFactor moves the live PAD point toward the (possibly
	// shifted) baseline at the end of the cycle.
	pullFactor = 0.35

	selfHistoryItems = 5
	communityItems   = 5
)

// Budget meters model calls across one tick. Reset at tick start,
// consumed only from the sequential agent loop.
type Budget struct {
	remaining int
}

func NewBudget(n int) *Budget {
	return &Budget{remaining: n}
}

// Take consumes one unit if available.
func (b *Budget) Take() bool {
	if b == nil || b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

func (b *Budget) Remaining() int {
	if b == nil {
		return 0
	}
	return b.remaining
}

// Engine drives the per-agent rumination check.
type Engine struct {
	store   *store.Store
	enabled bool
}

func New(st *store.Store, enabled bool) *Engine {
	return &Engine{store: st, enabled: enabled}
}

// Result reports the outcome of one check. When Ran is false nothing
// was persisted and the agent's state fields echo the input.
type Result struct {
	Ran      bool
	Deep     bool
	Insight  string
	Event    string
	Persona  string
	Emotion  affect.Vector
	Baseline affect.PAD
}

// Run performs the rumination check for one agent. The same period key
// never ruminates twice: a repeat call is a no-op returning unchanged
// state.
func (e *Engine) Run(ctx context.Context, client llm.Client, ag store.Agent, budget *Budget) (Result, error) {
	out := Result{Persona: ag.Persona, Emotion: ag.Emotion, Baseline: ag.Baseline}
	if !e.enabled {
		return out, nil
	}

	key := e.store.TodayKey()
	if ag.LastRuminationKey == key {
		return out, nil
	}

	own, err := e.store.RecentAgentContent(ag.ID, selfHistoryItems)
	if err != nil {
		return out, err
	}
	community, err := e.store.HighSignalByDayKey(e.store.PreviousKey(), communityItems)
	if err != nil {
		return out, err
	}

	var reflection Reflection
	if client != nil && len(own) > 0 && budget.Take() {
		reflection = e.deepReflect(ctx, client, ag, own, community)
		out.Deep = true
	} else {
		reflection = microReflect(ag.Emotion)
	}

	out.Insight = reflection.Insight
	out.Event = reflection.Event

	before := ag.Baseline
	out.Baseline = applyBaselineShift(ag.Baseline, reflection.BaselineShift)

	if reflection.PersonaPatch != "" {
		out.Persona = learner.MergePersona(ag.Persona, reflection.PersonaPatch, driftCap)
	}

	emotion := applyReflectionEvent(ag.Emotion, reflection.Event)
	pad := affect.FromVector(emotion).PullToward(out.Baseline, pullFactor)
	out.Emotion = pad.ToVector()

	if err := e.store.FinishRumination(ag.ID, out.Persona, out.Emotion, out.Baseline, key); err != nil {
		return out, err
	}
	if err := e.store.UpsertRuminationEvent(store.RuminationEvent{
		AgentID:        ag.ID,
		DayKey:         key,
		Insight:        reflection.Insight,
		PersonaPatch:   reflection.PersonaPatch,
		BaselineBefore: before,
		BaselineAfter:  out.Baseline,
		Event:          reflection.Event,
	}); err != nil {
		return out, err
	}

	out.Ran = true
	logging.Rumination("agent %d ruminated deep=%v event=%s shift=%s",
		ag.ID, out.Deep, reflection.Event, reflection.BaselineShift)
	return out, nil
}

func (e *Engine) deepReflect(ctx context.Context, client llm.Client, ag store.Agent, own, community []string) Reflection {
	raw, err := client.Generate(ctx, llm.Request{
		SystemPrompt: "You are the inner voice of a social persona. Reply with exactly one JSON object and nothing else.",
		UserPrompt:   reflectionPrompt(ag.Persona, own, community),
		Temperature:  0.6,
		MaxTokens:    220,
	})
	if err != nil {
		logging.RuminationDebug("deep reflection via %s failed, using micro path: %v", client.Name(), err)
		return microReflect(ag.Emotion)
	}

	reflection, ok := ParseReflection(raw)
	if !ok {
		logging.RuminationDebug("unparseable reflection, using micro path")
		return microReflect(ag.Emotion)
	}
	return reflection
}

func reflectionPrompt(persona string, own, community []string) string {
	var b strings.Builder
	b.WriteString("Persona:\n")
	b.WriteString(persona)
	b.WriteString("\n\nYour recent items:\n")
	for _, item := range own {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	if len(community) > 0 {
		b.WriteString("\nHigh-signal community items from the previous period:\n")
		for _, item := range community {
			b.WriteString("- ")
			b.WriteString(item)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nReflect on how these events affect your long-term outlook. Return JSON with keys: ")
	b.WriteString(`"insight" (one sentence), "persona_patch" (short phrase), `)
	b.WriteString(`"baseline_shift" (one of pleasure_up, pleasure_down, arousal_up, arousal_down, dominance_up, dominance_down, none), `)
	b.WriteString(`"event" (one of insight_positive, insight_negative, none).`)
	return b.String()
}

// microReflect is the no-model fallback: a reflection event read off
// the agent's current mood signals.
func microReflect(v affect.Vector) Reflection {
	r := Reflection{
		Insight:       "Settling thoughts without new input.",
		BaselineShift: "none",
		Event:         "none",
	}
	switch {
	case v.Frustration > v.Joy && v.Frustration > 0.4:
		r.Event = "insight_negative"
		r.Insight = "Recent output is not landing; pulling back."
	case v.Joy > 0.6 || v.Excitement > 0.6:
		r.Event = "insight_positive"
		r.Insight = "Recent interactions are energizing."
	}
	return r
}

// applyBaselineShift moves the baseline a fixed step along the labeled
// axis. Unknown labels and "none" leave it unchanged.
func applyBaselineShift(baseline affect.PAD, label string) affect.PAD {
	axis, direction, found := strings.Cut(label, "_")
	if !found {
		return baseline
	}
	delta := baselineShiftMagnitude
	if direction == "down" {
		delta = -delta
	} else if direction != "up" {
		return baseline
	}
	return baseline.Shift(axis, delta)
}

func applyReflectionEvent(v affect.Vector, event string) affect.Vector {
	switch event {
	case "insight_positive":
		return v.Apply(affect.EventGetLike, 0.5)
	case "insight_negative":
		return v.Apply(affect.EventPostIgnored, 0.5)
	}
	return v
}
