// Package affect maintains each agent's emotional state: a 6-dimensional
// discrete emotion vector in [0,1] per dimension, and a continuous PAD
// (Pleasure/Arousal/Dominance) projection in [-1,1] per axis. The vector
// is the only thing events mutate; the PAD view is derived and feeds
// generation parameters and the long-term baseline mechanics.
package affect

import "math"

// Event identifies a fixed affect impulse. Unknown events are no-ops.
type Event string

const (
	EventBrowseInteresting Event = "browse_interesting"
	EventBrowseBoring      Event = "browse_boring"
	EventGetLike           Event = "get_like"
	EventGetReply          Event = "get_reply"
	EventPostIgnored       Event = "post_ignored"
	EventPublished         Event = "published"
	EventError             Event = "error"
)

// Vector is the discrete emotion readout. All components stay in [0,1].
type Vector struct {
	Curiosity   float64 `json:"Curiosity"`
	Fatigue     float64 `json:"Fatigue"`
	Joy         float64 `json:"Joy"`
	Anxiety     float64 `json:"Anxiety"`
	Excitement  float64 `json:"Excitement"`
	Frustration float64 `json:"Frustration"`
}

// DefaultVector is the bootstrap emotional state for a fresh agent.
func DefaultVector() Vector {
	return Vector{
		Curiosity:   0.5,
		Fatigue:     0.0,
		Joy:         0.5,
		Anxiety:     0.2,
		Excitement:  0.3,
		Frustration: 0.1,
	}
}

// eventImpacts maps each event to its per-dimension delta. Scaled by
// intensity at application time.
var eventImpacts = map[Event]Vector{
	EventBrowseInteresting: {Curiosity: +0.1, Joy: +0.05, Fatigue: -0.05},
	EventBrowseBoring:      {Fatigue: +0.1, Curiosity: -0.05, Frustration: +0.05},
	EventGetLike:           {Joy: +0.1, Excitement: +0.1, Frustration: -0.05},
	EventGetReply:          {Joy: +0.15, Curiosity: +0.05, Anxiety: +0.02},
	EventPostIgnored:       {Frustration: +0.1, Fatigue: +0.05, Excitement: -0.1},
	EventPublished:         {Joy: +0.08, Excitement: +0.06, Fatigue: +0.03},
	EventError:             {Frustration: +0.2, Anxiety: +0.1},
}

// Apply returns the vector after an event at the given intensity,
// clamped back into range. Unknown events return the input unchanged.
func (v Vector) Apply(event Event, intensity float64) Vector {
	impact, ok := eventImpacts[event]
	if !ok {
		return v
	}
	v.Curiosity += impact.Curiosity * intensity
	v.Fatigue += impact.Fatigue * intensity
	v.Joy += impact.Joy * intensity
	v.Anxiety += impact.Anxiety * intensity
	v.Excitement += impact.Excitement * intensity
	v.Frustration += impact.Frustration * intensity
	return v.Clamp()
}

// Clamp bounds every component to [0,1].
func (v Vector) Clamp() Vector {
	v.Curiosity = clamp01(v.Curiosity)
	v.Fatigue = clamp01(v.Fatigue)
	v.Joy = clamp01(v.Joy)
	v.Anxiety = clamp01(v.Anxiety)
	v.Excitement = clamp01(v.Excitement)
	v.Frustration = clamp01(v.Frustration)
	return v
}

// Nudge adds raw per-dimension deltas (used by the feedback learner)
// and clamps the result.
func (v Vector) Nudge(delta Vector) Vector {
	v.Curiosity += delta.Curiosity
	v.Fatigue += delta.Fatigue
	v.Joy += delta.Joy
	v.Anxiety += delta.Anxiety
	v.Excitement += delta.Excitement
	v.Frustration += delta.Frustration
	return v.Clamp()
}

// Distance is the mean absolute per-dimension difference, used by the
// emotion-continuity metric.
func (v Vector) Distance(other Vector) float64 {
	sum := math.Abs(v.Curiosity-other.Curiosity) +
		math.Abs(v.Fatigue-other.Fatigue) +
		math.Abs(v.Joy-other.Joy) +
		math.Abs(v.Anxiety-other.Anxiety) +
		math.Abs(v.Excitement-other.Excitement) +
		math.Abs(v.Frustration-other.Frustration)
	return sum / 6.0
}

func clamp01(x float64) float64 {
	return math.Max(0.0, math.Min(1.0, x))
}
