package affect

import "math"

// PAD is the continuous affect projection. Each axis stays in [-1,1].
type PAD struct {
	Pleasure  float64 `json:"P"`
	Arousal   float64 `json:"A"`
	Dominance float64 `json:"D"`
}

// centroids places each discrete emotion at an approximate PAD location.
// Values follow the usual PAD literature orderings: joy and excitement
// are pleasant and aroused, fatigue is unpleasant and deactivated,
// anxiety and frustration are unpleasant and aroused with low dominance.
// Curiosity sits well above the population's resting arousal so that
// curiosity-raising events raise arousal in the weighted projection
// instead of diluting it.
var centroids = map[string]PAD{
	"Curiosity":   {Pleasure: 0.22, Arousal: 0.70, Dominance: 0.17},
	"Fatigue":     {Pleasure: -0.18, Arousal: -0.57, Dominance: -0.29},
	"Joy":         {Pleasure: 0.76, Arousal: 0.48, Dominance: 0.35},
	"Anxiety":     {Pleasure: -0.51, Arousal: 0.59, Dominance: -0.35},
	"Excitement":  {Pleasure: 0.62, Arousal: 0.75, Dominance: 0.38},
	"Frustration": {Pleasure: -0.60, Arousal: 0.40, Dominance: -0.20},
}

// padEpsilon guards the discrete->PAD conversion against an all-zero
// weight vector.
const padEpsilon = 1e-6

// FromVector projects a discrete emotion vector onto PAD space as the
// magnitude-weighted average of the emotion centroids.
func FromVector(v Vector) PAD {
	weights := map[string]float64{
		"Curiosity":   v.Curiosity,
		"Fatigue":     v.Fatigue,
		"Joy":         v.Joy,
		"Anxiety":     v.Anxiety,
		"Excitement":  v.Excitement,
		"Frustration": v.Frustration,
	}
	total := padEpsilon
	var p PAD
	for name, w := range weights {
		c := centroids[name]
		p.Pleasure += c.Pleasure * w
		p.Arousal += c.Arousal * w
		p.Dominance += c.Dominance * w
		total += w
	}
	p.Pleasure /= total
	p.Arousal /= total
	p.Dominance /= total
	return p.Clamp()
}

// ToVector produces the continuous discrete-emotion readout for a PAD
// point: per emotion, similarity = max(0, 1 - distance/2). The result
// is not a probability distribution and the components need not sum
// to one.
func (p PAD) ToVector() Vector {
	read := func(name string) float64 {
		return math.Max(0.0, 1.0-p.distance(centroids[name])/2.0)
	}
	return Vector{
		Curiosity:   read("Curiosity"),
		Fatigue:     read("Fatigue"),
		Joy:         read("Joy"),
		Anxiety:     read("Anxiety"),
		Excitement:  read("Excitement"),
		Frustration: read("Frustration"),
	}.Clamp()
}

func (p PAD) distance(other PAD) float64 {
	dp := p.Pleasure - other.Pleasure
	da := p.Arousal - other.Arousal
	dd := p.Dominance - other.Dominance
	return math.Sqrt(dp*dp + da*da + dd*dd)
}

// Clamp bounds every axis to [-1,1].
func (p PAD) Clamp() PAD {
	p.Pleasure = clampAxis(p.Pleasure)
	p.Arousal = clampAxis(p.Arousal)
	p.Dominance = clampAxis(p.Dominance)
	return p
}

// PullToward moves the point a fraction of the way toward target.
// factor is clamped to [0,1]; 0 is a no-op, 1 lands on target. This is
// the baseline-inertia mechanic: mood regresses toward the long-term
// baseline each cycle, independent of instantaneous event reactions.
func (p PAD) PullToward(target PAD, factor float64) PAD {
	factor = math.Max(0.0, math.Min(1.0, factor))
	if factor >= 1 {
		// Land exactly on target; the incremental form can miss it by
		// a float ulp.
		return target.Clamp()
	}
	p.Pleasure += (target.Pleasure - p.Pleasure) * factor
	p.Arousal += (target.Arousal - p.Arousal) * factor
	p.Dominance += (target.Dominance - p.Dominance) * factor
	return p.Clamp()
}

// Shift adds a delta along one named axis ("pleasure", "arousal",
// "dominance"); any other label returns the point unchanged. Used by
// the rumination baseline shift.
func (p PAD) Shift(axis string, delta float64) PAD {
	switch axis {
	case "pleasure":
		p.Pleasure += delta
	case "arousal":
		p.Arousal += delta
	case "dominance":
		p.Dominance += delta
	}
	return p.Clamp()
}

func clampAxis(x float64) float64 {
	return math.Max(-1.0, math.Min(1.0, x))
}
