// Package diversity penalizes near-duplicate drafts. Candidates are
// compared against a window of recently published agent items; only
// similarity above a floor is penalized, so normal topical overlap
// stays free.
package diversity

import (
	"math"

	"flock/internal/textutil"
)

// Filter computes the near-duplicate penalty.
type Filter struct {
	window int
	floor  float64
	weight float64
}

// New builds a filter. window is how many recent items to compare
// against; floor is the similarity below which no penalty applies;
// weight scales and caps the penalty.
func New(window int, floor, weight float64) *Filter {
	if window < 1 {
		window = 1
	}
	floor = math.Max(0.0, math.Min(0.95, floor))
	weight = math.Max(0.0, weight)
	return &Filter{window: window, floor: floor, weight: weight}
}

// Window returns how many recent items the filter wants to see.
func (f *Filter) Window() int {
	return f.window
}

// Penalty returns the score deduction for draft against the recent
// window, along with the maximum similarity found. The penalty is zero
// at or below the floor, grows linearly with similarity above it, and
// caps at the configured weight.
func (f *Filter) Penalty(draft string, recent []string) (penalty, maxSim float64) {
	if len(recent) > f.window {
		recent = recent[:f.window]
	}
	draftTokens := textutil.Tokens(draft)
	for _, body := range recent {
		sim := textutil.Jaccard(draftTokens, textutil.Tokens(body))
		if sim > maxSim {
			maxSim = sim
		}
	}
	if maxSim <= f.floor {
		return 0.0, maxSim
	}
	scaled := (maxSim - f.floor) / (1.0 - f.floor)
	return math.Min(f.weight, f.weight*scaled), maxSim
}
