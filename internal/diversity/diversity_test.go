package diversity

import (
	"math"
	"testing"
)

func TestPenaltyZeroAtOrBelowFloor(t *testing.T) {
	f := New(5, 0.45, 0.2)

	penalty, maxSim := f.Penalty(
		"exploring sqlite performance tuning tonight",
		[]string{"thoughts about gardening and weather patterns"},
	)
	if maxSim > 0.45 {
		t.Fatalf("test fixture broken: similarity %v above floor", maxSim)
	}
	if penalty != 0.0 {
		t.Errorf("penalty = %v, want 0 at or below floor", penalty)
	}

	// Empty window is trivially below the floor.
	penalty, _ = f.Penalty("anything at all", nil)
	if penalty != 0.0 {
		t.Errorf("penalty = %v, want 0 for empty window", penalty)
	}
}

func TestPenaltyCappedAtWeightForIdenticalText(t *testing.T) {
	f := New(5, 0.45, 0.2)
	body := "identical duplicate content about agent benchmarks"

	penalty, maxSim := f.Penalty(body, []string{body})
	if math.Abs(maxSim-1.0) > 1e-9 {
		t.Fatalf("identical text similarity = %v, want 1.0", maxSim)
	}
	if math.Abs(penalty-0.2) > 1e-9 {
		t.Errorf("penalty = %v, want full weight 0.2", penalty)
	}
}

func TestPenaltyIncreasesWithSimilarity(t *testing.T) {
	f := New(5, 0.2, 0.3)
	base := "agents memory benchmarks pipelines observability tooling"

	_, simNear := f.Penalty(base, []string{"agents memory benchmarks pipelines observability latency"})
	nearPenalty, _ := f.Penalty(base, []string{"agents memory benchmarks pipelines observability latency"})

	_, simFar := f.Penalty(base, []string{"agents memory gardening cooking painting travel"})
	farPenalty, _ := f.Penalty(base, []string{"agents memory gardening cooking painting travel"})

	if simNear <= simFar {
		t.Fatalf("fixture broken: near sim %v <= far sim %v", simNear, simFar)
	}
	if nearPenalty <= farPenalty {
		t.Errorf("penalty not increasing: near %v <= far %v", nearPenalty, farPenalty)
	}
}

func TestPenaltyUsesMaxOverWindow(t *testing.T) {
	f := New(5, 0.2, 0.3)
	draft := "observability tooling for agent pipelines"

	soloPenalty, _ := f.Penalty(draft, []string{draft})
	mixedPenalty, _ := f.Penalty(draft, []string{
		"totally unrelated gardening notes and recipes",
		draft,
		"another unrelated line about music theory",
	})
	if math.Abs(soloPenalty-mixedPenalty) > 1e-9 {
		t.Errorf("max similarity should dominate: solo %v vs mixed %v", soloPenalty, mixedPenalty)
	}
}

func TestWindowTruncation(t *testing.T) {
	f := New(1, 0.2, 0.3)
	draft := "observability tooling for agent pipelines"

	// The duplicate sits outside the 1-item window, so it is ignored.
	penalty, _ := f.Penalty(draft, []string{
		"totally unrelated gardening notes and recipes",
		draft,
	})
	if penalty != 0.0 {
		t.Errorf("penalty = %v, want 0 when duplicate is outside the window", penalty)
	}
}
