package critic

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestRuleScore(t *testing.T) {
	tests := []struct {
		name    string
		content string
		context []string
		want    float64
	}{
		{
			name:    "ideal length with markers and overlap",
			content: "New open-source agent workflow with memory reflection. #AI #flock",
			context: []string{"agent workflow", "memory reflection"},
			// base 0.35 + length 0.2 + marker 0.1 + punctuation
			// 0.05 + overlap 4/7 of the word set giving 0.143
			want: 0.843,
		},
		{
			name:    "short bare text",
			content: "hi",
			// base 0.35 + punctuation 0.05
			want: 0.4,
		},
		{
			name:    "medium length without context",
			content: "a perfectly reasonable remark",
			// base 0.35 + short-length 0.1 + punctuation 0.05
			want: 0.5,
		},
		{
			name:    "excessive exclamation loses the punctuation bonus",
			content: strings.Repeat("wow!!! ", 10),
			// base 0.35 + length-band 0.2 (49 chars)
			want: 0.55,
		},
		{
			name:    "link bonus",
			content: "see https://example.com for the full writeup of it",
			// base 0.35 + length 0.2 + http 0.05 + punctuation 0.05
			want: 0.65,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RuleScore(tt.content, tt.context)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RuleScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRuleScoreBounded(t *testing.T) {
	long := strings.Repeat("benchmark tooling pipelines observability ", 40)
	got := RuleScore(long+" #AI http://x !", []string{long})
	if got < 0.0 || got > 1.0 {
		t.Errorf("RuleScore escaped [0,1]: %v", got)
	}
}

func TestParseModelScore(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     float64
		wantOK   bool
		feedback string
	}{
		{
			name:     "well formed",
			raw:      "SCORE=0.8;FEEDBACK=Clear and on-topic.",
			want:     0.8,
			wantOK:   true,
			feedback: "Clear and on-topic.",
		},
		{
			name:   "spaces around equals",
			raw:    "SCORE = 0.55 ; FEEDBACK = fine",
			want:   0.55,
			wantOK: true,
		},
		{
			name:   "integer score",
			raw:    "SCORE=1;FEEDBACK=perfect",
			want:   1.0,
			wantOK: true,
		},
		{
			name:     "free text without score",
			raw:      "I think this draft is pretty good overall.",
			wantOK:   false,
			feedback: "I think this draft is pretty good overall.",
		},
		{
			name:   "out of range score is not matched",
			raw:    "SCORE=7;FEEDBACK=suspicious",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, feedback, ok := ParseModelScore(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(score-tt.want) > 1e-9 {
				t.Errorf("score = %v, want %v", score, tt.want)
			}
			if tt.feedback != "" && feedback != tt.feedback {
				t.Errorf("feedback = %q, want %q", feedback, tt.feedback)
			}
		})
	}
}

func TestEvaluateRuleOnly(t *testing.T) {
	c := New(nil, 1.0)
	eval := c.Evaluate("a perfectly reasonable remark", "persona", "objective", nil)
	if eval.ModelScore != -1.0 {
		t.Errorf("ModelScore = %v, want -1 when disabled", eval.ModelScore)
	}
	if eval.FinalScore != eval.RuleScore {
		t.Errorf("FinalScore = %v, want rule score %v", eval.FinalScore, eval.RuleScore)
	}
}

func TestEvaluateBlendsModelScore(t *testing.T) {
	invoke := func(prompt string) (string, error) {
		return "SCORE=1.0;FEEDBACK=excellent", nil
	}
	c := New(invoke, 1.0)
	eval := c.Evaluate("a perfectly reasonable remark", "persona", "objective", nil)

	want := math.Round((0.6*eval.RuleScore+0.4*1.0)*1000) / 1000
	if math.Abs(eval.FinalScore-want) > 1e-9 {
		t.Errorf("FinalScore = %v, want blend %v", eval.FinalScore, want)
	}
	if eval.Feedback != "excellent" {
		t.Errorf("Feedback = %q", eval.Feedback)
	}
}

func TestEvaluateModelFailureFallsBack(t *testing.T) {
	invoke := func(prompt string) (string, error) {
		return "", errors.New("backend down")
	}
	c := New(invoke, 1.0)
	eval := c.Evaluate("a perfectly reasonable remark", "persona", "objective", nil)
	if eval.ModelScore != -1.0 {
		t.Errorf("ModelScore = %v, want -1 on failure", eval.ModelScore)
	}
	if eval.FinalScore != eval.RuleScore {
		t.Errorf("FinalScore = %v, want rule score fallback", eval.FinalScore)
	}
	if !strings.Contains(eval.Feedback, "backend down") {
		t.Errorf("Feedback should carry the error, got %q", eval.Feedback)
	}
}

func TestStrictnessCompressesAndSaturates(t *testing.T) {
	content := "a perfectly reasonable remark" // rule score 0.5

	strict := New(nil, 2.0)
	if got := strict.Evaluate(content, "p", "objective", nil).FinalScore; math.Abs(got-0.25) > 1e-9 {
		t.Errorf("strict FinalScore = %v, want 0.25", got)
	}

	// Lenient strictness divides upward; the clamp catches the
	// overshoot at 1.0.
	lenient := New(nil, 0.5)
	if got := lenient.Evaluate(content, "p", "objective", nil).FinalScore; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("lenient FinalScore = %v, want saturated 1.0", got)
	}
}
