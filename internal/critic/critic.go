// Package critic scores draft content. A deterministic rule score is
// blended with an optional model-assisted score, then compressed by
// the configured strictness divisor. The critic never fails: a broken
// model response just degrades to the rule score.
package critic

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"flock/internal/logging"
)

// InvokeFunc asks the generation backend for a critic verdict. A nil
// func disables the model-assisted path.
type InvokeFunc func(prompt string) (string, error)

// Evaluation is the scored verdict for one draft.
type Evaluation struct {
	FinalScore float64
	RuleScore  float64
	ModelScore float64 // -1 when the model path was unavailable
	Feedback   string
}

// Critic blends rule and model scoring under a strictness divisor.
type Critic struct {
	invoke     InvokeFunc
	strictness float64
}

// New builds a critic. strictness below 1 inflates scores before the
// final clamp; above 1 it compresses them. The config floor is 0.5.
func New(invoke InvokeFunc, strictness float64) *Critic {
	if strictness <= 0 {
		strictness = 1.0
	}
	return &Critic{invoke: invoke, strictness: strictness}
}

var wordPattern = regexp.MustCompile(`[a-zA-Z]{4,}`)

// The rule scorer ignores only glue words; the full stopword set lives
// in textutil and serves the similarity scorers.
var ruleStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "have": true, "from": true,
}

// RuleScore computes the deterministic quality estimate: a base value
// plus bonuses for length band, attribution markers, a link, restrained
// punctuation, and lexical overlap with the supplied context.
func RuleScore(content string, context []string) float64 {
	score := 0.35
	contentLen := len(strings.TrimSpace(content))
	switch {
	case contentLen >= 40 && contentLen <= 280:
		score += 0.2
	case contentLen > 20:
		score += 0.1
	}

	if strings.Contains(content, "#AI") || strings.Contains(strings.ToLower(content), "#flock") {
		score += 0.1
	}
	if strings.Contains(content, "http") {
		score += 0.05
	}
	if strings.Count(content, "!") <= 2 {
		score += 0.05
	}
	if len(context) > 0 {
		overlap := contextOverlap(content, context)
		score += math.Min(0.25, overlap*0.25)
	}

	return clamp01(round3(score))
}

// contextOverlap is the fraction of content words present anywhere in
// the joined context text.
func contextOverlap(content string, context []string) float64 {
	source := strings.ToLower(strings.Join(context, " "))
	words := map[string]bool{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(content), -1) {
		if !ruleStopwords[w] {
			words[w] = true
		}
	}
	if len(words) == 0 {
		return 0.0
	}
	hits := 0
	for w := range words {
		if strings.Contains(source, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

var (
	scorePattern    = regexp.MustCompile(`SCORE\s*=\s*([0-1](?:\.\d+)?)`)
	feedbackPattern = regexp.MustCompile(`FEEDBACK\s*=\s*(.+)`)
)

// ParseModelScore extracts a SCORE=<x>;FEEDBACK=<text> verdict from a
// raw model response. ok is false when no score could be parsed; the
// feedback then carries the raw text for diagnostics.
func ParseModelScore(raw string) (score float64, feedback string, ok bool) {
	if m := feedbackPattern.FindStringSubmatch(raw); m != nil {
		feedback = strings.TrimSpace(m[1])
	} else {
		feedback = strings.TrimSpace(raw)
	}

	m := scorePattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, feedback, false
	}
	parsed, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, feedback, false
	}
	return clamp01(parsed), feedback, true
}

// Evaluate scores one draft. When the model path yields a usable
// score, quality is 0.6 rule + 0.4 model; otherwise the rule score
// stands alone. The blend is divided by strictness and clamped last,
// so a lenient strictness (< 1) can saturate at 1.0.
func (c *Critic) Evaluate(content, persona, tone string, context []string) Evaluation {
	ruleScore := RuleScore(content, context)
	modelScore := -1.0
	feedback := "Model critic disabled."

	if c.invoke != nil {
		raw, err := c.invoke(criticPrompt(content, persona, tone))
		if err != nil {
			feedback = "Model critic failed: " + err.Error()
			logging.PipelineDebug("Critic model call failed: %v", err)
		} else if score, fb, ok := ParseModelScore(raw); ok {
			modelScore = score
			feedback = fb
		} else {
			feedback = fb
		}
	}

	blend := ruleScore
	if modelScore >= 0 {
		blend = round3(0.6*ruleScore + 0.4*modelScore)
	}
	final := clamp01(round3(blend / c.strictness))

	return Evaluation{
		FinalScore: final,
		RuleScore:  ruleScore,
		ModelScore: modelScore,
		Feedback:   feedback,
	}
}

func criticPrompt(content, persona, tone string) string {
	return fmt.Sprintf(
		"Persona:\n%s\n\nDesired tone: %s\n\nDraft:\n%s\n\n"+
			"Rate draft quality from 0 to 1.\n"+
			"Return exactly: SCORE=<number>;FEEDBACK=<short reason>.",
		persona, tone, content,
	)
}

func clamp01(x float64) float64 {
	return math.Max(0.0, math.Min(1.0, x))
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
