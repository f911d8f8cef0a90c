package pipeline

import (
	"fmt"
	"math"
	"strings"

	"flock/internal/affect"
	"flock/internal/textutil"
)

// PersonaConsistency is the Jaccard similarity between the draft's
// tokens and the persona's tokens.
func PersonaConsistency(text, persona string) float64 {
	textTokens := textutil.Tokens(text)
	personaTokens := textutil.Tokens(persona)
	if len(textTokens) == 0 || len(personaTokens) == 0 {
		return 0.0
	}
	return round3(textutil.Jaccard(textTokens, personaTokens))
}

// EmotionAlignment checks the draft for lexical cues matching the
// requested tone, with a bonus for keeping it short when fatigued.
func EmotionAlignment(text, tone string, emotion affect.Vector) float64 {
	lowered := strings.ToLower(text)
	score := 0.4
	if tone == affect.ToneEnthusiastic && containsAny(lowered, "!", "excited", "love") {
		score += 0.3
	}
	if tone == affect.ToneCritical && containsAny(lowered, "however", "risk", "issue") {
		score += 0.3
	}
	if tone == affect.ToneObjective && containsAny(lowered, "because", "data", "tradeoff") {
		score += 0.2
	}
	if emotion.Fatigue > 0.6 && len(text) < 180 {
		score += 0.1
	}
	return round3(math.Min(1.0, score))
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// ContextLines renders the feed into prompt context, one bounded line
// per item.
func ContextLines(items []FeedItem) []string {
	lines := make([]string, 0, 10)
	for _, item := range items {
		if len(lines) == 10 {
			break
		}
		author := item.Nickname
		if author == "" {
			author = item.Handle
		}
		if author == "" {
			author = "anon"
		}
		body := item.Body
		if len(body) > 140 {
			body = body[:140]
		}
		lines = append(lines, fmt.Sprintf("%s: %s", author, body))
	}
	return lines
}

// FeedItem is the slice of a timeline entry the pipeline cares about.
type FeedItem struct {
	Nickname string
	Handle   string
	Body     string
	Quality  float64
	Likes    int
	Replies  int
}

// HasHighSignal reports whether the head of the feed carries anything
// worth reacting to.
func HasHighSignal(items []FeedItem) bool {
	for i, item := range items {
		if i == 8 {
			break
		}
		if item.Quality >= 0.7 || item.Likes+item.Replies >= 3 {
			return true
		}
	}
	return false
}
