// Package textutil provides the shared tokenizer used by the critic,
// the diversity filter, and the persona scorers. Tokens are case-folded
// alphabetic runs of four or more characters with stopwords removed.
package textutil

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-zA-Z]{4,}`)

// Stopwords are excluded from every token set. Kept small on purpose:
// the scorers only need to ignore glue words, not perform real NLP.
var Stopwords = map[string]bool{
	"this":   true,
	"that":   true,
	"from":   true,
	"with":   true,
	"your":   true,
	"have":   true,
	"about":  true,
	"today":  true,
	"just":   true,
	"into":   true,
	"there":  true,
	"would":  true,
	"could":  true,
	"should": true,
	"their":  true,
	"while":  true,
	"still":  true,
}

// Tokens returns the set of content tokens in text.
func Tokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range wordPattern.FindAllString(text, -1) {
		lower := strings.ToLower(word)
		if Stopwords[lower] {
			continue
		}
		tokens[lower] = true
	}
	return tokens
}

var pureWordPattern = regexp.MustCompile(`^[a-zA-Z]{4,}$`)

// IsWord reports whether s on its own qualifies as a content token.
func IsWord(s string) bool {
	return pureWordPattern.MatchString(s) && !Stopwords[strings.ToLower(s)]
}

// Jaccard computes |a∩b| / |a∪b| for two token sets. Empty sets score 0.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	overlap := 0
	for token := range a {
		if b[token] {
			overlap++
		}
	}
	union := len(a) + len(b) - overlap
	if union == 0 {
		return 0.0
	}
	return float64(overlap) / float64(union)
}

// Overlap computes the fraction of tokens in a that also appear in b.
func Overlap(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0.0
	}
	hits := 0
	for token := range a {
		if b[token] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
