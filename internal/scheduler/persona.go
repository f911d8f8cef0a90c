package scheduler

import (
	"fmt"
	"sort"

	"flock/internal/textutil"
)

const evolveChance = 0.35

// evolvePersona opportunistically appends a curiosity note about the
// most frequent context token. Most calls change nothing; drift is
// meant to be slow.
func (s *Scheduler) evolvePersona(persona string, contextLines []string) string {
	counts := make(map[string]int)
	for i, line := range contextLines {
		if i == 12 {
			break
		}
		for token := range textutil.Tokens(line) {
			counts[token]++
		}
	}
	if len(counts) == 0 {
		return persona
	}

	tokens := make([]string, 0, len(counts))
	for token := range counts {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	top := tokens[0]

	if s.rng.Float64() > evolveChance {
		return persona
	}
	evolved := fmt.Sprintf("%s Recently curious about %s.", persona, top)
	if len(evolved) > personaMaxChars {
		evolved = evolved[:personaMaxChars]
	}
	return evolved
}
