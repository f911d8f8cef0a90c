package rumination

import (
	"encoding/json"
	"strings"
)

// Reflection is the structured outcome of one reflection, model-made
// or rule-made.
type Reflection struct {
	Insight       string `json:"insight"`
	PersonaPatch  string `json:"persona_patch"`
	BaselineShift string `json:"baseline_shift"`
	Event         string `json:"event"`
}

var shiftVocabulary = map[string]bool{
	"pleasure_up": true, "pleasure_down": true,
	"arousal_up": true, "arousal_down": true,
	"dominance_up": true, "dominance_down": true,
	"none": true,
}

var eventVocabulary = map[string]bool{
	"insight_positive": true,
	"insight_negative": true,
	"none":             true,
}

// ParseReflection extracts the first well-formed JSON object from
// free-form model output. Out-of-vocabulary labels degrade to "none"
// rather than failing the parse; only a missing or malformed object
// reports !ok.
func ParseReflection(raw string) (Reflection, bool) {
	block, ok := firstJSONBlock(raw)
	if !ok {
		return Reflection{}, false
	}

	var r Reflection
	if err := json.Unmarshal([]byte(block), &r); err != nil {
		return Reflection{}, false
	}

	r.Insight = strings.TrimSpace(r.Insight)
	r.PersonaPatch = strings.TrimSpace(r.PersonaPatch)
	r.BaselineShift = strings.ToLower(strings.TrimSpace(r.BaselineShift))
	r.Event = strings.ToLower(strings.TrimSpace(r.Event))

	if !shiftVocabulary[r.BaselineShift] {
		r.BaselineShift = "none"
	}
	if !eventVocabulary[r.Event] {
		r.Event = "none"
	}
	return r, true
}

// firstJSONBlock scans for the first balanced brace block, ignoring
// braces inside string literals.
func firstJSONBlock(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
