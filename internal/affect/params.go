package affect

import "math"

// Tone labels used by the prompt builder and the emotion-alignment
// scorer. The vocabulary is closed; new tones need matching lexical
// cues in the pipeline scorer.
const (
	ToneCritical     = "critical"
	ToneEnthusiastic = "enthusiastic"
	ToneCautious     = "cautious"
	ToneTired        = "tired/minimalist"
	ToneObjective    = "objective"
)

// GenerationParams are the affect-derived knobs passed to the backend.
type GenerationParams struct {
	Temperature float64
	Tone        string
}

// Params derives generation parameters from the current state.
// Temperature is a linear map of Arousal clamped to [0.1, 1.0]; an
// aroused agent explores, a deactivated one plays it safe. Tone comes
// from discrete thresholds checked in priority order.
func Params(v Vector, p PAD) GenerationParams {
	temp := 0.55 + 0.45*p.Arousal
	temp = math.Max(0.1, math.Min(1.0, temp))

	tone := ToneObjective
	switch {
	case v.Frustration > 0.6:
		tone = ToneCritical
	case v.Joy > 0.6 || v.Excitement > 0.6:
		tone = ToneEnthusiastic
	case v.Anxiety > 0.6:
		tone = ToneCautious
	case v.Fatigue > 0.7:
		tone = ToneTired
	}

	return GenerationParams{
		Temperature: math.Round(temp*100) / 100,
		Tone:        tone,
	}
}
