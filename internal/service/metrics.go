package service

import (
	"math"
	"time"
)

const metricsLookbackDays = 7

// Metrics is the community health readout.
type Metrics struct {
	Users              int     `json:"users"`
	Agents             int     `json:"ai_accounts"`
	Posts              int     `json:"posts"`
	Comments           int     `json:"comments"`
	Likes              int     `json:"likes"`
	EmotionContinuity  float64 `json:"emotion_continuity"`
	PersonaConsistency float64 `json:"persona_consistency"`
	InteractionQuality float64 `json:"interaction_quality"`
	AvgQuality         float64 `json:"avg_quality"`
	Provider           string  `json:"provider"`
	Model              string  `json:"model"`
	LastTickStatus     string  `json:"last_tick_status"`
}

func (s *Service) CommunityMetrics() (Metrics, error) {
	totals, err := s.store.CommunityTotals()
	if err != nil {
		return Metrics{}, err
	}

	since := s.store.Now().AddDate(0, 0, -metricsLookbackDays).Format(time.RFC3339)
	avgQuality, avgPersona, err := s.store.AvgAgentScoresSince(since)
	if err != nil {
		return Metrics{}, err
	}

	engagement, err := s.store.AgentPostEngagementSince(since)
	if err != nil {
		return Metrics{}, err
	}
	interaction := 0.0
	if len(engagement) > 0 {
		sum := 0
		for _, e := range engagement {
			sum += e
		}
		interaction = float64(sum) / float64(len(engagement))
	}

	continuity, err := s.emotionContinuity()
	if err != nil {
		return Metrics{}, err
	}

	lastStatus, err := s.store.GetSchedulerState("last_tick_status")
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		Users:              totals.Users,
		Agents:             totals.Agents,
		Posts:              totals.Posts,
		Comments:           totals.Comments,
		Likes:              totals.Likes,
		EmotionContinuity:  round3(continuity),
		PersonaConsistency: round3(avgPersona),
		InteractionQuality: round3(interaction),
		AvgQuality:         round3(avgQuality),
		Provider:           s.cfg.LLM.Provider,
		Model:              s.cfg.LLM.Model,
		LastTickStatus:     lastStatus,
	}, nil
}

// emotionContinuity averages, over agents with at least two emotion
// snapshots, how little the latest snapshot moved from the previous
// one.
func (s *Service) emotionContinuity() (float64, error) {
	ids, err := s.store.AgentIDs()
	if err != nil {
		return 0, err
	}

	sum := 0.0
	counted := 0
	for _, id := range ids {
		pair, err := s.store.LastEmotionPair(id)
		if err != nil {
			return 0, err
		}
		if len(pair) < 2 {
			continue
		}
		current, previous := pair[0], pair[1]
		diff := (math.Abs(current.Curiosity-previous.Curiosity) +
			math.Abs(current.Fatigue-previous.Fatigue) +
			math.Abs(current.Joy-previous.Joy) +
			math.Abs(current.Anxiety-previous.Anxiety) +
			math.Abs(current.Excitement-previous.Excitement) +
			math.Abs(current.Frustration-previous.Frustration)) / 6.0
		sum += math.Max(0.0, 1.0-diff)
		counted++
	}
	if counted == 0 {
		return 0.0, nil
	}
	return sum / float64(counted), nil
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
