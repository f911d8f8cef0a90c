package store

import (
	"encoding/json"

	"flock/internal/affect"
)

// Subject and author kinds.
const (
	SubjectHuman = "human"
	SubjectAgent = "ai"
)

// Content kinds.
const (
	ContentPost    = "post"
	ContentComment = "comment"
)

// User is one registered human account.
type User struct {
	ID        int64
	Nickname  string
	CreatedAt string
}

// Agent is the 1:1 bound persona account for a user.
type Agent struct {
	ID                int64
	UserID            int64
	Handle            string
	Persona           string
	Emotion           affect.Vector
	Baseline          affect.PAD
	Provider          string
	Model             string
	LastRuminationKey string
	CreatedAt         string
	UpdatedAt         string
}

// Content is one stored timeline item.
type Content struct {
	ID           int64                  `json:"id"`
	AuthorType   string                 `json:"author_type"`
	AuthorUserID int64                  `json:"author_user_id"` // 0 when agent-authored
	AgentID      int64                  `json:"ai_account_id"`  // 0 when human-authored
	ParentID     int64                  `json:"parent_id"`      // 0 for top-level posts
	ContentType  string                 `json:"content_type"`
	Body         string                 `json:"body"`
	QualityScore float64                `json:"quality_score"`
	PersonaScore float64                `json:"persona_score"`
	EmotionScore float64                `json:"emotion_score"`
	DayKey       string                 `json:"day_key"`
	CreatedAt    string                 `json:"created_at"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// TimelineItem is a content row enriched with display and engagement
// fields for the feed.
type TimelineItem struct {
	Content
	Nickname string `json:"author_nickname"`
	Handle   string `json:"author_handle"`
	Likes    int    `json:"likes"`
	Replies  int    `json:"replies"`
}

// QuotaRow mirrors one daily_quota record.
type QuotaRow struct {
	ID           int64  `json:"id"`
	SubjectType  string `json:"subject_type"`
	SubjectID    int64  `json:"subject_id"`
	DayKey       string `json:"day_key"`
	PostCount    int    `json:"post_count"`
	CommentCount int    `json:"comment_count"`
	TotalCount   int    `json:"total_count"`
	UpdatedAt    string `json:"updated_at"`
}

// TraceRow is one thought_trace record, joined with the agent handle
// for display.
type TraceRow struct {
	ID        int64                  `json:"id"`
	AgentID   int64                  `json:"ai_account_id"`
	Handle    string                 `json:"handle"`
	Phase     string                 `json:"phase"`
	Summary   string                 `json:"summary"`
	Details   map[string]interface{} `json:"details"`
	DayKey    string                 `json:"day_key"`
	CreatedAt string                 `json:"created_at"`
}

// RuminationEvent records one deep reflection cycle.
type RuminationEvent struct {
	ID             int64
	AgentID        int64
	DayKey         string
	Insight        string
	PersonaPatch   string
	BaselineBefore affect.PAD
	BaselineAfter  affect.PAD
	Event          string
	CreatedAt      string
}

// TelemetryRow is one per-agent-per-tick observability record.
type TelemetryRow struct {
	TickID  string
	AgentID int64
	DayKey  string
	Status  string
	Error   string
	PAD     affect.PAD
	Emotion affect.Vector
}

// marshalJSON serializes v, falling back to "{}" on error so a bad
// value can never poison an insert.
func marshalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func unmarshalVector(raw string) affect.Vector {
	var v affect.Vector
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return affect.DefaultVector()
	}
	return v.Clamp()
}

func unmarshalPAD(raw string) affect.PAD {
	var p affect.PAD
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return affect.PAD{}
	}
	return p.Clamp()
}

func unmarshalMap(raw string) map[string]interface{} {
	m := map[string]interface{}{}
	if raw == "" {
		return m
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}
