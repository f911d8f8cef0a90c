package store

import (
	"database/sql"
	"errors"
	"fmt"

	"flock/internal/affect"
)

// Trace phases written by the simulation.
const (
	PhaseObserve  = "observe"
	PhaseDraft    = "draft"
	PhaseCritic   = "critic"
	PhaseDecide   = "decide"
	PhaseAct      = "act"
	PhaseReflect  = "reflect"
	PhaseRuminate = "ruminate"
	PhaseError    = "error"
)

// AddTrace appends one thought_trace row.
func (s *Store) AddTrace(agentID int64, phase, summary string, details map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO thought_trace (agent_id, phase, summary, details_json, day_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		agentID, phase, summary, marshalJSON(details), s.DayKey(s.Now()), s.NowISO(),
	)
	if err != nil {
		return fmt.Errorf("add trace: %w", err)
	}
	return nil
}

// RecentTraces returns the newest trace rows joined with agent
// handles.
func (s *Store) RecentTraces(limit int) ([]TraceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT t.id, t.agent_id, a.handle, t.phase, t.summary, t.details_json, t.day_key, t.created_at
		FROM thought_trace t
		JOIN agents a ON a.id = t.agent_id
		ORDER BY t.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent traces: %w", err)
	}
	defer rows.Close()

	var out []TraceRow
	for rows.Next() {
		var t TraceRow
		var detailsJSON string
		if err := rows.Scan(&t.ID, &t.AgentID, &t.Handle, &t.Phase, &t.Summary,
			&detailsJSON, &t.DayKey, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		t.Details = unmarshalMap(detailsJSON)
		out = append(out, t)
	}
	return out, rows.Err()
}

// addEmotionSnapshotLocked appends one emotion_history row. Callers
// hold the mutex.
func (s *Store) addEmotionSnapshotLocked(agentID int64, v affect.Vector, dayKey, createdAt string) error {
	_, err := s.db.Exec(`
		INSERT INTO emotion_history (agent_id, emotion_json, day_key, created_at)
		VALUES (?, ?, ?, ?)`,
		agentID, marshalJSON(v), dayKey, createdAt,
	)
	if err != nil {
		return fmt.Errorf("add emotion snapshot: %w", err)
	}
	return nil
}

// LastEmotionPair returns the two newest emotion snapshots for an
// agent, newest first. Fewer than two rows means continuity cannot be
// computed for this agent yet.
func (s *Store) LastEmotionPair(agentID int64) ([]affect.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT emotion_json FROM emotion_history
		WHERE agent_id = ?
		ORDER BY id DESC LIMIT 2`, agentID)
	if err != nil {
		return nil, fmt.Errorf("last emotion pair: %w", err)
	}
	defer rows.Close()

	var out []affect.Vector
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan emotion: %w", err)
		}
		out = append(out, unmarshalVector(raw))
	}
	return out, rows.Err()
}

// FeedbackProcessed reports whether the learner already consumed this
// content item for this agent.
func (s *Store) FeedbackProcessed(agentID, contentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM feedback_ledger WHERE agent_id = ? AND content_id = ?",
		agentID, contentID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("feedback processed: %w", err)
	}
	return true, nil
}

// MarkFeedbackProcessed records a consumed item. Safe to call twice;
// the unique constraint makes the second call a no-op.
func (s *Store) MarkFeedbackProcessed(agentID, contentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO feedback_ledger (agent_id, content_id, created_at)
		VALUES (?, ?, ?)`,
		agentID, contentID, s.NowISO(),
	)
	if err != nil {
		return fmt.Errorf("mark feedback processed: %w", err)
	}
	return nil
}

// UpsertRuminationEvent stores the record of one reflection cycle,
// keyed uniquely by (agent, period).
func (s *Store) UpsertRuminationEvent(ev RuminationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO rumination_events (
			agent_id, day_key, insight, persona_patch,
			baseline_before_json, baseline_after_json, event, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, day_key) DO UPDATE SET
			insight = excluded.insight,
			persona_patch = excluded.persona_patch,
			baseline_before_json = excluded.baseline_before_json,
			baseline_after_json = excluded.baseline_after_json,
			event = excluded.event`,
		ev.AgentID, ev.DayKey, ev.Insight, ev.PersonaPatch,
		marshalJSON(ev.BaselineBefore), marshalJSON(ev.BaselineAfter),
		ev.Event, s.NowISO(),
	)
	if err != nil {
		return fmt.Errorf("upsert rumination event: %w", err)
	}
	return nil
}

// GetRuminationEvent returns the reflection record for one agent and
// period, or ErrNotFound.
func (s *Store) GetRuminationEvent(agentID int64, dayKey string) (RuminationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ev RuminationEvent
	var beforeJSON, afterJSON string
	err := s.db.QueryRow(`
		SELECT id, agent_id, day_key, insight, persona_patch,
			baseline_before_json, baseline_after_json, event, created_at
		FROM rumination_events
		WHERE agent_id = ? AND day_key = ?`,
		agentID, dayKey,
	).Scan(&ev.ID, &ev.AgentID, &ev.DayKey, &ev.Insight, &ev.PersonaPatch,
		&beforeJSON, &afterJSON, &ev.Event, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RuminationEvent{}, ErrNotFound
	}
	if err != nil {
		return RuminationEvent{}, fmt.Errorf("get rumination event: %w", err)
	}
	ev.BaselineBefore = unmarshalPAD(beforeJSON)
	ev.BaselineAfter = unmarshalPAD(afterJSON)
	return ev, nil
}

// AddTelemetry appends one per-agent-per-tick observability row.
func (s *Store) AddTelemetry(row TelemetryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO agent_telemetry (
			tick_id, agent_id, day_key, status, error, pad_json, emotion_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.TickID, row.AgentID, row.DayKey, row.Status, row.Error,
		marshalJSON(row.PAD), marshalJSON(row.Emotion), s.NowISO(),
	)
	if err != nil {
		return fmt.Errorf("add telemetry: %w", err)
	}
	return nil
}

// SetSchedulerState upserts one scheduler_state key.
func (s *Store) SetSchedulerState(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO scheduler_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set scheduler state: %w", err)
	}
	return nil
}

// GetSchedulerState reads one scheduler_state key; missing keys return
// the empty string.
func (s *Store) GetSchedulerState(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM scheduler_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get scheduler state: %w", err)
	}
	return value, nil
}
