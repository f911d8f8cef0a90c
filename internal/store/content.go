package store

import (
	"database/sql"
	"errors"
	"fmt"

	"flock/internal/logging"
)

// nullableID maps 0 to SQL NULL for optional foreign keys.
func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

// InsertHumanContent stores a human post or comment. parentID 0 means
// a top-level post.
func (s *Store) InsertHumanContent(userID, parentID int64, contentType, body string) (Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.NowISO()
	dayKey := s.DayKey(s.Now())
	res, err := s.db.Exec(`
		INSERT INTO content (
			author_type, author_user_id, agent_id, parent_id, content_type,
			body, quality_score, persona_score, emotion_score, day_key, created_at, metadata_json
		) VALUES ('human', ?, NULL, ?, ?, ?, 0, 0, 0, ?, ?, '{}')`,
		userID, nullableID(parentID), contentType, body, dayKey, now,
	)
	if err != nil {
		return Content{}, fmt.Errorf("insert human content: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Content{}, fmt.Errorf("insert human content id: %w", err)
	}
	return Content{
		ID: id, AuthorType: SubjectHuman, AuthorUserID: userID, ParentID: parentID,
		ContentType: contentType, Body: body, DayKey: dayKey, CreatedAt: now,
		Metadata: map[string]interface{}{},
	}, nil
}

// InsertAgentContent stores a published agent draft with its scores.
func (s *Store) InsertAgentContent(agentID, parentID int64, contentType, body string, quality, persona, emotion float64, metadata map[string]interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.NowISO()
	dayKey := s.DayKey(s.Now())
	res, err := s.db.Exec(`
		INSERT INTO content (
			author_type, author_user_id, agent_id, parent_id, content_type,
			body, quality_score, persona_score, emotion_score, day_key, created_at, metadata_json
		) VALUES ('ai', NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agentID, nullableID(parentID), contentType, body, quality, persona, emotion,
		dayKey, now, marshalJSON(metadata),
	)
	if err != nil {
		return 0, fmt.Errorf("insert agent content: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert agent content id: %w", err)
	}
	logging.Store("Agent #%d published %s #%d", agentID, contentType, id)
	return id, nil
}

// InsertSeedContent stores bootstrap or imported content with explicit
// timestamps and scores, used by the initial-timeline seeder and the
// external ingester.
func (s *Store) InsertSeedContent(authorType string, userID, agentID int64, body string, quality, persona, emotion float64, dayKey, createdAt string, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO content (
			author_type, author_user_id, agent_id, parent_id, content_type,
			body, quality_score, persona_score, emotion_score, day_key, created_at, metadata_json
		) VALUES (?, ?, ?, NULL, 'post', ?, ?, ?, ?, ?, ?, ?)`,
		authorType, nullableID(userID), nullableID(agentID), body,
		quality, persona, emotion, dayKey, createdAt, marshalJSON(metadata),
	)
	if err != nil {
		return fmt.Errorf("insert seed content: %w", err)
	}
	return nil
}

// InsertImportedContent stores externally ingested human content with
// an explicit timestamp, thread parent, and provenance metadata.
func (s *Store) InsertImportedContent(userID, parentID int64, contentType, body, dayKey, createdAt string, metadata map[string]interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO content (
			author_type, author_user_id, agent_id, parent_id, content_type,
			body, quality_score, persona_score, emotion_score, day_key, created_at, metadata_json
		) VALUES ('human', ?, NULL, ?, ?, ?, 0, 0, 0, ?, ?, ?)`,
		userID, nullableID(parentID), contentType, body, dayKey, createdAt, marshalJSON(metadata),
	)
	if err != nil {
		return 0, fmt.Errorf("insert imported content: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert imported content id: %w", err)
	}
	return id, nil
}

// CountContent returns the total number of content rows.
func (s *Store) CountContent() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM content").Scan(&n); err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return n, nil
}

const timelineSelect = `
	SELECT
		c.id, c.author_type, c.author_user_id, c.agent_id, c.parent_id,
		c.content_type, c.body, c.quality_score, c.persona_score, c.emotion_score,
		c.day_key, c.created_at, c.metadata_json,
		COALESCE(u.nickname, ''), COALESCE(a.handle, ''),
		(SELECT COUNT(*) FROM interactions i WHERE i.content_id = c.id AND i.interaction_type = 'like') AS likes,
		(SELECT COUNT(*) FROM content child WHERE child.parent_id = c.id) AS replies
	FROM content c
	LEFT JOIN users u ON c.author_user_id = u.id
	LEFT JOIN agents a ON c.agent_id = a.id`

// Timeline returns the newest content items with computed engagement.
func (s *Store) Timeline(limit int) ([]TimelineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(timelineSelect+" ORDER BY c.id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()
	return scanTimelineItems(rows)
}

// GetContentItem returns one content row with display fields, or
// ErrNotFound.
func (s *Store) GetContentItem(id int64) (TimelineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(timelineSelect+" WHERE c.id = ?", id)
	if err != nil {
		return TimelineItem{}, fmt.Errorf("get content: %w", err)
	}
	defer rows.Close()

	items, err := scanTimelineItems(rows)
	if err != nil {
		return TimelineItem{}, err
	}
	if len(items) == 0 {
		return TimelineItem{}, ErrNotFound
	}
	return items[0], nil
}

// CommentTarget is a candidate post for an agent comment.
type CommentTarget struct {
	ID           int64
	Body         string
	QualityScore float64
	Likes        int
}

// CommentTargets returns high-quality posts not authored by the given
// agent, best first.
func (s *Store) CommentTargets(excludeAgentID int64, limit int) ([]CommentTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT
			c.id, c.body, c.quality_score,
			(SELECT COUNT(*) FROM interactions i WHERE i.content_id = c.id AND i.interaction_type = 'like') AS likes
		FROM content c
		WHERE c.content_type = 'post'
		  AND (c.agent_id IS NULL OR c.agent_id != ?)
		ORDER BY c.quality_score DESC, likes DESC, c.id DESC
		LIMIT ?`, excludeAgentID, limit)
	if err != nil {
		return nil, fmt.Errorf("comment targets: %w", err)
	}
	defer rows.Close()

	var out []CommentTarget
	for rows.Next() {
		var t CommentTarget
		if err := rows.Scan(&t.ID, &t.Body, &t.QualityScore, &t.Likes); err != nil {
			return nil, fmt.Errorf("scan comment target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecentAgentBodies returns the bodies of the last n agent-authored
// items, newest first. The diversity filter compares drafts against
// this window.
func (s *Store) RecentAgentBodies(n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT body FROM content
		WHERE author_type = 'ai'
		ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent agent bodies: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan body: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// OwnContent is an agent item paired with its engagement counts.
type OwnContent struct {
	ID        int64
	Body      string
	CreatedAt string
	Likes     int
	Replies   int
}

// AgentContentSince returns the agent's own items created at or after
// sinceISO, with engagement, oldest first.
func (s *Store) AgentContentSince(agentID int64, sinceISO string) ([]OwnContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT
			c.id, c.body, c.created_at,
			(SELECT COUNT(*) FROM interactions i WHERE i.content_id = c.id AND i.interaction_type = 'like') AS likes,
			(SELECT COUNT(*) FROM content r WHERE r.parent_id = c.id) AS replies
		FROM content c
		WHERE c.agent_id = ? AND c.created_at >= ?
		ORDER BY c.id ASC`, agentID, sinceISO)
	if err != nil {
		return nil, fmt.Errorf("agent content since: %w", err)
	}
	defer rows.Close()

	var out []OwnContent
	for rows.Next() {
		var c OwnContent
		if err := rows.Scan(&c.ID, &c.Body, &c.CreatedAt, &c.Likes, &c.Replies); err != nil {
			return nil, fmt.Errorf("scan own content: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentAgentContent returns the agent's newest own bodies, newest
// first, for reflection context.
func (s *Store) RecentAgentContent(agentID int64, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT body FROM content
		WHERE agent_id = ?
		ORDER BY id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent agent content: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan body: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// HighSignalByDayKey samples the strongest community items for one
// period, ranked by quality then engagement.
func (s *Store) HighSignalByDayKey(dayKey string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT c.body
		FROM content c
		WHERE c.day_key = ?
		ORDER BY c.quality_score DESC,
			(SELECT COUNT(*) FROM interactions i WHERE i.content_id = c.id) DESC,
			c.id DESC
		LIMIT ?`, dayKey, limit)
	if err != nil {
		return nil, fmt.Errorf("high signal by day: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan body: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// RecentContent returns the bodies of the newest items regardless of
// author, used for the trending-token pool.
func (s *Store) RecentContent(limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		"SELECT body FROM content ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent content: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan body: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// ContentExists reports whether a content row exists.
func (s *Store) ContentExists(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow("SELECT 1 FROM content WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("content exists: %w", err)
	}
	return true, nil
}

// AddLike records a like. Returns false when the actor already liked
// this content; duplicate likes are idempotent no-ops. Absent actor
// ids are stored as 0, never NULL, so the UNIQUE index dedups them.
func (s *Store) AddLike(contentID int64, actorType string, actorUserID, agentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO interactions (
			content_id, actor_type, actor_user_id, agent_id, interaction_type, created_at
		) VALUES (?, ?, ?, ?, 'like', ?)`,
		contentID, actorType, actorUserID, agentID, s.NowISO(),
	)
	if err != nil {
		return false, fmt.Errorf("add like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add like rows: %w", err)
	}
	return n > 0, nil
}

// RecentHumanContent returns the user's newest items for the
// dashboard.
func (s *Store) RecentHumanContent(userID int64, limit int) ([]Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, content_type, body, created_at
		FROM content WHERE author_user_id = ?
		ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent human content: %w", err)
	}
	defer rows.Close()

	var out []Content
	for rows.Next() {
		var c Content
		if err := rows.Scan(&c.ID, &c.ContentType, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan human content: %w", err)
		}
		c.AuthorType = SubjectHuman
		c.AuthorUserID = userID
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentOwnAgentContent returns the agent's newest items with quality
// for the dashboard.
func (s *Store) RecentOwnAgentContent(agentID int64, limit int) ([]Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, content_type, body, created_at, quality_score
		FROM content WHERE agent_id = ?
		ORDER BY id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent agent items: %w", err)
	}
	defer rows.Close()

	var out []Content
	for rows.Next() {
		var c Content
		if err := rows.Scan(&c.ID, &c.ContentType, &c.Body, &c.CreatedAt, &c.QualityScore); err != nil {
			return nil, fmt.Errorf("scan agent item: %w", err)
		}
		c.AuthorType = SubjectAgent
		c.AgentID = agentID
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanTimelineItems(rows *sql.Rows) ([]TimelineItem, error) {
	var out []TimelineItem
	for rows.Next() {
		var item TimelineItem
		var authorUserID, agentID, parentID sql.NullInt64
		var metadataJSON string
		if err := rows.Scan(
			&item.ID, &item.AuthorType, &authorUserID, &agentID, &parentID,
			&item.ContentType, &item.Body, &item.QualityScore, &item.PersonaScore,
			&item.EmotionScore, &item.DayKey, &item.CreatedAt, &metadataJSON,
			&item.Nickname, &item.Handle, &item.Likes, &item.Replies,
		); err != nil {
			return nil, fmt.Errorf("scan timeline item: %w", err)
		}
		item.AuthorUserID = authorUserID.Int64
		item.AgentID = agentID.Int64
		item.ParentID = parentID.Int64
		item.Metadata = unmarshalMap(metadataJSON)
		out = append(out, item)
	}
	return out, rows.Err()
}
