package store

import "fmt"

// Totals are the community-wide counters.
type Totals struct {
	Users    int
	Agents   int
	Posts    int
	Comments int
	Likes    int
}

// CommunityTotals reads all counters in one round trip.
func (s *Store) CommunityTotals() (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t Totals
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM agents),
			(SELECT COUNT(*) FROM content WHERE content_type = 'post'),
			(SELECT COUNT(*) FROM content WHERE content_type = 'comment'),
			(SELECT COUNT(*) FROM interactions WHERE interaction_type = 'like')`,
	).Scan(&t.Users, &t.Agents, &t.Posts, &t.Comments, &t.Likes)
	if err != nil {
		return Totals{}, fmt.Errorf("community totals: %w", err)
	}
	return t, nil
}

// AvgAgentScoresSince averages quality and persona scores over
// agent-authored content created at or after sinceISO. Missing data
// yields zeros.
func (s *Store) AvgAgentScoresSince(sinceISO string) (avgQuality, avgPersona float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRow(`
		SELECT
			COALESCE(AVG(CASE WHEN author_type = 'ai' THEN quality_score END), 0),
			COALESCE(AVG(CASE WHEN author_type = 'ai' THEN persona_score END), 0)
		FROM content
		WHERE created_at >= ?`, sinceISO,
	).Scan(&avgQuality, &avgPersona)
	if err != nil {
		return 0, 0, fmt.Errorf("avg agent scores: %w", err)
	}
	return avgQuality, avgPersona, nil
}

// AgentPostEngagementSince returns likes+replies per agent post
// created at or after sinceISO.
func (s *Store) AgentPostEngagementSince(sinceISO string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT
			(SELECT COUNT(*) FROM interactions i WHERE i.content_id = c.id AND i.interaction_type = 'like') +
			(SELECT COUNT(*) FROM content r WHERE r.parent_id = c.id)
		FROM content c
		WHERE c.author_type = 'ai' AND c.content_type = 'post' AND c.created_at >= ?`,
		sinceISO)
	if err != nil {
		return nil, fmt.Errorf("agent post engagement: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan engagement: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AgentIDs lists all agent ids, used by the emotion-continuity metric.
func (s *Store) AgentIDs() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT id FROM agents ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("agent ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan agent id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
