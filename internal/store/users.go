package store

import (
	"database/sql"
	"errors"
	"fmt"

	"flock/internal/affect"
	"flock/internal/logging"
)

// ErrNotFound reports a missing row for lookups by id or key.
var ErrNotFound = errors.New("store: not found")

// CreateUser inserts a new user and returns the stored row.
func (s *Store) CreateUser(nickname string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.NowISO()
	res, err := s.db.Exec(
		"INSERT INTO users (nickname, created_at) VALUES (?, ?)",
		nickname, now,
	)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("create user id: %w", err)
	}
	logging.Store("Created user #%d (%s)", id, nickname)
	return User{ID: id, Nickname: nickname, CreatedAt: now}, nil
}

// GetUserByNickname looks up a user by exact nickname.
func (s *Store) GetUserByNickname(nickname string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanUser(s.db.QueryRow(
		"SELECT id, nickname, created_at FROM users WHERE nickname = ?", nickname))
}

// GetUser looks up a user by id.
func (s *Store) GetUser(id int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanUser(s.db.QueryRow(
		"SELECT id, nickname, created_at FROM users WHERE id = ?", id))
}

func (s *Store) scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Nickname, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// UserSummary is the list-users projection: user plus bound agent.
type UserSummary struct {
	ID       int64
	Nickname string
	Handle   string
	Persona  string
}

// ListUsers returns users joined with their bound agents, oldest first.
func (s *Store) ListUsers(limit int) ([]UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT u.id, u.nickname, a.handle, a.persona
		FROM users u
		JOIN agents a ON a.user_id = u.id
		ORDER BY u.id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []UserSummary
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Nickname, &u.Handle, &u.Persona); err != nil {
			return nil, fmt.Errorf("scan user summary: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateAgent inserts the bound persona account for a user.
func (s *Store) CreateAgent(userID int64, handle, persona string, emotion affect.Vector, baseline affect.PAD, provider, model string) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.NowISO()
	res, err := s.db.Exec(`
		INSERT INTO agents (user_id, handle, persona, emotion_json, baseline_json, provider, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, handle, persona, marshalJSON(emotion), marshalJSON(baseline), provider, model, now, now,
	)
	if err != nil {
		return Agent{}, fmt.Errorf("create agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Agent{}, fmt.Errorf("create agent id: %w", err)
	}
	logging.Store("Created agent #%d (@%s) for user #%d", id, handle, userID)
	return Agent{
		ID: id, UserID: userID, Handle: handle, Persona: persona,
		Emotion: emotion, Baseline: baseline,
		Provider: provider, Model: model,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

const agentColumns = `id, user_id, handle, persona, emotion_json, baseline_json,
	provider, model, last_rumination_key, created_at, updated_at`

// GetAgent looks up an agent by id.
func (s *Store) GetAgent(id int64) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scanAgent(s.db.QueryRow(
		"SELECT "+agentColumns+" FROM agents WHERE id = ?", id))
}

// GetAgentByUserID looks up the agent bound to a user.
func (s *Store) GetAgentByUserID(userID int64) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scanAgent(s.db.QueryRow(
		"SELECT "+agentColumns+" FROM agents WHERE user_id = ?", userID))
}

// HandleExists reports whether an agent handle is already taken.
func (s *Store) HandleExists(handle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow("SELECT 1 FROM agents WHERE handle = ?", handle).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("handle exists: %w", err)
	}
	return true, nil
}

// ListAgents returns all agents ordered by id.
func (s *Store) ListAgents() ([]Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT " + agentColumns + " FROM agents ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAgents returns the current population size.
func (s *Store) CountAgents() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM agents").Scan(&n); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return n, nil
}

// SaveAgentState persists a new persona and emotion vector and appends
// an emotion history snapshot.
func (s *Store) SaveAgentState(agentID int64, persona string, emotion affect.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.NowISO()
	if _, err := s.db.Exec(`
		UPDATE agents SET persona = ?, emotion_json = ?, updated_at = ?
		WHERE id = ?`,
		persona, marshalJSON(emotion), now, agentID,
	); err != nil {
		return fmt.Errorf("save agent state: %w", err)
	}
	return s.addEmotionSnapshotLocked(agentID, emotion, s.DayKey(s.Now()), now)
}

// SaveAgentBaseline persists a new long-term PAD baseline.
func (s *Store) SaveAgentBaseline(agentID int64, baseline affect.PAD) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`
		UPDATE agents SET baseline_json = ?, updated_at = ? WHERE id = ?`,
		marshalJSON(baseline), s.NowISO(), agentID,
	); err != nil {
		return fmt.Errorf("save agent baseline: %w", err)
	}
	return nil
}

// UpdateAgentModel switches the agent's generation backend.
func (s *Store) UpdateAgentModel(agentID int64, provider, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE agents SET provider = ?, model = ?, updated_at = ? WHERE id = ?`,
		provider, model, s.NowISO(), agentID,
	)
	if err != nil {
		return fmt.Errorf("update agent model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishRumination persists everything a completed rumination cycle
// touches in one statement: persona, emotion, baseline, and the
// last-rumination period key.
func (s *Store) FinishRumination(agentID int64, persona string, emotion affect.Vector, baseline affect.PAD, dayKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.NowISO()
	if _, err := s.db.Exec(`
		UPDATE agents
		SET persona = ?, emotion_json = ?, baseline_json = ?, last_rumination_key = ?, updated_at = ?
		WHERE id = ?`,
		persona, marshalJSON(emotion), marshalJSON(baseline), dayKey, now, agentID,
	); err != nil {
		return fmt.Errorf("finish rumination: %w", err)
	}
	return s.addEmotionSnapshotLocked(agentID, emotion, dayKey, now)
}

func scanAgent(row *sql.Row) (Agent, error) {
	var a Agent
	var emotionJSON, baselineJSON string
	err := row.Scan(&a.ID, &a.UserID, &a.Handle, &a.Persona, &emotionJSON, &baselineJSON,
		&a.Provider, &a.Model, &a.LastRuminationKey, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	a.Emotion = unmarshalVector(emotionJSON)
	a.Baseline = unmarshalPAD(baselineJSON)
	return a, nil
}

func scanAgentRows(rows *sql.Rows) (Agent, error) {
	var a Agent
	var emotionJSON, baselineJSON string
	if err := rows.Scan(&a.ID, &a.UserID, &a.Handle, &a.Persona, &emotionJSON, &baselineJSON,
		&a.Provider, &a.Model, &a.LastRuminationKey, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	a.Emotion = unmarshalVector(emotionJSON)
	a.Baseline = unmarshalPAD(baselineJSON)
	return a, nil
}
