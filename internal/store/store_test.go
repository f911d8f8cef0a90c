package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/affect"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), time.UTC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUserAndAgent(t *testing.T, s *Store, nickname string) (User, Agent) {
	t.Helper()
	u, err := s.CreateUser(nickname)
	require.NoError(t, err)
	a, err := s.CreateAgent(u.ID, nickname+"_ai", "test persona about coding.",
		affect.DefaultVector(), affect.PAD{}, "ollama", "llama3:latest")
	require.NoError(t, err)
	return u, a
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)

	u, err := s.CreateUser("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Nickname)

	got, err := s.GetUserByNickname("alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUserByNickname("nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateUser("alice")
	assert.Error(t, err, "duplicate nickname must violate the unique constraint")
}

func TestAgentLifecycle(t *testing.T) {
	s := newTestStore(t)
	u, a := seedUserAndAgent(t, s, "bob")

	got, err := s.GetAgentByUserID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "bob_ai", got.Handle)
	assert.InDelta(t, 0.5, got.Emotion.Curiosity, 1e-9)

	exists, err := s.HandleExists("bob_ai")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.HandleExists("ghost_ai")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.UpdateAgentModel(a.ID, "anthropic", "claude-3-5-haiku-20241022"))
	got, err = s.GetAgent(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.Provider)

	assert.ErrorIs(t, s.UpdateAgentModel(9999, "x", "y"), ErrNotFound)
}

func TestSaveAgentStateWritesSnapshot(t *testing.T) {
	s := newTestStore(t)
	_, a := seedUserAndAgent(t, s, "carol")

	v := a.Emotion.Apply(affect.EventGetLike, 1.0)
	require.NoError(t, s.SaveAgentState(a.ID, "evolved persona.", v))
	require.NoError(t, s.SaveAgentState(a.ID, "evolved persona again.", v))

	pair, err := s.LastEmotionPair(a.ID)
	require.NoError(t, err)
	// CreateAgent does not snapshot; two saves yield two rows.
	assert.Len(t, pair, 2)

	got, err := s.GetAgent(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "evolved persona again.", got.Persona)
}

func TestAddLikeDedupsPerActor(t *testing.T) {
	s := newTestStore(t)
	u1, a1 := seedUserAndAgent(t, s, "erin")
	u2, a2 := seedUserAndAgent(t, s, "finn")

	post, err := s.InsertHumanContent(u1.ID, 0, ContentPost, "something worth liking")
	require.NoError(t, err)

	// Human actors: first like lands, repeats are no-ops.
	liked, err := s.AddLike(post.ID, SubjectHuman, u2.ID, 0)
	require.NoError(t, err)
	assert.True(t, liked)
	for i := 0; i < 3; i++ {
		liked, err = s.AddLike(post.ID, SubjectHuman, u2.ID, 0)
		require.NoError(t, err)
		assert.False(t, liked, "repeat human like %d must dedup", i+1)
	}

	// Agent actors dedup the same way.
	liked, err = s.AddLike(post.ID, SubjectAgent, 0, a1.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	liked, err = s.AddLike(post.ID, SubjectAgent, 0, a1.ID)
	require.NoError(t, err)
	assert.False(t, liked)

	// Distinct actors still each count once.
	liked, err = s.AddLike(post.ID, SubjectHuman, u1.ID, 0)
	require.NoError(t, err)
	assert.True(t, liked)
	liked, err = s.AddLike(post.ID, SubjectAgent, 0, a2.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	totals, err := s.CommunityTotals()
	require.NoError(t, err)
	assert.Equal(t, 4, totals.Likes)
}

func TestContentAndTimeline(t *testing.T) {
	s := newTestStore(t)
	u, a := seedUserAndAgent(t, s, "dave")

	post, err := s.InsertHumanContent(u.ID, 0, ContentPost, "hello world, first post")
	require.NoError(t, err)

	_, err = s.InsertHumanContent(u.ID, post.ID, ContentComment, "replying to myself")
	require.NoError(t, err)

	_, err = s.InsertAgentContent(a.ID, 0, ContentPost, "agent thoughts on tooling", 0.8, 0.6, 0.5,
		map[string]interface{}{"provider": "ollama"})
	require.NoError(t, err)

	liked, err := s.AddLike(post.ID, SubjectHuman, u.ID, 0)
	require.NoError(t, err)
	assert.True(t, liked)

	// Second like by the same actor is an idempotent no-op.
	liked, err = s.AddLike(post.ID, SubjectHuman, u.ID, 0)
	require.NoError(t, err)
	assert.False(t, liked)

	items, err := s.Timeline(10)
	require.NoError(t, err)
	require.Len(t, items, 3)

	var human TimelineItem
	for _, item := range items {
		if item.ID == post.ID {
			human = item
		}
	}
	assert.Equal(t, 1, human.Likes)
	assert.Equal(t, 1, human.Replies)
	assert.Equal(t, "dave", human.Nickname)

	one, err := s.GetContentItem(post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Body, one.Body)

	_, err = s.GetContentItem(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommentTargetsExcludeAuthor(t *testing.T) {
	s := newTestStore(t)
	_, a1 := seedUserAndAgent(t, s, "erin")
	_, a2 := seedUserAndAgent(t, s, "frank")

	_, err := s.InsertAgentContent(a1.ID, 0, ContentPost, "erin agent post", 0.9, 0.5, 0.5, nil)
	require.NoError(t, err)
	_, err = s.InsertAgentContent(a2.ID, 0, ContentPost, "frank agent post", 0.7, 0.5, 0.5, nil)
	require.NoError(t, err)

	targets, err := s.CommentTargets(a1.ID, 10)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "frank agent post", targets[0].Body)
}

func TestQuotaLockedAccess(t *testing.T) {
	s := newTestStore(t)
	u, _ := seedUserAndAgent(t, s, "grace")
	dayKey := s.TodayKey()

	err := s.WithLock(func() error {
		q, err := s.GetOrCreateQuotaLocked(SubjectHuman, u.ID, dayKey)
		require.NoError(t, err)
		assert.Equal(t, 0, q.TotalCount)
		return s.SetQuotaCountsLocked(q.ID, 1, 0, 1)
	})
	require.NoError(t, err)

	q, err := s.GetOrCreateQuota(SubjectHuman, u.ID, dayKey)
	require.NoError(t, err)
	assert.Equal(t, 1, q.PostCount)
	assert.Equal(t, 1, q.TotalCount)

	// A different period starts from zero.
	q2, err := s.GetOrCreateQuota(SubjectHuman, u.ID, "2001-01-01")
	require.NoError(t, err)
	assert.Equal(t, 0, q2.TotalCount)
}

func TestFeedbackLedger(t *testing.T) {
	s := newTestStore(t)
	_, a := seedUserAndAgent(t, s, "henry")

	id, err := s.InsertAgentContent(a.ID, 0, ContentPost, "ledger target", 0.6, 0.5, 0.5, nil)
	require.NoError(t, err)

	done, err := s.FeedbackProcessed(a.ID, id)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.MarkFeedbackProcessed(a.ID, id))
	require.NoError(t, s.MarkFeedbackProcessed(a.ID, id), "second mark must be a no-op")

	done, err = s.FeedbackProcessed(a.ID, id)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRuminationEventUniquePerPeriod(t *testing.T) {
	s := newTestStore(t)
	_, a := seedUserAndAgent(t, s, "iris")

	ev := RuminationEvent{
		AgentID: a.ID, DayKey: "2026-08-27",
		Insight: "first insight", PersonaPatch: "curious about benchmarks",
		BaselineBefore: affect.PAD{}, BaselineAfter: affect.PAD{Pleasure: 0.15},
		Event: "insight",
	}
	require.NoError(t, s.UpsertRuminationEvent(ev))

	ev.Insight = "revised insight"
	require.NoError(t, s.UpsertRuminationEvent(ev))

	got, err := s.GetRuminationEvent(a.ID, "2026-08-27")
	require.NoError(t, err)
	assert.Equal(t, "revised insight", got.Insight)
	assert.InDelta(t, 0.15, got.BaselineAfter.Pleasure, 1e-9)

	_, err = s.GetRuminationEvent(a.ID, "2026-08-28")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchedulerState(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetSchedulerState("last_tick")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.SetSchedulerState("last_tick", "2026-08-28T10:00:00Z"))
	require.NoError(t, s.SetSchedulerState("last_tick", "2026-08-28T11:00:00Z"))

	v, err = s.GetSchedulerState("last_tick")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28T11:00:00Z", v)
}

func TestTelemetryInsert(t *testing.T) {
	s := newTestStore(t)
	_, a := seedUserAndAgent(t, s, "judy")

	err := s.AddTelemetry(TelemetryRow{
		TickID: "tick-1", AgentID: a.ID, DayKey: s.TodayKey(),
		Status: "ok", PAD: affect.PAD{Pleasure: 0.2}, Emotion: affect.DefaultVector(),
	})
	require.NoError(t, err)
}

func TestDayKeyModes(t *testing.T) {
	calendar := newTestStore(t)
	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-28", calendar.DayKey(at))

	virtual, err := New(filepath.Join(t.TempDir(), "v.db"), time.UTC, 3600)
	require.NoError(t, err)
	defer virtual.Close()

	k1 := virtual.DayKey(at)
	k2 := virtual.DayKey(at.Add(30 * time.Minute))
	k3 := virtual.DayKey(at.Add(2 * time.Hour))
	assert.Equal(t, k1, k2, "same bucket within one virtual day")
	assert.NotEqual(t, k1, k3, "later bucket must differ")
	assert.Regexp(t, `^vday-\d{6}$`, k1)
}

func TestCommunityTotalsAndMetricsQueries(t *testing.T) {
	s := newTestStore(t)
	u, a := seedUserAndAgent(t, s, "kate")

	post, err := s.InsertHumanContent(u.ID, 0, ContentPost, "human post")
	require.NoError(t, err)
	agentPost, err := s.InsertAgentContent(a.ID, 0, ContentPost, "agent post", 0.8, 0.6, 0.5, nil)
	require.NoError(t, err)
	_, err = s.InsertHumanContent(u.ID, agentPost, ContentComment, "a reply")
	require.NoError(t, err)
	_, err = s.AddLike(post.ID, SubjectAgent, 0, a.ID)
	require.NoError(t, err)

	totals, err := s.CommunityTotals()
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Users)
	assert.Equal(t, 1, totals.Agents)
	assert.Equal(t, 2, totals.Posts)
	assert.Equal(t, 1, totals.Comments)
	assert.Equal(t, 1, totals.Likes)

	avgQ, avgP, err := s.AvgAgentScoresSince("2000-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, avgQ, 1e-9)
	assert.InDelta(t, 0.6, avgP, 1e-9)

	engagement, err := s.AgentPostEngagementSince("2000-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, engagement, 1)
	assert.Equal(t, 1, engagement[0], "one reply, no likes on the agent post")
}
