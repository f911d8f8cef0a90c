package learner

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/affect"
	"flock/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "flock.db"), time.UTC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAgent(t *testing.T, s *store.Store) store.Agent {
	t.Helper()
	user, err := s.CreateUser("learner_user")
	require.NoError(t, err)
	agent, err := s.CreateAgent(user.ID, "learner_agent",
		"@learner_agent focuses on distributed systems. Core value: rigor.",
		affect.DefaultVector(), affect.FromVector(affect.DefaultVector()),
		"ollama", "llama3:latest")
	require.NoError(t, err)
	return agent
}

func TestProcessConsumesEachItemOnce(t *testing.T) {
	s := newTestStore(t)
	agent := seedAgent(t, s)
	l := New(s)

	_, err := s.InsertAgentContent(agent.ID, 0, store.ContentPost,
		"notes on distributed consensus tradeoffs", 0.8, 0.5, 0.5, nil)
	require.NoError(t, err)

	first, err := l.Process(context.Background(), nil, agent)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	second, err := l.Process(context.Background(), nil, agent)
	require.NoError(t, err)
	assert.Zero(t, second.Processed, "ledger-marked item must not be re-applied")
	assert.Equal(t, agent.Persona, second.Persona)
	assert.Equal(t, agent.Emotion, second.Emotion)
}

func TestProcessIgnoredItemDampensMood(t *testing.T) {
	s := newTestStore(t)
	agent := seedAgent(t, s)
	l := New(s)

	_, err := s.InsertAgentContent(agent.ID, 0, store.ContentPost,
		"a post nobody engaged with", 0.6, 0.5, 0.5, nil)
	require.NoError(t, err)

	out, err := l.Process(context.Background(), nil, agent)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Ignored)
	assert.Greater(t, out.Emotion.Frustration, agent.Emotion.Frustration)
	assert.Greater(t, out.Emotion.Fatigue, agent.Emotion.Fatigue)
	assert.Less(t, out.Emotion.Excitement, agent.Emotion.Excitement)
}

func TestProcessEngagementLiftsMood(t *testing.T) {
	s := newTestStore(t)
	agent := seedAgent(t, s)
	l := New(s)

	user, err := s.CreateUser("liker")
	require.NoError(t, err)

	contentID, err := s.InsertAgentContent(agent.ID, 0, store.ContentPost,
		"deep dive into raft leader election", 0.8, 0.5, 0.5, nil)
	require.NoError(t, err)
	liked, err := s.AddLike(contentID, store.SubjectHuman, user.ID, 0)
	require.NoError(t, err)
	require.True(t, liked)

	out, err := l.Process(context.Background(), nil, agent)
	require.NoError(t, err)

	assert.Zero(t, out.Ignored)
	assert.Greater(t, out.Emotion.Joy, agent.Emotion.Joy)
}

func TestProcessFabricatesPhraseWithoutBackend(t *testing.T) {
	s := newTestStore(t)
	agent := seedAgent(t, s)
	l := New(s)

	_, err := s.InsertAgentContent(agent.ID, 0, store.ContentPost,
		"an unnoticed post", 0.6, 0.5, 0.5, nil)
	require.NoError(t, err)

	out, err := l.Process(context.Background(), nil, agent)
	require.NoError(t, err)
	assert.Equal(t, "Trying shorter, more concrete takes.", out.Phrase)
}

func TestMergePersonaFiltersKnownTokens(t *testing.T) {
	persona := "@a focuses on distributed systems and careful rigor in design reviews today always"

	merged := MergePersona(persona, "more rigor, more distributed benchmarks", 0.5)
	assert.Contains(t, merged, "benchmarks")
	assert.NotContains(t, strings.TrimPrefix(merged, persona), "rigor")
}

func TestMergePersonaCapsNewTokens(t *testing.T) {
	// Four persona tokens and a 0.25 cap admit exactly one new token.
	persona := "persona about agents memory benchmarks"

	merged := MergePersona(persona, "pivoting toward observability dashboards tracing", 0.25)
	suffix := strings.TrimPrefix(merged, persona)
	assert.Equal(t, " Adapting: pivoting.", suffix)
}

func TestMergePersonaNoNewTokensIsNoOp(t *testing.T) {
	persona := "talking about agents and memory"
	assert.Equal(t, persona, MergePersona(persona, "agents memory", 1.0))
	assert.Equal(t, persona, MergePersona(persona, "", 1.0))
}

func TestDriftCapAdapts(t *testing.T) {
	assert.InDelta(t, 0.10, driftCap(0, 0, 0), 1e-9)
	assert.InDelta(t, 0.15, driftCap(1, 0, 0), 1e-9)
	assert.InDelta(t, 0.20, driftCap(1, 0, 0.4), 1e-9)
	assert.InDelta(t, 0.25, driftCap(1, 5, 0.4), 1e-9)
}
