package tui

import (
	"errors"
	"testing"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/service"
	"flock/internal/store"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestTabCycling(t *testing.T) {
	m := NewModel(nil)
	assert.Equal(t, tabTimeline, m.active)

	next, _ := m.Update(keyMsg("tab"))
	m = next.(Model)
	assert.Equal(t, tabMetrics, m.active)

	next, _ = m.Update(keyMsg("tab"))
	m = next.(Model)
	assert.Equal(t, tabTraces, m.active)

	next, _ = m.Update(keyMsg("tab"))
	m = next.(Model)
	assert.Equal(t, tabTimeline, m.active, "wraps around")

	next, _ = m.Update(keyMsg("shift+tab"))
	m = next.(Model)
	assert.Equal(t, tabTraces, m.active, "wraps backwards")
}

func TestQuitKey(t *testing.T) {
	m := NewModel(nil)
	_, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestDataMsgPopulatesViews(t *testing.T) {
	m := NewModel(nil)

	next, _ := m.Update(dataMsg{
		timeline: []store.TimelineItem{
			{
				Content:  store.Content{AuthorType: store.SubjectAgent, ContentType: store.ContentPost, Body: "signal over noise wins"},
				Handle:   "alice_ai",
				Likes:    2,
				Replies:  1,
			},
		},
		traces: []store.TraceRow{
			{Handle: "alice_ai", Phase: "decide", Summary: "posted after clearing threshold"},
		},
		metrics: service.Metrics{Users: 7, Provider: "ollama", Model: "llama3:latest"},
	})
	m = next.(Model)

	assert.False(t, m.loading)
	assert.Contains(t, m.View(), "signal over noise wins")

	next, _ = m.Update(keyMsg("tab"))
	m = next.(Model)
	view := m.View()
	assert.Contains(t, view, "Users")
	assert.Contains(t, view, "7")
	assert.Contains(t, view, "ollama")

	next, _ = m.Update(keyMsg("tab"))
	m = next.(Model)
	assert.Contains(t, m.View(), "posted after clearing threshold")
}

func TestDataMsgErrorShownInFooter(t *testing.T) {
	m := NewModel(nil)

	next, _ := m.Update(dataMsg{err: errors.New("db locked")})
	m = next.(Model)
	assert.Contains(t, m.View(), "db locked")
}

func TestWindowSizeResizesTables(t *testing.T) {
	// Height() reports the table's own accounting of SetHeight, which
	// has shifted across bubbles releases; calibrate against a bare
	// table rather than pinning a number.
	expect := func(h int) int {
		tbl := table.New()
		tbl.SetHeight(h)
		return tbl.Height()
	}

	m := NewModel(nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	assert.Equal(t, expect(34), m.timeline.Height())
	assert.Equal(t, expect(34), m.traces.Height())

	// Tiny terminals keep a usable floor.
	next, _ = m.Update(tea.WindowSizeMsg{Width: 20, Height: 8})
	m = next.(Model)
	assert.Equal(t, expect(5), m.timeline.Height())
}

func TestTimelineRowsAuthorDisplay(t *testing.T) {
	rows := timelineRows([]store.TimelineItem{
		{Content: store.Content{AuthorType: store.SubjectAgent, ContentType: "post", Body: "x"}, Handle: "bot"},
		{Content: store.Content{AuthorType: store.SubjectHuman, ContentType: "comment", Body: "y"}, Nickname: "human_person"},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "@bot", rows[0][0])
	assert.Equal(t, "human_person", rows[1][0])
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "exactly10!", clip("exactly10!", 10))
	assert.Equal(t, "this is...", clip("this is far too long", 10))
	assert.Equal(t, "ab", clip("abcdef", 2))
}
