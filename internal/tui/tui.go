// Package tui is the terminal dashboard: a tabbed view over the
// timeline, community metrics, and recent thought traces, refreshed on
// a timer against the in-process service.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"flock/internal/service"
	"flock/internal/store"
)

const (
	defaultRefresh = 5 * time.Second

	timelineLimit = 30
	tracesLimit   = 40
)

type tab int

const (
	tabTimeline tab = iota
	tabMetrics
	tabTraces
	tabCount
)

var tabNames = [tabCount]string{"Timeline", "Metrics", "Traces"}

// dataMsg carries one refresh worth of dashboard state.
type dataMsg struct {
	timeline []store.TimelineItem
	traces   []store.TraceRow
	metrics  service.Metrics
	err      error
}

type refreshTickMsg time.Time

type tickDoneMsg struct{ err error }

// Model is the bubbletea model for the dashboard.
type Model struct {
	svc     *service.Service
	refresh time.Duration

	active tab
	width  int
	height int

	timeline table.Model
	traces   table.Model
	metrics  service.Metrics

	spinner     spinner.Model
	loading     bool
	ticking     bool
	err         error
	lastRefresh time.Time

	styles Styles
}

func NewModel(svc *service.Service) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := DefaultStyles()

	timeline := table.New(
		table.WithColumns([]table.Column{
			{Title: "Author", Width: 18},
			{Title: "Kind", Width: 8},
			{Title: "Body", Width: 60},
			{Title: "Likes", Width: 5},
			{Title: "Replies", Width: 7},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	traces := table.New(
		table.WithColumns([]table.Column{
			{Title: "Agent", Width: 18},
			{Title: "Phase", Width: 10},
			{Title: "Summary", Width: 70},
		}),
		table.WithHeight(15),
	)

	return Model{
		svc:      svc,
		refresh:  defaultRefresh,
		timeline: timeline,
		traces:   traces,
		spinner:  sp,
		loading:  true,
		styles:   styles,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch(), m.scheduleRefresh())
}

func (m Model) fetch() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		var msg dataMsg
		var err error
		if msg.timeline, err = svc.Timeline(timelineLimit); err != nil {
			msg.err = err
			return msg
		}
		if msg.traces, err = svc.RecentTraces(tracesLimit); err != nil {
			msg.err = err
			return msg
		}
		if msg.metrics, err = svc.CommunityMetrics(); err != nil {
			msg.err = err
		}
		return msg
	}
}

func (m Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

func (m Model) runTick() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		_, err := svc.RunTick(context.Background(), 0)
		return tickDoneMsg{err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "right", "l":
			m.active = (m.active + 1) % tabCount
			return m, nil
		case "shift+tab", "left", "h":
			m.active = (m.active + tabCount - 1) % tabCount
			return m, nil
		case "r":
			m.loading = true
			return m, m.fetch()
		case "t":
			if !m.ticking {
				m.ticking = true
				return m, m.runTick()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		bodyHeight := max(5, msg.Height-6)
		m.timeline.SetHeight(bodyHeight)
		m.traces.SetHeight(bodyHeight)
		return m, nil

	case dataMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.lastRefresh = time.Now()
			m.timeline.SetRows(timelineRows(msg.timeline))
			m.traces.SetRows(traceRows(msg.traces))
			m.metrics = msg.metrics
		}
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(m.fetch(), m.scheduleRefresh())

	case tickDoneMsg:
		m.ticking = false
		m.err = msg.err
		return m, m.fetch()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.active {
	case tabTimeline:
		m.timeline, cmd = m.timeline.Update(msg)
	case tabTraces:
		m.traces, cmd = m.traces.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	switch m.active {
	case tabTimeline:
		b.WriteString(m.timeline.View())
	case tabMetrics:
		b.WriteString(m.renderMetrics())
	case tabTraces:
		b.WriteString(m.traces.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderTabs() string {
	parts := make([]string, 0, int(tabCount))
	for i := tab(0); i < tabCount; i++ {
		if i == m.active {
			parts = append(parts, m.styles.ActiveTab.Render(tabNames[i]))
		} else {
			parts = append(parts, m.styles.Tab.Render(tabNames[i]))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) renderMetrics() string {
	var b strings.Builder
	b.WriteString(m.styles.Header.Render("Community Health"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%-22s %d\n", "Users", m.metrics.Users))
	b.WriteString(fmt.Sprintf("%-22s %d\n", "AI accounts", m.metrics.Agents))
	b.WriteString(fmt.Sprintf("%-22s %d\n", "Posts", m.metrics.Posts))
	b.WriteString(fmt.Sprintf("%-22s %d\n", "Comments", m.metrics.Comments))
	b.WriteString(fmt.Sprintf("%-22s %d\n", "Likes", m.metrics.Likes))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%-22s %.3f\n", "Avg quality", m.metrics.AvgQuality))
	b.WriteString(fmt.Sprintf("%-22s %.3f\n", "Persona consistency", m.metrics.PersonaConsistency))
	b.WriteString(fmt.Sprintf("%-22s %.3f\n", "Emotion continuity", m.metrics.EmotionContinuity))
	b.WriteString(fmt.Sprintf("%-22s %.3f\n", "Interaction quality", m.metrics.InteractionQuality))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%-22s %s / %s\n", "Backend", m.metrics.Provider, m.metrics.Model))
	if m.metrics.LastTickStatus != "" {
		b.WriteString(fmt.Sprintf("%-22s %s\n", "Last tick", m.metrics.LastTickStatus))
	}
	return b.String()
}

func (m Model) renderFooter() string {
	var status string
	switch {
	case m.err != nil:
		status = m.styles.Error.Render("error: " + m.err.Error())
	case m.ticking:
		status = m.spinner.View() + " running tick"
	case m.loading:
		status = m.spinner.View() + " loading"
	default:
		status = m.styles.Muted.Render("refreshed " + m.lastRefresh.Format("15:04:05"))
	}
	help := m.styles.Muted.Render("tab: switch  r: refresh  t: tick  q: quit")
	return status + "  " + help
}

func timelineRows(items []store.TimelineItem) []table.Row {
	rows := make([]table.Row, 0, len(items))
	for _, item := range items {
		author := item.Nickname
		if item.AuthorType == store.SubjectAgent {
			author = "@" + item.Handle
		}
		rows = append(rows, table.Row{
			clip(author, 18),
			item.ContentType,
			clip(item.Body, 60),
			fmt.Sprintf("%d", item.Likes),
			fmt.Sprintf("%d", item.Replies),
		})
	}
	return rows
}

func traceRows(traces []store.TraceRow) []table.Row {
	rows := make([]table.Row, 0, len(traces))
	for _, tr := range traces {
		rows = append(rows, table.Row{
			clip("@"+tr.Handle, 18),
			tr.Phase,
			clip(tr.Summary, 70),
		})
	}
	return rows
}

func clip(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run starts the dashboard in the alternate screen.
func Run(svc *service.Service) error {
	_, err := tea.NewProgram(NewModel(svc), tea.WithAltScreen()).Run()
	return err
}
