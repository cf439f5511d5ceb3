package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/tfx/internal/repositories"
	"github.com/desertthunder/tfx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	MonitorView ViewState = iota
	FailuresView
)

// DefaultRefresh is the interval between status reloads.
const DefaultRefresh = time.Second

// maxActiveRows bounds the progress bars shown at once.
const maxActiveRows = 12

// Pipeline is the part of [tasks.Scheduler] the monitor drives.
type Pipeline interface {
	StageLimit(stage tasks.Stage) int
	SetStageLimit(stage tasks.Stage, n int) error
	InFlight(stage tasks.Stage) int
	IsRunning() bool
	Start(ctx context.Context) error
	Stop()
}

// ReportFunc loads the current pipeline status.
type ReportFunc func() (*repositories.StatusReport, error)

// active is the last progress report of an entity still inside a stage.
type active struct {
	update tasks.ProgressUpdate
	seen   time.Time
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	pipeline Pipeline
	load     ReportFunc
	updates  <-chan tasks.ProgressUpdate
	refresh  time.Duration
	width    int
	height   int
	selected int
	active   map[string]active
	finished map[string]int
	report   *repositories.StatusReport
	failures list.Model
	bar      progress.Model
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a new monitor for pipeline. updates is the channel behind the scheduler's [tasks.ChannelSink].
func NewModel(ctx context.Context, pipeline Pipeline, load ReportFunc, updates <-chan tasks.ProgressUpdate) *Model {
	failures := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	failures.Title = "Failures"

	return &Model{
		ctx:      ctx,
		view:     MonitorView,
		pipeline: pipeline,
		load:     load,
		updates:  updates,
		refresh:  DefaultRefresh,
		active:   make(map[string]active),
		finished: make(map[string]int),
		failures: failures,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(30)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts listening for progress and loads the first report.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForProgress(), m.loadReport(), m.scheduleRefresh())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, min(40, msg.Width-50))
		m.failures.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		switch m.view {
		case MonitorView:
			return m.handleMonitorKeys(msg)
		case FailuresView:
			return m.handleFailuresKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == FailuresView {
		var cmd tea.Cmd
		m.failures, cmd = m.failures.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		m.track(msg.data.(tasks.ProgressUpdate))
		return m, m.waitForProgress()

	case MsgProgressClosed:
		m.updates = nil
		return m, nil

	case MsgReportLoaded:
		data := msg.data.(struct {
			report *repositories.StatusReport
			err    error
		})
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.report = data.report
		m.failures.SetItems(failureItems(data.report.Failures))
		return m, nil

	case MsgRefresh:
		return m, tea.Batch(m.loadReport(), m.scheduleRefresh())

	case MsgPipelineToggled:
		if err, ok := msg.data.(error); ok && err != nil {
			m.err = err
		}
		return m, nil
	}
	return m, nil
}

// track records a progress report; a finished stage removes the entity from the active set.
func (m *Model) track(u tasks.ProgressUpdate) {
	id := u.Label + "\x00" + u.Key
	if u.Done() {
		delete(m.active, id)
		m.finished[u.Label]++
		return
	}
	m.active[id] = active{update: u, seen: time.Now()}
}

func (m *Model) handleMonitorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	stage := tasks.Stages[m.selected]

	switch {
	case key.Matches(msg, m.keys.up):
		m.selected = (m.selected + len(tasks.Stages) - 1) % len(tasks.Stages)
	case key.Matches(msg, m.keys.down):
		m.selected = (m.selected + 1) % len(tasks.Stages)
	case key.Matches(msg, m.keys.inc):
		m.setLimit(stage, m.pipeline.StageLimit(stage)+1)
	case key.Matches(msg, m.keys.dec):
		if n := m.pipeline.StageLimit(stage); n > 0 {
			m.setLimit(stage, n-1)
		}
	case key.Matches(msg, m.keys.pause):
		return m, m.togglePipeline()
	case key.Matches(msg, m.keys.failures):
		m.view = FailuresView
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *Model) handleFailuresKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.back) && m.failures.FilterState() != list.Filtering {
		m.view = MonitorView
		return m, nil
	}

	var cmd tea.Cmd
	m.failures, cmd = m.failures.Update(msg)
	return m, cmd
}

func (m *Model) setLimit(stage tasks.Stage, n int) {
	if err := m.pipeline.SetStageLimit(stage, n); err != nil {
		m.err = err
		return
	}
	m.err = nil
}

func (m *Model) togglePipeline() tea.Cmd {
	return func() tea.Msg {
		if m.pipeline.IsRunning() {
			m.pipeline.Stop()
			return pipelineToggledMsg(nil)
		}
		return pipelineToggledMsg(m.pipeline.Start(m.ctx))
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	updates := m.updates
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case update, ok := <-updates:
			if !ok {
				return progressClosedMsg()
			}
			return progressUpdateMsg(update)
		case <-m.ctx.Done():
			return progressClosedMsg()
		}
	}
}

func (m *Model) loadReport() tea.Cmd {
	return func() tea.Msg {
		report, err := m.load()
		return reportLoadedMsg(report, err)
	}
}

func (m *Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return refreshMsg() })
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case FailuresView:
		return m.renderFailures()
	default:
		return m.renderMonitor()
	}
}

func (m *Model) renderMonitor() string {
	var b strings.Builder

	state := styles.On("running", lipgloss.Color("#04B575"))
	if !m.pipeline.IsRunning() {
		state = styles.On("paused", lipgloss.Color("#FFA500"))
	}
	b.WriteString(styles.title.Render("tfx watch") + " " + state + "\n\n")

	b.WriteString(m.renderStages())
	b.WriteString("\n")
	b.WriteString(m.renderCounts())
	b.WriteString("\n")
	b.WriteString(m.renderActive())

	if m.err != nil {
		b.WriteString("\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderStages() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  %-10s %9s %9s\n", "Stage", "In flight", "Finished"))

	for i, stage := range tasks.Stages {
		limit := m.pipeline.StageLimit(stage)
		budget := fmt.Sprintf("%d/%d", m.pipeline.InFlight(stage), limit)
		line := fmt.Sprintf("%-10s %9s %9d", stage.Title(), budget, m.finished[stage.String()])
		if limit == 0 {
			line += " " + styles.warn.Render("paused")
		}

		if i == m.selected {
			b.WriteString(styles.selected.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderCounts() string {
	if m.report == nil {
		return styles.help.Render("loading status...") + "\n"
	}

	var b strings.Builder
	for _, row := range []struct {
		name   string
		counts map[string]int
	}{
		{"Archives", m.report.Archives},
		{"Media", m.report.Media},
		{"Sidecars", m.report.Sidecars},
	} {
		b.WriteString(fmt.Sprintf("%-9s %s\n", row.name, countLine(row.counts)))
	}

	records := fmt.Sprintf("%-9s %d", "Records", m.report.Records)
	if n := len(m.report.Failures); n > 0 {
		records += "  " + styles.warn.Render(fmt.Sprintf("%d failed or parked (f)", n))
	}
	b.WriteString(records + "\n")
	return b.String()
}

// countLine renders counts as "state n" pairs, sorted by state name.
func countLine(counts map[string]int) string {
	if len(counts) == 0 {
		return styles.help.Render("none")
	}

	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)

	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = styles.As(fmt.Sprintf("%s %d", s, counts[s]), stateColor(s))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderActive() string {
	if len(m.active) == 0 {
		return styles.help.Render("nothing in progress") + "\n"
	}

	rows := make([]active, 0, len(m.active))
	for _, a := range m.active {
		rows = append(rows, a)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].update.Label != rows[j].update.Label {
			return stageIndex(rows[i].update.Label) < stageIndex(rows[j].update.Label)
		}
		return rows[i].update.Key < rows[j].update.Key
	})

	var b strings.Builder
	for i, a := range rows {
		if i == maxActiveRows {
			b.WriteString(styles.help.Render(fmt.Sprintf("... and %d more", len(rows)-maxActiveRows)) + "\n")
			break
		}
		b.WriteString(fmt.Sprintf("%-15s %s %3.0f%% %s\n",
			a.update.Label, m.bar.ViewAs(a.update.Fraction), a.update.Fraction*100, truncate(a.update.Key, 40)))
	}
	return b.String()
}

func (m *Model) renderFailures() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.failures.View(), m.help.ShortHelpView(helpKeys))
}

func stageIndex(label string) int {
	stage, err := tasks.ParseStage(label)
	if err != nil {
		return len(tasks.Stages)
	}
	return int(stage)
}

// truncate keeps the tail of s, where file names live.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}
