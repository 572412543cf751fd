// SPDX-License-Identifier: MIT

// Package tui holds the terminal interfaces: an input device picker and a
// live monitor of the analysis output.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/controls"
)

// DefaultRefresh is the monitor's redraw interval.
const DefaultRefresh = 50 * time.Millisecond

// beatHold is how many redraws a beat stays lit.
const beatHold = 3

var (
	labelStyle = lipgloss.NewStyle().Width(7)
	beatStyle  = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1A1A1A")).
			Background(lipgloss.Color("#F25D94")).
			Padding(0, 1).
			Bold(true)
	peakStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F2C14E")).
			Bold(true)
)

type tickMsg time.Time

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Monitor polls a SnapshotProvider and draws level, band and beat meters.
type Monitor struct {
	snaps    analysis.SnapshotProvider
	controls *controls.State
	refresh  time.Duration
	title    string

	bar   progress.Model
	snap  analysis.Snapshot
	stats analysis.Stats
	ctrls []controls.Control
	hold  int
}

// NewMonitor creates a monitor model. ctrls may be nil.
func NewMonitor(title string, snaps analysis.SnapshotProvider, ctrls *controls.State, refresh time.Duration) Monitor {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return Monitor{
		snaps:    snaps,
		controls: ctrls,
		refresh:  refresh,
		title:    title,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
	}
}

func (m Monitor) Init() tea.Cmd {
	return tick(m.refresh)
}

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(60, msg.Width-20))

	case tickMsg:
		m.sample()
		return m, tick(m.refresh)
	}
	return m, nil
}

// sample copies the latest analysis state into the model.
func (m *Monitor) sample() {
	m.snap = m.snaps.Last()
	m.stats = m.snaps.Stats()
	if m.controls != nil {
		m.ctrls = m.controls.Snapshot()
	}
	switch {
	case m.snap.Beat:
		m.hold = beatHold
	case m.hold > 0:
		m.hold--
	}
}

func (m Monitor) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	m.meter(&sb, "level", m.snap.Level)
	m.meter(&sb, "low", m.snap.Bands.Low)
	m.meter(&sb, "mid", m.snap.Bands.Mid)
	m.meter(&sb, "high", m.snap.Bands.High)

	fmt.Fprintf(&sb, "\nvolume %.4f  ", m.snap.Volume)
	if m.snap.Peak {
		sb.WriteString(peakStyle.Render("PEAK"))
	} else {
		sb.WriteString("    ")
	}
	sb.WriteString("  ")
	if m.hold > 0 {
		sb.WriteString(beatStyle.Render("BEAT"))
	}
	sb.WriteString("\n\n")

	if len(m.ctrls) > 0 {
		parts := make([]string, len(m.ctrls))
		for i, c := range m.ctrls {
			parts[i] = c.String()
		}
		sb.WriteString("midi   " + strings.Join(parts, " ") + "\n\n")
	}

	sb.WriteString(dimStyle.Render(fmt.Sprintf("frames %d  beats %d  overruns %d  recovered %d",
		m.stats.Frames, m.stats.Beats, m.stats.Overruns, m.stats.Recovered)))
	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

func (m Monitor) meter(sb *strings.Builder, label string, v float64) {
	sb.WriteString(labelStyle.Render(label))
	sb.WriteString(m.bar.ViewAs(v))
	fmt.Fprintf(sb, " %.2f\n", v)
}

// RunMonitor runs the monitor until the user quits or ctx is cancelled.
func RunMonitor(ctx context.Context, m Monitor) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
