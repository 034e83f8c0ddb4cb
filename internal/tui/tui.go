// Package tui renders live deployment progress: one row per stage, updated
// from the stage runner's notify callback while the pipeline runs in a
// background goroutine.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pipewright/pipewright/internal/pipeline"
)

// StageMsg carries a stage transition into the model.
type StageMsg pipeline.StageInfo

// DoneMsg signals that the pipeline finished, successfully or not.
type DoneMsg struct {
	Err error
}

type stageRow struct {
	stage     pipeline.Stage
	status    pipeline.Status
	startedAt time.Time
	endedAt   time.Time
	lastError string
}

// Model is the bubbletea model for the deployment progress view.
type Model struct {
	title      string
	rows       []stageRow
	spinner    spinner.Model
	err        error
	done       bool
	cancelled  bool
	cancelling bool
	cancel     context.CancelFunc
	width      int
}

// NewModel creates a progress model over the deployment stages. cancel is
// invoked when the operator aborts; the pipeline's context error then
// arrives as DoneMsg.
func NewModel(title string, cancel context.CancelFunc) Model {
	rows := make([]stageRow, 0, len(pipeline.Stages()))
	for _, stage := range pipeline.Stages() {
		rows = append(rows, stageRow{stage: stage, status: pipeline.StatusPending})
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		title:   title,
		rows:    rows,
		spinner: s,
		cancel:  cancel,
		width:   80,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case StageMsg:
		for i := range m.rows {
			if m.rows[i].stage == msg.Stage {
				m.rows[i].status = msg.Status
				if !msg.StartedAt.IsZero() {
					m.rows[i].startedAt = msg.StartedAt
				}
				if !msg.EndedAt.IsZero() {
					m.rows[i].endedAt = msg.EndedAt
				}
				m.rows[i].lastError = msg.LastError
				break
			}
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		if m.cancelling {
			m.cancelled = true
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done {
				return m, tea.Quit
			}
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
			return m, nil
		case "enter":
			if m.done {
				return m, tea.Quit
			}
		}
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	for _, row := range m.rows {
		icon := dimStyle.Render("..")
		switch row.status {
		case pipeline.StatusRunning:
			icon = m.spinner.View()
		case pipeline.StatusSuccess:
			icon = successStyle.Render("OK")
		case pipeline.StatusSkipped:
			icon = successStyle.Render("OK")
		case pipeline.StatusFailed:
			icon = errStyle.Render("XX")
		}

		line := fmt.Sprintf("  %s %-12s", icon, row.stage)
		switch {
		case row.status == pipeline.StatusSkipped:
			line += dimStyle.Render(" already done")
		case row.status == pipeline.StatusRunning && !row.startedAt.IsZero():
			line += dimStyle.Render(" " + time.Since(row.startedAt).Round(time.Second).String())
		case row.status == pipeline.StatusFailed && row.lastError != "":
			line += " " + errStyle.Render(row.lastError)
		case row.status == pipeline.StatusSuccess && !row.endedAt.IsZero() && !row.startedAt.IsZero():
			line += dimStyle.Render(" " + row.endedAt.Sub(row.startedAt).Round(time.Second).String())
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.cancelling && !m.done:
		b.WriteString(errStyle.Render("  Cancelling, waiting for the current stage to stop..."))
		b.WriteString("\n")
	case m.done && m.err != nil:
		b.WriteString(errStyle.Render("  Deployment failed: " + m.err.Error()))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Re-run to resume from the failed stage • enter to exit"))
		b.WriteString("\n")
	case m.done:
		b.WriteString(successStyle.Render("  Deployment complete!"))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Press enter to exit"))
		b.WriteString("\n")
	default:
		b.WriteString(dimStyle.Render("  q: cancel deployment"))
		b.WriteString("\n")
	}

	return b.String()
}

// Err returns the pipeline error, if any.
func (m Model) Err() error {
	return m.err
}

// Cancelled reports whether the operator aborted the run.
func (m Model) Cancelled() bool {
	return m.cancelled
}

// Run drives fn under the progress view. fn receives a notify callback for
// stage transitions and a context that is cancelled when the operator
// aborts.
func Run(ctx context.Context, title string, fn func(ctx context.Context, notify pipeline.Notify) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(title, cancel), tea.WithAltScreen())

	go func() {
		err := fn(ctx, func(info pipeline.StageInfo) {
			p.Send(StageMsg(info))
		})
		p.Send(DoneMsg{Err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("running progress view: %w", err)
	}

	fm := finalModel.(Model)
	if fm.Cancelled() {
		return fmt.Errorf("cancelled")
	}
	return fm.Err()
}

// styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.DoubleBorder()).BorderBottom(true).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)
