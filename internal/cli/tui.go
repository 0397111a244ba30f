package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/nftgen/pkg/pipeline"
)

// Progress view styles
var (
	barFullStyle  = lipgloss.NewStyle().Foreground(colorCyan)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorDim)
	listDimStyle  = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	defaultBarWidth = 40
	recentItems     = 5
	tickInterval    = 100 * time.Millisecond
)

// =============================================================================
// Messages
// =============================================================================

type itemDoneMsg struct {
	done, total int
	item        pipeline.ItemResult
}

type runFinishedMsg struct{}

type tickMsg time.Time

// =============================================================================
// ProgressModel - Live generation progress
// =============================================================================

// ProgressModel is the bubbletea model behind generate --tui.
type ProgressModel struct {
	Total     int
	Done      int
	Failed    int
	Recent    []pipeline.ItemResult
	Started   time.Time
	Elapsed   time.Duration
	Width     int
	Stopping  bool
	Finished  bool
	cancelRun context.CancelFunc
}

// NewProgressModel creates a model; cancel stops the run on q or ctrl+c.
func NewProgressModel(cancel context.CancelFunc) ProgressModel {
	return ProgressModel{
		Started:   time.Now(),
		Width:     defaultBarWidth,
		cancelRun: cancel,
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// Stop dispatch and wait for in-flight items so the report is written.
			if !m.Stopping && m.cancelRun != nil {
				m.cancelRun()
			}
			m.Stopping = true
		}
	case itemDoneMsg:
		m.Done, m.Total = msg.done, msg.total
		if msg.item.Status == pipeline.StatusFailed {
			m.Failed++
		}
		m.Recent = append(m.Recent, msg.item)
		if len(m.Recent) > recentItems {
			m.Recent = m.Recent[len(m.Recent)-recentItems:]
		}
	case tickMsg:
		m.Elapsed = time.Since(m.Started)
		if m.Finished {
			return m, nil
		}
		return m, tick()
	case runFinishedMsg:
		m.Finished = true
		m.Elapsed = time.Since(m.Started)
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.Width = min(max(msg.Width-30, 10), 80)
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Generating"))
	b.WriteString("\n\n")
	b.WriteString(renderBar(m.Done, m.Total, m.Width))
	b.WriteString(fmt.Sprintf("  %s/%d",
		StyleNumber.Render(fmt.Sprint(m.Done)), m.Total))
	if m.Failed > 0 {
		b.WriteString("  " + styleFailed.Render(fmt.Sprintf("%d failed", m.Failed)))
	}
	b.WriteString("  " + listDimStyle.Render(m.Elapsed.Round(100*time.Millisecond).String()))
	b.WriteString("\n\n")

	for _, it := range m.Recent {
		if it.Status == pipeline.StatusFailed {
			b.WriteString(styleIconError.Render(iconError))
			b.WriteString(fmt.Sprintf(" #%d %s\n", it.Index, listDimStyle.Render(truncate(it.Error, 60))))
			continue
		}
		b.WriteString(styleIconSuccess.Render(iconSuccess))
		b.WriteString(fmt.Sprintf(" #%d %s\n", it.Index, listDimStyle.Render(fmt.Sprintf("%dms", it.DurationMS))))
	}

	b.WriteString("\n")
	if m.Stopping {
		b.WriteString(StyleWarning.Render("stopping, waiting for running items…"))
	} else {
		b.WriteString(listDimStyle.Render("q stop"))
	}
	b.WriteString("\n")
	return b.String()
}

func renderBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = min(done*width/total, width)
	}
	return barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

// =============================================================================
// Runner Glue
// =============================================================================

// runWithTUI runs the batch while the progress view owns the terminal.
func runWithTUI(ctx context.Context, runner *pipeline.Runner, opts pipeline.Options) (*pipeline.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(cancel), tea.WithOutput(os.Stderr))
	opts.Progress = func(done, total int, item pipeline.ItemResult) {
		p.Send(itemDoneMsg{done: done, total: total, item: item})
	}

	type result struct {
		report *pipeline.Report
		err    error
	}
	results := make(chan result, 1)
	go func() {
		report, err := runner.Generate(ctx, opts)
		results <- result{report, err}
		p.Send(runFinishedMsg{})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		res := <-results
		if res.err != nil {
			return res.report, res.err
		}
		return res.report, err
	}
	res := <-results
	return res.report, res.err
}
