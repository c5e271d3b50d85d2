package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/filter-bridge/errors"
	"github.com/wippyai/filter-bridge/library"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const maxEvents = 6

type (
	runner   func(context.Context) (jobResult, error)
	reloader func() error
)

type watchModel struct {
	ctx     context.Context
	job     job
	run     runner
	reload  reloader
	spinner spinner.Model

	busy   bool
	runs   int
	epoch  uint64
	last   *jobResult
	err    error
	events []string
}

type ranMsg struct {
	res jobResult
	err error
}

type reloadedMsg struct {
	err error
}

type libraryEventMsg library.Event

func newWatchModel(ctx context.Context, j job, run runner, reload reloader) *watchModel {
	return &watchModel{
		ctx:     ctx,
		job:     j,
		run:     run,
		reload:  reload,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m *watchModel) Init() tea.Cmd {
	return nil
}

func (m *watchModel) runFilter() tea.Msg {
	res, err := m.run(m.ctx)
	return ranMsg{res: res, err: err}
}

func (m *watchModel) reloadLibrary() tea.Msg {
	return reloadedMsg{err: m.reload()}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			return m, tea.Batch(m.runFilter, m.spinner.Tick)

		case "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			return m, tea.Batch(m.reloadLibrary, m.spinner.Tick)
		}

	case ranMsg:
		m.busy = false
		m.runs++
		m.err = msg.err
		if msg.err == nil {
			res := msg.res
			m.last = &res
		}

	case reloadedMsg:
		m.busy = false
		m.err = msg.err

	case libraryEventMsg:
		if msg.Key == m.job.lib {
			if msg.Type == library.EventLoaded {
				m.epoch = msg.Epoch
			}
			m.events = append(m.events, fmt.Sprintf("%s epoch %d", msg.Type, msg.Epoch))
			if len(m.events) > maxEvents {
				m.events = m.events[len(m.events)-maxEvents:]
			}
		}

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("filterbridge watch"))
	b.WriteString(" ")
	b.WriteString(m.job.lib)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("symbol:"), m.job.symbol)
	fmt.Fprintf(&b, "%s %s -> %s\n", labelStyle.Render("image: "), m.job.in, m.job.out)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("epoch: "), m.epoch)
	fmt.Fprintf(&b, "%s %d\n\n", labelStyle.Render("runs:  "), m.runs)

	switch {
	case m.busy:
		b.WriteString(m.spinner.View())
		b.WriteString(" working...")
	case m.err != nil:
		msg := fmt.Sprintf("Error: %v", m.err)
		if status, ok := errors.Status(m.err); ok {
			msg = fmt.Sprintf("status %d: %v", status, m.err)
		}
		b.WriteString(errorStyle.Render(msg))
	case m.last != nil:
		b.WriteString(resultStyle.Render("ok " + m.last.String()))
	default:
		b.WriteString("press enter to run the filter")
	}
	b.WriteString("\n\n")

	for _, e := range m.events {
		b.WriteString(helpStyle.Render("  " + e))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run • r reload • q quit"))
	return b.String()
}

func newWatchCmd(a *app) *cobra.Command {
	var j job
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Interactively reload a library and rerun a filter",
		Long: `watch keeps a filter library loaded and lets you rebuild it on disk,
reload it with r and rerun the filter with enter.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.Unsupported(errors.PhaseConfig, "watch requires a terminal")
			}
			return a.watch(cmd.Context(), j)
		},
	}
	addJobFlags(cmd, &j)
	return cmd
}

// openWatch opens the job's library and binds a console model to it.
func (a *app) openWatch(ctx context.Context, j job) (*watchModel, error) {
	if err := a.manager.Open(j.lib); err != nil {
		return nil, err
	}
	model := newWatchModel(ctx, j,
		func(ctx context.Context) (jobResult, error) { return a.runJob(ctx, j) },
		func() error { return a.manager.Reopen(j.lib) },
	)
	model.epoch, _ = a.manager.Epoch(j.lib)
	return model, nil
}

func (a *app) watch(ctx context.Context, j job) error {
	model, err := a.openWatch(ctx, j)
	if err != nil {
		return err
	}
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Events are only raised from reloads and runs started inside the program,
	// so Send always has a running event loop to deliver to.
	cancel := a.manager.Subscribe(library.ObserverFunc(func(e library.Event) {
		p.Send(libraryEventMsg(e))
	}))
	defer cancel()

	_, err = p.Run()
	return err
}
