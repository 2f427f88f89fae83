// Package tui renders the progress of a dataset load in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/service"
	"github.com/mmcdole/tablesync/internal/tui/components"
	"github.com/mmcdole/tablesync/internal/tui/styles"
)

const (
	progressBuffer = 256
	maxBarWidth    = 60
)

// Model is the Bubble Tea model of the progress view
type Model struct {
	Title    string
	Order    []string
	Datasets map[string]*components.DatasetState

	Completed int
	Total     int

	Result  *service.Result
	Err     error
	Done    bool
	Aborted bool

	keys    KeyMap
	spinner spinner.Model
	bar     progress.Model
	events  <-chan domain.ProgressEvent
	load    tea.Cmd
}

// NewModel creates the progress view for datasets. load is started by Init
// and events must carry the progress of that load.
func NewModel(title string, datasets []domain.Dataset, events <-chan domain.ProgressEvent, load tea.Cmd) Model {
	m := Model{
		Title:    title,
		Datasets: make(map[string]*components.DatasetState, len(datasets)),
		Total:    len(datasets),
		keys:     DefaultKeyMap(),
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(styles.SpinnerStyle),
		),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		events: events,
		load:   load,
	}
	for _, ds := range datasets {
		m.Order = append(m.Order, ds.Name)
		m.Datasets[ds.Name] = &components.DatasetState{Name: ds.Name, Status: domain.StatusPending}
	}
	return m
}

// Init starts the spinner, the load and the progress listener
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, listenProgressCmd(m.events)}
	if m.load != nil {
		cmds = append(cmds, m.load)
	}
	return tea.Batch(cmds...)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-12, 10), maxBarWidth)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.Aborted = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ProgressMsg:
		m.apply(msg.Event)
		return m, listenProgressCmd(m.events)

	case LoadDoneMsg:
		m.Done = true
		m.Result = msg.Result
		m.Err = msg.Err
		// Events can trail the result through the channel; the result is
		// authoritative.
		if msg.Result != nil {
			for name, records := range msg.Result.Payloads {
				if st, ok := m.Datasets[name]; ok && !st.Status.Terminal() {
					st.Status, st.Rows, st.FromCache = domain.StatusComplete, len(records), msg.Result.FromCache
				}
			}
			for name, err := range msg.Result.Failures {
				if st, ok := m.Datasets[name]; ok && !st.Status.Terminal() {
					st.Status, st.Error = domain.StatusFailed, err
				}
			}
			m.Completed = m.Total
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) apply(ev domain.ProgressEvent) {
	st, ok := m.Datasets[ev.Dataset]
	if !ok {
		return
	}
	st.Apply(ev)
	if ev.Completed > m.Completed {
		m.Completed = ev.Completed
	}
}

// View renders the dataset rows and the overall progress bar
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(styles.TitleStyle.Render(m.Title))
	b.WriteString("\n\n")

	frame := m.spinner.View()
	for _, name := range m.Order {
		b.WriteString(m.Datasets[name].Render(frame))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.percent()))
	b.WriteString(styles.DimStyle.Render(fmt.Sprintf("  %d/%d", m.Completed, m.Total)))

	switch {
	case m.Err != nil:
		b.WriteString("\n\n")
		b.WriteString(styles.ErrorStyle.Render("Error: " + m.Err.Error()))
	case !m.Done:
		b.WriteString(styles.HelpStyle.Render("\n" + m.keys.Quit.Help().Key + " " + m.keys.Quit.Help().Desc))
	}

	return styles.PanelStyle.Render(b.String()) + "\n"
}

func (m Model) percent() float64 {
	if m.Total == 0 {
		return 1
	}
	return float64(m.Completed) / float64(m.Total)
}

// Run drives svc.Load behind the progress view and returns its outcome.
// Quitting the view cancels the load.
func Run(ctx context.Context, svc Loader, title string, datasets []domain.Dataset, opts service.LoadOptions, programOpts ...tea.ProgramOption) (*service.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan domain.ProgressEvent, progressBuffer)
	observer := NewChannelObserver(events)

	onProgress := opts.OnProgress
	opts.OnProgress = func(ev domain.ProgressEvent) {
		observer.OnProgress(ev)
		if onProgress != nil {
			onProgress(ev)
		}
	}

	model := NewModel(title, datasets, events, LoadCmd(ctx, svc, datasets, opts))
	final, err := tea.NewProgram(model, programOpts...).Run()
	if err != nil {
		return nil, fmt.Errorf("progress view: %w", err)
	}

	m := final.(Model)
	if m.Aborted && !m.Done {
		return nil, context.Canceled
	}
	return m.Result, m.Err
}
