package cmd

import (
	"context"
	"fmt"

	"modio-repo/logger"
	"modio-repo/syncer"
	"modio-repo/ui"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const recentLimit = 5

// syncEventMsg carries a syncer event into the model.
type syncEventMsg syncer.Event

// syncDoneMsg is sent once the event channel is closed.
type syncDoneMsg struct{}

// SyncModel controls the UI for the sync command
type SyncModel struct {
	spinner spinner.Model
	events  <-chan syncer.Event

	// State
	status    string
	extracted []string
	errors    []string
	done      bool

	// Counters
	pages     int
	unchanged int
	changed   int
	failed    int
	skipped   int
}

func initialSyncModel(events <-chan syncer.Event) SyncModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ui.Accent

	return SyncModel{
		spinner: s,
		events:  events,
		status:  "Fetching the catalog...",
	}
}

func (m SyncModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForActivity(),
	)
}

func (m SyncModel) waitForActivity() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return syncDoneMsg{}
		}
		return syncEventMsg(ev)
	}
}

func (m SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case syncDoneMsg:
		m.done = true
		m.status = "Finished"
		return m, tea.Quit

	case syncEventMsg:
		m.apply(syncer.Event(msg))
		return m, m.waitForActivity()
	}

	return m, nil
}

func (m *SyncModel) apply(ev syncer.Event) {
	switch ev.Kind {
	case syncer.EventPage:
		m.pages++
		m.status = fmt.Sprintf("Working on catalog page %d (%s)", m.pages, ev.Message)
	case syncer.EventUnchanged:
		m.unchanged++
	case syncer.EventChanged:
		m.changed++
		m.status = fmt.Sprintf("Fetching %s (%s)...", ev.ModName, ev.Message)
	case syncer.EventExtracted:
		m.extracted = appendRecent(m.extracted, fmt.Sprintf("%s [%s]: %s", ev.ModName, ev.Platform, ev.Message))
	case syncer.EventFailed:
		m.failed++
		m.errors = appendRecent(m.errors, fmt.Sprintf("%s [%s]: %s", ev.ModName, ev.Platform, ev.Message))
	case syncer.EventSkipped:
		m.skipped++
	}
}

// appendRecent keeps the last recentLimit entries.
func appendRecent(list []string, item string) []string {
	list = append(list, item)
	if len(list) > recentLimit {
		list = list[len(list)-recentLimit:]
	}
	return list
}

func (m SyncModel) summary() string {
	return fmt.Sprintf("%d changed, %d unchanged, %d failed files, %d skipped", m.changed, m.unchanged, m.failed, m.skipped)
}

func (m SyncModel) View() string {
	var symbol string
	if m.done {
		symbol = ui.Success.Render("✓")
	} else {
		symbol = m.spinner.View()
	}

	s := fmt.Sprintf("\n %s %s\n\n", symbol, m.status)

	if len(m.extracted) > 0 {
		s += ui.Success.Render("Extracted:") + "\n" + ui.Bullets(m.extracted) + "\n"
	}
	if len(m.errors) > 0 {
		s += ui.Failure.Render("Errors:") + "\n" + ui.Bullets(m.errors) + "\n"
	}

	s += ui.Bold.Render(m.summary()) + "\n"
	if !m.done {
		s += ui.Muted.Render("q to stop") + "\n"
	}
	return s
}

// runSyncTUI runs s while rendering its progress. Quitting the UI stops the
// sync.
func runSyncTUI(ctx context.Context, s *syncer.Syncer) (syncer.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan syncer.Event, 100) // Buffer slightly to avoid blocking
	s.WithProgress(events)

	var (
		res    syncer.Result
		runErr error
	)
	// Warnings still reach the log file; on stderr they would tear the display.
	restoreStderr := logger.SuppressStderr()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer close(events)
		res, runErr = s.Run(ctx)
	}()

	_, err := tea.NewProgram(initialSyncModel(events)).Run()
	restoreStderr()
	if err != nil {
		logger.Log.Warnw("Progress display failed", zap.Error(err))
	}

	cancel()
	for range events {
	}
	<-finished
	return res, runErr
}
