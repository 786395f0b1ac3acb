package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tally/internal/syncq"
	"github.com/sadopc/tally/internal/tally"
)

type syncModel struct {
	app    *tally.App
	width  int
	height int

	stats         syncq.Stats
	globalUpdated time.Time
	flushing      bool
}

func newSyncModel(app *tally.App) syncModel {
	return syncModel{app: app, stats: app.Queue.Stats()}
}

func (s *syncModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

// refresh reads queue stats and, when reachable, the time the global count
// last changed.
func (s syncModel) refresh() tea.Cmd {
	q, rc, timeout := s.app.Queue, s.app.Remote, s.app.Config.Remote.Timeout
	return func() tea.Msg {
		msg := syncStatsMsg{stats: q.Stats()}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		msg.globalUpdated, msg.err = rc.LastUpdated(ctx)
		return msg
	}
}

type syncStatsMsg struct {
	stats         syncq.Stats
	globalUpdated time.Time
	err           error
}

func (s syncModel) flush() tea.Cmd {
	q := s.app.Queue
	return func() tea.Msg {
		return flushDoneMsg{outcome: q.Flush(context.Background())}
	}
}

func (s syncModel) update(msg tea.Msg) (syncModel, tea.Cmd) {
	switch msg := msg.(type) {
	case syncStatsMsg:
		s.stats = msg.stats
		if msg.err == nil {
			s.globalUpdated = msg.globalUpdated
		}
		return s, nil

	case tickMsg:
		s.stats = s.app.Queue.Stats()
		return s, nil

	case flushDoneMsg:
		s.flushing = false
		s.stats = s.app.Queue.Stats()
		return s, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Flush) && !s.flushing {
			s.flushing = true
			return s, s.flush()
		}
	}
	return s, nil
}

func flushStatus(out syncq.Outcome, pending int64, format func(int64) string) statusMsg {
	switch out {
	case syncq.Applied:
		return statusMsg{text: "Synced"}
	case syncq.QueuedForRetry:
		return statusMsg{text: fmt.Sprintf("Sync failed, %s still pending", format(pending)), isError: true}
	default:
		if pending == 0 {
			return statusMsg{text: "Nothing to sync"}
		}
		return statusMsg{text: "Sync already in progress"}
	}
}

func (s syncModel) view() string {
	w := s.width - 4
	cfg := s.app.Config
	f := s.app.FormatNumber

	label := lipgloss.NewStyle().Width(20)
	line := func(k, v string) string {
		return fmt.Sprintf("  %s %s", label.Render(k), v)
	}

	pending := successStyle.Render("0")
	if s.stats.Pending > 0 {
		pending = warningStyle.Render(f(s.stats.Pending))
	}
	breaker := successStyle.Render(s.stats.Breaker)
	if s.stats.Breaker != "closed" {
		breaker = warningStyle.Render(s.stats.Breaker)
	}
	lastErr := mutedStyle.Render("none")
	if s.stats.LastError != "" {
		lastErr = errorStyle.Render(s.stats.LastError) + mutedStyle.Render(" ("+formatAgo(s.stats.LastErrorAt)+")")
	}
	remote := cfg.Remote.Backend
	if cfg.Remote.URL != "" && cfg.Remote.Backend != "memory" {
		remote += " " + mutedStyle.Render(cfg.Remote.URL)
	}

	rows := []string{
		titleStyle.Render("Sync"),
		"",
		line("Waiting to sync", pending),
		line("Last synced", highlightStyle.Render(formatAgo(s.stats.LastSynced))),
		line("Last flush", highlightStyle.Render(formatAgo(s.stats.LastFlush))),
		line("Applied here", highlightStyle.Render(f(s.stats.AppliedTotal))),
		line("Global updated", highlightStyle.Render(formatAgo(s.globalUpdated))),
		line("Circuit", breaker),
		line("Last error", lastErr),
		"",
		line("Remote", highlightStyle.Render(remote)),
		line("Retry every", highlightStyle.Render(cfg.Sync.FlushInterval.String())),
		line("Call timeout", highlightStyle.Render(cfg.Sync.RemoteTimeout.String())),
		"",
	}

	hint := mutedStyle.Render("  f: sync now")
	if s.flushing {
		hint = warningStyle.Render("  syncing…")
	}
	rows = append(rows, hint)

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
