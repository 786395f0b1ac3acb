package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tally/internal/history"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tally"
)

type historyModel struct {
	app    *tally.App
	width  int
	height int

	entries []store.HistoryEntry
	stats   history.Stats
	cursor  int
}

func newHistoryModel(app *tally.App) historyModel {
	return historyModel{app: app}
}

func (h *historyModel) setSize(w, hh int) {
	h.width = w
	h.height = hh
}

type historyDataMsg struct {
	entries []store.HistoryEntry
	stats   history.Stats
}

func (h historyModel) refresh() tea.Cmd {
	log := h.app.History
	return func() tea.Msg {
		entries, err := log.Recent(0)
		if err != nil {
			return statusMsg{text: fmt.Sprintf("History error: %v", err), isError: true}
		}
		return historyDataMsg{entries: entries, stats: history.ComputeStats(entries, timeNow())}
	}
}

func (h historyModel) update(msg tea.Msg) (historyModel, tea.Cmd) {
	switch msg := msg.(type) {
	case historyDataMsg:
		h.entries = msg.entries
		h.stats = msg.stats
		if h.cursor >= len(h.entries) {
			h.cursor = max(0, len(h.entries)-1)
		}
		return h, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if h.cursor > 0 {
				h.cursor--
			}
		case key.Matches(msg, keys.Down):
			if h.cursor < len(h.entries)-1 {
				h.cursor++
			}
		}
	}
	return h, nil
}

// visibleRows is how many entries fit under the stats panel.
func (h historyModel) visibleRows() int {
	return max(3, h.height-14)
}

func (h historyModel) view() string {
	w := h.width - 4
	return lipgloss.JoinVertical(lipgloss.Left,
		h.renderStats(w),
		h.renderList(w),
	)
}

func (h historyModel) renderStats(w int) string {
	f := h.app.FormatNumber
	cell := lipgloss.NewStyle().Width(max(12, (w-6)/3))

	row1 := lipgloss.JoinHorizontal(lipgloss.Top,
		cell.Render(subtitleStyle.Render("Today ")+highlightStyle.Render(f(h.stats.TodayCount))),
		cell.Render(subtitleStyle.Render("Week ")+highlightStyle.Render(f(h.stats.WeekCount))),
		cell.Render(subtitleStyle.Render("Month ")+highlightStyle.Render(f(h.stats.MonthCount))),
	)
	row2 := lipgloss.JoinHorizontal(lipgloss.Top,
		cell.Render(subtitleStyle.Render("Logged ")+highlightStyle.Render(f(h.stats.TotalCount))),
		cell.Render(subtitleStyle.Render("Sessions ")+highlightStyle.Render(fmt.Sprint(h.stats.TotalSessions))),
		cell.Render(subtitleStyle.Render("Average ")+highlightStyle.Render(f(h.stats.AveragePerSession))),
	)

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Statistics"), "", row1, row2),
	)
}

func (h historyModel) renderList(w int) string {
	title := titleStyle.Render(fmt.Sprintf("Recent (%d)", len(h.entries)))
	if len(h.entries) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			title,
			mutedStyle.Render("No history yet. Tap on the Counter view to start."),
		))
	}

	n := h.visibleRows()
	start := 0
	if h.cursor >= n {
		start = h.cursor - n + 1
	}
	end := min(len(h.entries), start+n)

	var rows []string
	rows = append(rows, title)
	for i := start; i < end; i++ {
		e := h.entries[i]
		kind := "+1  "
		if e.Type == store.EntryBulk {
			kind = "bulk"
		}
		cursor := "  "
		style := normalItemStyle
		if i == h.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		row := fmt.Sprintf("%s%s  %s  %12s  %s",
			cursor,
			e.Timestamp.Local().Format("Jan 02 15:04"),
			kind,
			h.app.FormatNumber(e.Count),
			mutedStyle.Render(formatAgo(e.Timestamp)),
		)
		rows = append(rows, style.Render(row))
	}

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
