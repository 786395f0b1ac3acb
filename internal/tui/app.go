// Package tui is the interactive terminal front end.
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tally/internal/export"
	"github.com/sadopc/tally/internal/tally"
)

// App is the root Bubble Tea model.
type App struct {
	app    *tally.App
	width  int
	height int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	counter counterModel
	charts  chartsModel
	history historyModel
	sync    syncModel

	help   help.Model
	status string
	isErr  bool
}

func NewApp(app *tally.App) App {
	h := help.New()
	h.ShowAll = false

	return App{
		app:        app,
		activeView: viewCounter,
		counter:    newCounterModel(app),
		charts:     newChartsModel(app),
		history:    newHistoryModel(app),
		sync:       newSyncModel(app),
		help:       h,
	}
}

// Run shows the UI until the user quits. Remote pushes for the global count
// and the daily map are forwarded into the program while it runs.
func Run(app *tally.App) error {
	p := tea.NewProgram(NewApp(app), tea.WithAltScreen())

	stopGlobal := app.Remote.SubscribeGlobal(func(n int64) { p.Send(globalCountMsg(n)) })
	defer stopGlobal()
	stopDaily := app.Remote.SubscribeDaily(func(m map[string]int64) { p.Send(dailyCountsMsg(m)) })
	defer stopDaily()

	_, err := p.Run()
	return err
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.counter.Init(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.counter.setSize(a.width, contentHeight)
		a.charts.setSize(a.width, contentHeight)
		a.history.setSize(a.width, contentHeight)
		a.sync.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Flush):
			var cmd tea.Cmd
			a.sync, cmd = a.sync.update(msg)
			return a, cmd
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewCounter
			return a, nil
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewCharts
			return a, a.charts.refresh()
		case key.Matches(msg, keys.Tab3):
			a.activeView = viewHistory
			return a, a.history.refresh()
		case key.Matches(msg, keys.Tab4):
			a.activeView = viewSync
			return a, a.sync.refresh()
		case key.Matches(msg, keys.Tab):
			a.activeView = (a.activeView + 1) % viewState(len(viewNames))
			return a, a.refreshCurrentView()
		}

	case tickMsg:
		cmds = append(cmds, tickCmd())
		var cmd tea.Cmd
		a.counter, cmd = a.counter.update(msg)
		cmds = append(cmds, cmd)
		a.sync, cmd = a.sync.update(msg)
		cmds = append(cmds, cmd)
		return a, tea.Batch(cmds...)

	case globalCountMsg:
		var cmd tea.Cmd
		a.counter, cmd = a.counter.update(msg)
		return a, cmd

	case dailyCountsMsg:
		var cmd tea.Cmd
		a.charts, cmd = a.charts.update(msg)
		return a, cmd

	case bulkDoneMsg:
		var cmd tea.Cmd
		a.counter, cmd = a.counter.update(msg)
		return a, tea.Batch(cmd, a.refreshCurrentView())

	case flushDoneMsg:
		var cmd tea.Cmd
		a.sync, cmd = a.sync.update(msg)
		st := flushStatus(msg.outcome, a.app.Queue.Pending(), a.app.FormatNumber)
		a.status, a.isErr = st.text, st.isError
		return a, cmd

	case statusMsg:
		a.status = msg.text
		a.isErr = msg.isError
		return a, nil

	case exportDoneMsg:
		a.status = "Exported to " + msg.path
		a.isErr = false
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewCounter:
		a.counter, cmd = a.counter.update(msg)
	case viewCharts:
		a.charts, cmd = a.charts.update(msg)
	case viewHistory:
		a.history, cmd = a.history.update(msg)
	case viewSync:
		a.sync, cmd = a.sync.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	return a.activeView == viewCounter && a.counter.formActive
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewCharts:
		return a.charts.refresh()
	case viewHistory:
		return a.history.refresh()
	case viewSync:
		return a.sync.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewCounter:
		content = a.counter.view()
	case viewCharts:
		content = a.charts.view()
	case viewHistory:
		content = a.history.view()
	case viewSync:
		content = a.sync.view()
	}

	// Calculate available height for content
	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := a.height - headerHeight - footerHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPersonal).Render("tally")
	gap := a.width - lipgloss.Width(title) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.isErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	left := footerStyle.Render(helpView)
	right := a.counter.syncIndicator() + status

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	title := titleStyle.Render("Export History")
	formats := []string{"CSV", "JSON"}
	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	for i, f := range formats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	w := a.width - 4
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < 1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor, exportDir())
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

func exportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func (a App) doExport(format int, dir string) tea.Cmd {
	log := a.app.History
	return func() tea.Msg {
		entries, err := log.Recent(0)
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}

		dateStr := timeNow().Format("2006-01-02")

		var path string
		if format == 0 {
			path = filepath.Join(dir, fmt.Sprintf("tally-history-%s.csv", dateStr))
			if err := export.ToCSV(entries, path); err != nil {
				return statusMsg{text: fmt.Sprintf("CSV error: %v", err), isError: true}
			}
		} else {
			path = filepath.Join(dir, fmt.Sprintf("tally-history-%s.json", dateStr))
			if err := export.ToJSON(entries, path); err != nil {
				return statusMsg{text: fmt.Sprintf("JSON error: %v", err), isError: true}
			}
		}

		return exportDoneMsg{path: path}
	}
}
