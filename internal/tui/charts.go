package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tally/internal/history"
	"github.com/sadopc/tally/internal/tally"
)

type chartMode int

const (
	chartPersonal chartMode = iota
	chartGlobal
)

type chartsModel struct {
	app    *tally.App
	width  int
	height int

	mode    chartMode
	buckets []history.DayBucket
	err     error

	chart barchart.Model
}

func newChartsModel(app *tally.App) chartsModel {
	return chartsModel{
		app:   app,
		chart: barchart.New(60, 12),
	}
}

func (c *chartsModel) setSize(w, h int) {
	c.width = w
	c.height = h
}

type chartsDataMsg struct {
	mode    chartMode
	buckets []history.DayBucket
	err     error
}

func (c chartsModel) days() int {
	if n := c.app.Config.History.ChartDays; n > 0 {
		return n
	}
	return history.DefaultChartDays
}

func (c chartsModel) refresh() tea.Cmd {
	mode, days, charts := c.mode, c.days(), c.app.Charts
	timeout := c.app.Config.Remote.Timeout
	return func() tea.Msg {
		if mode == chartGlobal {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			b, err := charts.GlobalChart(ctx, days)
			return chartsDataMsg{mode: mode, buckets: b, err: err}
		}
		b, err := charts.PersonalChart(days)
		return chartsDataMsg{mode: mode, buckets: b, err: err}
	}
}

func (c chartsModel) update(msg tea.Msg) (chartsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case chartsDataMsg:
		if msg.mode != c.mode {
			return c, nil
		}
		c.buckets, c.err = msg.buckets, msg.err
		c.buildChart()
		return c, nil

	case dailyCountsMsg:
		if c.mode != chartGlobal {
			return c, nil
		}
		c.buckets = history.GlobalLastNDays(msg, c.days(), timeNow())
		c.err = nil
		c.buildChart()
		return c, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Mode) {
			if c.mode == chartPersonal {
				c.mode = chartGlobal
			} else {
				c.mode = chartPersonal
			}
			c.buckets = nil
			return c, c.refresh()
		}
	}
	return c, nil
}

// yMax picks the axis ceiling: personal counts round up to the next
// hundred, global counts to the next 1-2-5 step.
func (c chartsModel) yMax() int64 {
	counts := history.Counts(c.buckets)
	if c.mode == chartGlobal {
		return history.NiceMax125(counts)
	}
	return history.NiceMax(counts)
}

func (c *chartsModel) buildChart() {
	chartWidth := c.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if c.height > 30 {
		chartHeight = 16
	}

	c.chart = barchart.New(chartWidth, chartHeight, barchart.WithMaxValue(float64(c.yMax())))

	color := colorPersonal
	if c.mode == chartGlobal {
		color = colorGlobal
	}
	style := lipgloss.NewStyle().Foreground(color)

	bars := make([]barchart.BarData, 0, len(c.buckets))
	for _, b := range c.buckets {
		bars = append(bars, barchart.BarData{
			Label:  b.Label,
			Values: []barchart.BarValue{{Name: b.Key, Value: float64(b.Count), Style: style}},
		})
	}

	c.chart.PushAll(bars)
	c.chart.Draw()
}

func (c chartsModel) view() string {
	w := c.width - 4

	personalTab := inactiveTabStyle.Render("Personal")
	globalTab := inactiveTabStyle.Render("Global")
	if c.mode == chartPersonal {
		personalTab = activeTabStyle.Render("Personal")
	} else {
		globalTab = activeTabStyle.Render("Global")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, personalTab, globalTab)

	dayLabel := mutedStyle.Render(fmt.Sprintf("last %d days", c.days()))
	if c.mode == chartGlobal {
		dayLabel = mutedStyle.Render(fmt.Sprintf("last %d days (UTC)", c.days()))
	}

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Charts"), "  ", modeTabs, "  ", dayLabel,
	)

	var body string
	switch {
	case c.err != nil:
		body = errorStyle.Render("  Could not load chart: " + c.err.Error())
	case c.buckets == nil:
		body = mutedStyle.Render("  Loading…")
	default:
		body = lipgloss.JoinVertical(lipgloss.Left, c.chart.View(), "", c.renderTable(w))
	}

	nav := mutedStyle.Render("  m: personal/global")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", nav),
	)
}

func (c chartsModel) renderTable(w int) string {
	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-12s %-6s %14s", "Date", "Day", "Count")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 34))))

	var total int64
	for _, b := range c.buckets {
		total += b.Count
		rows = append(rows, fmt.Sprintf("  %-12s %-6s %14s", b.Key, b.Label, c.app.FormatNumber(b.Count)))
	}
	rows = append(rows, highlightStyle.Render(fmt.Sprintf("  %-19s %14s", "Total", c.app.FormatNumber(total))))

	return strings.Join(rows, "\n")
}
