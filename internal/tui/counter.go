package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	goal "github.com/sadopc/tally/internal/progress"
	"github.com/sadopc/tally/internal/tally"
)

type counterModel struct {
	app    *tally.App
	width  int
	height int

	personal    int64
	global      int64
	globalKnown bool
	pending     int64
	countdown   goal.Countdown

	bar progress.Model

	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	bulkInput   *string
	bulkConfirm *bool
}

func newCounterModel(app *tally.App) counterModel {
	input, confirm := "", true
	return counterModel{
		app:         app,
		personal:    app.Service.Count(),
		pending:     app.Queue.Pending(),
		countdown:   goal.Until(time.Now(), app.Config.Goal.TargetDate()),
		bar:         progress.New(progress.WithGradient(gradientFrom, gradientTo), progress.WithoutPercentage()),
		bulkInput:   &input,
		bulkConfirm: &confirm,
	}
}

// Init reads the global count once; later values arrive by subscription.
func (c counterModel) Init() tea.Cmd {
	return c.fetchGlobal()
}

func (c *counterModel) setSize(w, h int) {
	c.width = w
	c.height = h
	c.bar.Width = max(10, w-12)
}

func (c counterModel) fetchGlobal() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), c.app.Config.Remote.Timeout)
		defer cancel()
		n, err := c.app.Remote.GlobalCount(ctx)
		if err != nil {
			return statusMsg{text: "Global count unavailable, counting offline", isError: true}
		}
		return globalCountMsg(n)
	}
}

func (c counterModel) update(msg tea.Msg) (counterModel, tea.Cmd) {
	if c.formActive && c.form != nil {
		return c.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tickMsg:
		c.personal = c.app.Service.Count()
		c.pending = c.app.Queue.Pending()
		c.countdown = goal.Until(time.Time(msg), c.app.Config.Goal.TargetDate())
		return c, nil

	case globalCountMsg:
		c.global = int64(msg)
		c.globalKnown = true
		return c, nil

	case bulkDoneMsg:
		c.personal = c.app.Service.Count()
		c.pending = c.app.Queue.Pending()
		if msg.err != nil {
			return c, statusCmd(msg.err.Error(), true)
		}
		if msg.result.Warning != "" {
			return c, statusCmd(msg.result.Warning, true)
		}
		return c, statusCmd(fmt.Sprintf("Added %s", c.app.FormatNumber(msg.n)), false)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Tap):
			n, err := c.app.Service.Tap()
			c.personal = n
			if err != nil {
				return c, statusCmd(fmt.Sprintf("Error: %v", err), true)
			}
			return c, nil
		case key.Matches(msg, keys.Bulk):
			return c.showForm()
		}
	}
	return c, nil
}

func (c counterModel) showForm() (counterModel, tea.Cmd) {
	*c.bulkInput = ""
	*c.bulkConfirm = true

	c.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("How many?").
				Placeholder("e.g. 108").
				Value(c.bulkInput).
				Validate(validateCount),
		).Title("Add many"),
		huh.NewGroup(
			huh.NewConfirm().
				Title("That is a large amount. Add it?").
				Affirmative("Add").
				Negative("Cancel").
				Value(c.bulkConfirm),
		).WithHideFunc(func() bool {
			n, err := tally.ParseCount(*c.bulkInput)
			return err != nil || !tally.NeedsConfirmation(n)
		}),
	).WithShowHelp(true).WithShowErrors(true)

	c.formActive = true
	return c, c.form.Init()
}

func validateCount(s string) error {
	if _, err := tally.ParseCount(s); err != nil {
		return errors.New(tally.InvalidCountMessage)
	}
	return nil
}

func (c counterModel) updateForm(msg tea.Msg) (counterModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			c.formActive = false
			c.form = nil
			return c, nil
		}
	}

	form, cmd := c.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		c.form = f
	}

	switch c.form.State {
	case huh.StateCompleted:
		c.formActive = false
		c.form = nil
		if !*c.bulkConfirm {
			return c, statusCmd("Cancelled", false)
		}
		n, err := tally.ParseCount(*c.bulkInput)
		if err != nil {
			return c, statusCmd(tally.InvalidCountMessage, true)
		}
		return c, c.addBulk(n)
	case huh.StateAborted:
		c.formActive = false
		c.form = nil
		return c, nil
	}

	return c, cmd
}

func (c counterModel) addBulk(n int64) tea.Cmd {
	svc := c.app.Service
	return func() tea.Msg {
		res, err := svc.AddBulk(context.Background(), n)
		return bulkDoneMsg{n: n, result: res, err: err}
	}
}

func statusCmd(text string, isError bool) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: text, isError: isError} }
}

func (c counterModel) view() string {
	if c.width < 20 {
		return "Terminal too small"
	}

	contentWidth := c.width - 4

	if c.formActive && c.form != nil {
		return activePanelStyle.Width(contentWidth).Render(c.form.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		c.renderPersonalPanel(contentWidth),
		c.renderGlobalPanel(contentWidth),
	)
}

func (c counterModel) renderPersonalPanel(w int) string {
	count := personalCountStyle.Width(w - 6).Render(c.app.FormatNumber(c.personal))

	status := successStyle.Render("●  SYNCED")
	if c.pending > 0 {
		status = warningStyle.Render(fmt.Sprintf("◌  %s WAITING TO SYNC", c.app.FormatNumber(c.pending)))
	}
	hint := mutedStyle.Render("space: tap  b: add many")

	content := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render("Your count"),
		count,
		status,
		hint,
	)
	return activePanelStyle.Width(w).Render(content)
}

func (c counterModel) renderGlobalPanel(w int) string {
	target := c.app.Config.Goal.Target

	var count, bar, caption string
	if c.globalKnown {
		pct := goal.Percent(c.global, target)
		count = globalCountStyle.Width(w - 6).Render(c.app.FormatNumber(c.global))
		bar = c.bar.ViewAs(pct / 100)
		caption = subtitleStyle.Render(fmt.Sprintf("%.2f%% of %s", pct, c.app.FormatNumber(target)))
	} else {
		count = globalCountStyle.Width(w - 6).Render("—")
		bar = c.bar.ViewAs(0)
		caption = mutedStyle.Render("waiting for the global count")
	}

	remaining := highlightStyle.Render(c.countdown.String() + " left")
	if c.countdown.Done() {
		remaining = successStyle.Render("Goal period ended")
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render("Global count"),
		count,
		bar,
		caption,
		remaining,
	)
	return panelStyle.Width(w).Render(content)
}

func (c counterModel) syncIndicator() string {
	if c.pending > 0 {
		return warningStyle.Render(" ◌ " + c.app.FormatNumber(c.pending) + " pending")
	}
	return successStyle.Render(" ● synced")
}
