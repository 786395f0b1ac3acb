package tui

import "github.com/charmbracelet/lipgloss"

// Palette: saffron for your own count, teal for the shared one. Each color
// has a light-terminal variant.
var (
	colorPersonal = lipgloss.AdaptiveColor{Light: "#B85C00", Dark: "#F4A259"}
	colorGlobal   = lipgloss.AdaptiveColor{Light: "#0F6E6E", Dark: "#5BC0BE"}
	colorInk      = lipgloss.AdaptiveColor{Light: "#2B2118", Dark: "#EDE6DA"}
	colorMuted    = lipgloss.AdaptiveColor{Light: "#8A8178", Dark: "#7D7468"}
	colorRule     = lipgloss.AdaptiveColor{Light: "#D9CFC1", Dark: "#3E362E"}
	colorSynced   = lipgloss.AdaptiveColor{Light: "#3A7D44", Dark: "#8CC084"}
	colorPending  = lipgloss.AdaptiveColor{Light: "#A86B00", Dark: "#F2C14E"}
	colorError    = lipgloss.AdaptiveColor{Light: "#B3261E", Dark: "#F28482"}
)

// Goal bar gradient ends, personal to global.
const (
	gradientFrom = "#F4A259"
	gradientTo   = "#5BC0BE"
)

var (
	// Tabs
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPersonal).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(colorPersonal).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Padding(0, 2)

	// Panels
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorRule).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.ThickBorder()).
				BorderForeground(colorPersonal).
				Padding(1, 2)

	// Counts
	personalCountStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPersonal).
				Align(lipgloss.Center).
				Padding(1, 0)

	globalCountStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorGlobal).
				Align(lipgloss.Center)

	// Text
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorInk)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSynced)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorPending).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	highlightStyle = lipgloss.NewStyle().
			Foreground(colorGlobal)

	headerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(colorRule)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	// List items
	selectedItemStyle = lipgloss.NewStyle().
				Foreground(colorPersonal).
				Bold(true)

	normalItemStyle = lipgloss.NewStyle().
			Foreground(colorInk)
)
