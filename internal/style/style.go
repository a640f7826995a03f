package style

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorDarkGray  = lipgloss.Color("240")
	colorLightGray = lipgloss.Color("229")
	colorCyan      = lipgloss.Color("212")
	colorPurple    = lipgloss.Color("99")
	colorRed       = lipgloss.Color("196")
	colorGreen     = lipgloss.Color("42")
	colorYellow    = lipgloss.Color("214")
)

// --- General Purpose Styles ---
var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	SuccessStyle = lipgloss.NewStyle().Foreground(colorGreen)
	WarnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
)

// --- Pane Styles ---
var (
	PaneStyle          = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(colorDarkGray).Padding(0, 1)
	FocusedPaneStyle   = PaneStyle.BorderForeground(colorCyan)
	StatusBarStyle     = lipgloss.NewStyle().Foreground(colorLightGray).Padding(0, 1)
	HighlightFontStyle = lipgloss.NewStyle().Foreground(colorCyan)
)

// --- File Tree Styles ---
var (
	TitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	CursorStyle     = lipgloss.NewStyle().Foreground(colorCyan).SetString("> ")
	NoCursorStyle   = lipgloss.NewStyle().SetString("  ")
	SelectedStyle   = lipgloss.NewStyle().Foreground(colorGreen).SetString("[x] ")
	DeselectedStyle = lipgloss.NewStyle().Foreground(colorDarkGray).SetString("[ ] ")
	DirStyle        = lipgloss.NewStyle().Foreground(colorPurple)
	FileStyle       = lipgloss.NewStyle().Foreground(colorLightGray)
	AssetStyle      = lipgloss.NewStyle().Foreground(colorDarkGray)
	HelpStyle       = lipgloss.NewStyle().Faint(true)
	HeaderStyle     = lipgloss.NewStyle().Bold(true)
)

// --- Common Components ---

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}

// NewProgressBar returns the job progress bar.
func NewProgressBar() progress.Model {
	return progress.New(progress.WithGradient(string(colorPurple), string(colorPink)))
}
