package output

import "github.com/charmbracelet/lipgloss"

// Color palette - single lime accent over grays.
const (
	colorLime     = "154" // Primary accent - rank numbers, success
	colorWhite    = "255" // Result titles
	colorGray     = "245" // Secondary text, scores
	colorDarkGray = "238" // Separators, annotations
	colorRed      = "196" // Errors
	colorYellow   = "220" // Warnings, cache notes
)

// Styles holds the render styles for CLI output.
type Styles struct {
	Header  lipgloss.Style
	Rank    lipgloss.Style
	Title   lipgloss.Style
	Score   lipgloss.Style
	Dim     lipgloss.Style
	Note    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns the colored styles for terminal output.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLime)),
		Rank:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLime)),
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorWhite)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
		Note:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(colorYellow)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorLime)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Rank:    lipgloss.NewStyle(),
		Title:   lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Note:    lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
	}
}
