package commands

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.Color("#00E676")
	colorDanger  = lipgloss.Color("#FF5252")
	colorWarning = lipgloss.Color("#FFD700")
	colorMuted   = lipgloss.Color("#8C8C8C")
)

// styles renders for one writer. Writers that are not terminals get plain text.
type styles struct {
	r *lipgloss.Renderer

	success lipgloss.Style
	failure lipgloss.Style
	errors  lipgloss.Style
	warns   lipgloss.Style
	message lipgloss.Style
	header  lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(w io.Writer) *styles {
	r := lipgloss.NewRenderer(w)
	return &styles{
		r:       r,
		success: r.NewStyle().Foreground(colorSuccess),
		failure: r.NewStyle().Foreground(colorDanger).Underline(true),
		errors:  r.NewStyle().Foreground(colorDanger).Bold(true),
		warns:   r.NewStyle().Foreground(colorWarning).Bold(true),
		message: r.NewStyle().Foreground(colorDanger),
		header:  r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
	}
}

// cell pads s to width with style.
func (s *styles) cell(style lipgloss.Style, width int, text string) string {
	return style.Width(width).MaxWidth(width).MaxHeight(1).Render(text)
}
