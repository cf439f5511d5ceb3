package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title    lipgloss.Style
	ok       lipgloss.Style
	err      lipgloss.Style
	warn     lipgloss.Style
	help     lipgloss.Style
	selected lipgloss.Style
	badge    lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title:    NewBold(t).MarginBottom(1),
		ok:       NewBold(s),
		err:      NewBold(e),
		warn:     NewStyle(w),
		help:     NewEm(h),
		selected: NewBold(t),
		badge:    lipgloss.NewStyle().Bold(true).Padding(0, 1),
	}
}

func (p *Palette) On(s string, bg lipgloss.Color) string {
	return p.badge.Background(bg).Foreground(lipgloss.Color("#FFFFFF")).Render(s)
}

func (p *Palette) As(s string, fg lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(fg).Render(s)
}

// stateColor maps a persisted state name to the color it is shown in.
func stateColor(state string) lipgloss.Color {
	switch state {
	case "processed", "processed_zip":
		return lipgloss.Color("#04B575")
	case "failed", "download_failed", "extraction_failed":
		return lipgloss.Color("#FF0000")
	case "no_pair", "no_date":
		return lipgloss.Color("#FFA500")
	default:
		return lipgloss.Color("#626262")
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
