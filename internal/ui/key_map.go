package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the monitor.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	inc      key.Binding
	dec      key.Binding
	pause    key.Binding
	failures key.Binding
	back     key.Binding
	help     key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev stage")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next stage")),
		inc:      key.NewBinding(key.WithKeys("+", "=", "right", "l"), key.WithHelp("+/l", "raise limit")),
		dec:      key.NewBinding(key.WithKeys("-", "left", "h"), key.WithHelp("-/h", "lower limit")),
		pause:    key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "pause/resume")),
		failures: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "failures")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.inc, k.dec, k.pause, k.failures, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down},
		{k.inc, k.dec, k.pause},
		{k.failures, k.back},
		{k.help, k.quit},
	}
}
