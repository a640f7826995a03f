package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	SwitchPane key.Binding
	Upload     key.Binding
	Refresh    key.Binding
	Cancel     key.Binding
	Quit       key.Binding
}

var defaultKeys = keyMap{
	SwitchPane: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	Upload:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload")),
	Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh remote")),
	Cancel:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel upload")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.SwitchPane, k.Upload, k.Refresh, k.Cancel, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
