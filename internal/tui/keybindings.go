package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the recorder view.
type KeyMap struct {
	Toggle key.Binding
	Photo  key.Binding
	Export key.Binding
	Reset  key.Binding
	Quit   key.Binding
}

// DefaultKeyMap provides the default key bindings.
var DefaultKeyMap = KeyMap{
	Toggle: key.NewBinding(
		key.WithKeys(KeySpace),
		key.WithHelp("space", "start/stop"),
	),
	Photo: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "photo"),
	),
	Export: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "export"),
	),
	Reset: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reset"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", KeyCtrlC),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp lists the bindings shown in the help bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Photo, k.Export, k.Reset, k.Quit}
}
