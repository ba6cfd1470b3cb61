package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the research screen.
type KeyMap struct {
	Submit     key.Binding
	NextModel  key.Binding
	PrevModel  key.Binding
	Copy       key.Binding
	Export     key.Binding
	Sources    key.Binding
	NewSession key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Quit       key.Binding
}

var DefaultKeyMap = KeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "research"),
	),
	NextModel: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next model"),
	),
	PrevModel: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev model"),
	),
	Copy: key.NewBinding(
		key.WithKeys("ctrl+y"),
		key.WithHelp("ctrl+y", "copy report"),
	),
	Export: key.NewBinding(
		key.WithKeys("ctrl+e"),
		key.WithHelp("ctrl+e", "export pdf"),
	),
	Sources: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("ctrl+s", "sources"),
	),
	NewSession: key.NewBinding(
		key.WithKeys("ctrl+n"),
		key.WithHelp("ctrl+n", "new"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("pgup", "up"),
		key.WithHelp("pgup", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("pgdown", "down"),
		key.WithHelp("pgdn", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.NextModel, k.Copy, k.Export, k.Sources, k.NewSession, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.NextModel, k.PrevModel},
		{k.Copy, k.Export, k.Sources, k.NewSession},
		{k.ScrollUp, k.ScrollDown, k.Quit},
	}
}
