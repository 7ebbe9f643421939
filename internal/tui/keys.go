package tui

import "github.com/charmbracelet/bubbles/key"

type trackKeyMap struct {
	Stop    key.Binding
	Capture key.Binding
	Refresh key.Binding
}

func newTrackKeyMap() trackKeyMap {
	return trackKeyMap{
		Stop:    key.NewBinding(key.WithKeys("s", "q", "esc", "ctrl+c"), key.WithHelp("s/q", "stop & save")),
		Capture: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "screenshot now")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh cap")),
	}
}

func (k trackKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Stop, k.Capture, k.Refresh}
}

type listKeyMap struct {
	Up   key.Binding
	Down key.Binding
	Prev key.Binding
	Next key.Binding
	Quit key.Binding
}

func newListKeyMap() listKeyMap {
	return listKeyMap{
		Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Prev: key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev page")),
		Next: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next page")),
		Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k listKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Prev, k.Next, k.Quit}
}
