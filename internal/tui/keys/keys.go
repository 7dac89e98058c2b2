package keys

import "github.com/charmbracelet/bubbles/key"

// ConnectKeys are the bindings of the connect terminal
type ConnectKeys struct {
	Quit        key.Binding
	Help        key.Binding
	InsertMode  key.Binding
	Escape      key.Binding
	Enter       key.Binding
	ToggleSend  key.Binding
	Up          key.Binding
	Down        key.Binding
	Clear       key.Binding
	ClearBuffer key.Binding
	ToggleHex   key.Binding
	ToggleASCII key.Binding
	GotoTop     key.Binding
	GotoBottom  key.Binding
}

func NewConnectKeys() ConnectKeys {
	return ConnectKeys{
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		InsertMode: key.NewBinding(
			key.WithKeys("i", "I"),
			key.WithHelp("i", "insert mode"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "normal mode"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send message"),
		),
		ToggleSend: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "toggle ascii/hex send"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up / history"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down / history"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear screen"),
		),
		ClearBuffer: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "discard buffered bytes"),
		),
		ToggleHex: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "toggle hex"),
		),
		ToggleASCII: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "toggle ascii"),
		),
		GotoTop: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "goto top"),
		),
		GotoBottom: key.NewBinding(
			key.WithKeys("G"),
			key.WithHelp("G", "goto bottom"),
		),
	}
}

func (k ConnectKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.InsertMode, k.Enter, k.Quit}
}

func (k ConnectKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.InsertMode, k.Escape, k.Enter, k.ToggleSend},
		{k.ToggleHex, k.ToggleASCII, k.Clear, k.ClearBuffer},
		{k.GotoTop, k.GotoBottom, k.Up, k.Down},
		{k.Help, k.Quit},
	}
}
