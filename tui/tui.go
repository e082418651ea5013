package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/protocol"
)

const ModuleName = "tui"

var (
	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("245"))

	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("39"))

	unreadTabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("214"))

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// outputMsg carries one event of a session's output stream.
type outputMsg struct {
	session *client.Session
	event   client.OutputEvent
}

// closedMsg reports that a session's output stream ended.
type closedMsg struct {
	session *client.Session
}

type fullScreenMsg struct{}

type scrollback struct {
	lines  []string
	unread bool
}

// TUI is the terminal front end. It is the only consumer of every
// session's output and turns the input line into Input commands for the
// focused session.
type TUI struct {
	mux      *client.Multiplexer
	program  *tea.Program
	maxLines int

	viewport  viewport.Model
	textInput textinput.Model
	buffers   map[string]*scrollback
	history   int // offset into the focused session's history while browsing
	ready     bool
	altScreen bool
	width     int
	height    int
}

// New creates the front end for mux. It must be loaded into the registry
// with Register before sessions are created to receive #fullscreen.
func New(mux *client.Multiplexer, maxLines int) *TUI {
	ti := textinput.New()
	ti.Placeholder = "Type a command..."
	ti.CharLimit = 1024
	ti.Width = 50
	ti.Focus()

	return &TUI{
		mux:       mux,
		maxLines:  maxLines,
		textInput: ti,
		buffers:   make(map[string]*scrollback),
		altScreen: true,
	}
}

func (t *TUI) Name() string                         { return ModuleName }
func (t *TUI) MessageTypes() []protocol.MessageType { return nil }
func (t *TUI) CommandTypes() []protocol.CommandType {
	return []protocol.CommandType{protocol.CommandToggleFullScreen}
}

func (t *TUI) Register(r client.Registrar) error { return r.RegisterUnit(t) }

func (t *TUI) HandleCommand(_ *client.Session, cmd *client.Command) error {
	cmd.MarkHandled()
	if t.program != nil {
		// Update may be the caller further up this stack
		go t.program.Send(fullScreenMsg{})
	}
	return nil
}

// Init starts reading the output of every existing session.
func (t *TUI) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	for _, s := range t.mux.Sessions() {
		cmds = append(cmds, waitOutput(s))
	}
	return tea.Batch(cmds...)
}

func waitOutput(s *client.Session) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-s.Output():
			return outputMsg{session: s, event: ev}
		case <-s.Done():
			return closedMsg{session: s}
		}
	}
}

// Update handles TUI updates
func (t *TUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return t, tea.Quit

		case tea.KeyEnter:
			t.submit(t.textInput.Value())
			t.textInput.SetValue("")
			t.history = 0
			return t, nil

		case tea.KeyTab:
			t.cycleFocus()
			return t, nil

		case tea.KeyCtrlN:
			s, err := t.mux.CreateSession("")
			if err != nil {
				t.notice(errorStyle.Render(fmt.Sprintf("new session: %v", err)))
				return t, nil
			}
			t.mux.Focus(s)
			t.refresh()
			return t, waitOutput(s)

		case tea.KeyCtrlW:
			if s := t.mux.Focused(); s != nil {
				if err := t.mux.Destroy(s); err != nil {
					t.notice(errorStyle.Render(err.Error()))
				}
				t.refresh()
			}
			return t, nil

		case tea.KeyUp, tea.KeyDown:
			t.browseHistory(msg.Type == tea.KeyUp)
			return t, nil

		case tea.KeyF1, tea.KeyF2, tea.KeyF3, tea.KeyF4, tea.KeyF5, tea.KeyF6,
			tea.KeyF7, tea.KeyF8, tea.KeyF9, tea.KeyF10, tea.KeyF11, tea.KeyF12:
			if s := t.mux.Focused(); s != nil {
				err := s.Submit(client.NewCommand(protocol.CommandHotkey, protocol.Hotkey{Key: msg.String()}))
				if err != nil {
					t.notice(errorStyle.Render(err.Error()))
				}
			}
			return t, nil
		}

	case tea.WindowSizeMsg:
		if !t.ready {
			t.viewport = viewport.New(msg.Width, msg.Height-3)
			t.ready = true
		} else {
			t.viewport.Width = msg.Width
			t.viewport.Height = msg.Height - 3
		}
		t.width = msg.Width
		t.height = msg.Height
		t.textInput.Width = msg.Width - 4
		t.refresh()

	case outputMsg:
		t.append(msg.session, render(msg.event))
		return t, waitOutput(msg.session)

	case closedMsg:
		// drain what the session printed before it went away
		for len(msg.session.Output()) > 0 {
			t.append(msg.session, render(<-msg.session.Output()))
		}
		delete(t.buffers, msg.session.ID())
		t.refresh()
		return t, nil

	case fullScreenMsg:
		t.altScreen = !t.altScreen
		if t.altScreen {
			return t, tea.EnterAltScreen
		}
		return t, tea.ExitAltScreen
	}

	// update viewport
	if t.ready {
		t.viewport, cmd = t.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	t.textInput, cmd = t.textInput.Update(msg)
	cmds = append(cmds, cmd)

	return t, tea.Batch(cmds...)
}

// View renders the TUI
func (t *TUI) View() string {
	if !t.ready {
		return "Initializing..."
	}
	help := helpStyle.Render("Enter: send • Tab: next session • Ctrl+N: new • Ctrl+W: close • Esc: quit")
	return fmt.Sprintf(
		"%s\n%s\n%s\n%s",
		t.tabs(),
		t.viewport.View(),
		inputStyle.Render("> "+t.textInput.View()),
		help,
	)
}

func (t *TUI) tabs() string {
	sessions := t.mux.Sessions()
	if len(sessions) == 0 {
		return tabStyle.Render("no sessions (Ctrl+N)")
	}
	parts := make([]string, 0, len(sessions))
	for _, s := range sessions {
		style := tabStyle
		switch {
		case s.Focused():
			style = activeTabStyle
		case t.buffer(s).unread:
			style = unreadTabStyle
		}
		parts = append(parts, style.Render(s.Name()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func render(ev client.OutputEvent) string {
	switch ev.Kind {
	case client.OutputInfo:
		return infoStyle.Render(ev.Text)
	case client.OutputError:
		return errorStyle.Render(ev.Text)
	}
	return ev.Text
}

func (t *TUI) buffer(s *client.Session) *scrollback {
	b, ok := t.buffers[s.ID()]
	if !ok {
		b = &scrollback{}
		t.buffers[s.ID()] = b
	}
	return b
}

func (t *TUI) append(s *client.Session, line string) {
	b := t.buffer(s)
	b.lines = append(b.lines, line)
	if t.maxLines > 0 && len(b.lines) > t.maxLines {
		b.lines = b.lines[len(b.lines)-t.maxLines:]
	}
	if !s.Focused() {
		b.unread = true
		return
	}
	if t.ready {
		// do not scroll if not at bottom, to prevent flickering
		wasAtBottom := t.viewport.AtBottom()
		t.viewport.SetContent(strings.Join(b.lines, "\n"))
		if wasAtBottom {
			t.viewport.GotoBottom()
		}
	}
}

// notice shows a line that belongs to no session.
func (t *TUI) notice(line string) {
	if s := t.mux.Focused(); s != nil {
		t.append(s, line)
	}
}

// refresh shows the focused session's scrollback.
func (t *TUI) refresh() {
	if !t.ready {
		return
	}
	s := t.mux.Focused()
	if s == nil {
		t.viewport.SetContent("")
		return
	}
	b := t.buffer(s)
	b.unread = false
	t.viewport.SetContent(strings.Join(b.lines, "\n"))
	t.viewport.GotoBottom()
}

func (t *TUI) submit(text string) {
	s := t.mux.Focused()
	if s == nil {
		return
	}
	t.append(s, inputStyle.Render(text))
	if err := s.Submit(client.Input(text)); err != nil {
		t.append(s, errorStyle.Render(err.Error()))
	}
}

func (t *TUI) cycleFocus() {
	sessions := t.mux.Sessions()
	if len(sessions) < 2 {
		return
	}
	next := sessions[0]
	for i, s := range sessions {
		if s.Focused() {
			next = sessions[(i+1)%len(sessions)]
			break
		}
	}
	t.mux.Focus(next)
	t.history = 0
	t.refresh()
}

func (t *TUI) browseHistory(older bool) {
	s := t.mux.Focused()
	if s == nil {
		return
	}
	h := s.History()
	if older && t.history < len(h) {
		t.history++
	} else if !older && t.history > 0 {
		t.history--
	}
	if t.history == 0 {
		t.textInput.SetValue("")
		return
	}
	t.textInput.SetValue(h[len(h)-t.history])
	t.textInput.CursorEnd()
}

// Start creates the program for t. The caller runs it.
func Start(t *TUI) *tea.Program {
	t.program = tea.NewProgram(t, tea.WithAltScreen())
	return t.program
}
