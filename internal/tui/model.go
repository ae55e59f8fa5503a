// Package tui is the terminal front end: a conversation sidebar, the
// transcript of the active conversation and an input line.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/youruser/chatc/internal/api"
	"github.com/youruser/chatc/internal/chat"
	"github.com/youruser/chatc/internal/conversation"
	"github.com/youruser/chatc/internal/logging"
	"github.com/youruser/chatc/internal/transcript"
)

var log = logging.Get()

// Deps are the core components the view drives.
type Deps struct {
	Selector   *conversation.Selector
	Store      *transcript.Store
	Controller *chat.Controller
	Version    string
}

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

type (
	transcriptChangedMsg struct{}
	selectorChangedMsg   struct{}
	listLoadedMsg        struct{ err error }
	selectedMsg          struct{ id string }
	newChatMsg           struct {
		conv *api.Conversation
		err  error
	}
	sendDoneMsg struct {
		res *chat.Result
		err error
	}
)

// Model is the bubbletea model for the chat window.
type Model struct {
	deps Deps
	keys keyMap

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool
	focus  focusArea
	cursor int

	streaming bool
	status    string
	err       error
}

// New builds the model. Call Run to start it in the terminal.
func New(deps Deps) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message and press enter..."
	ti.Prompt = "› "
	ti.CharLimit = 8000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	keys := defaultKeys()
	vp := viewport.New(0, 0)
	// Letters belong to the input line; only paging keys scroll.
	vp.KeyMap = viewport.KeyMap{PageUp: keys.PageUp, PageDown: keys.PageDown}

	return Model{
		deps:     deps,
		keys:     keys,
		input:    ti,
		viewport: vp,
		spinner:  sp,
	}
}

// Run starts the program on the alternate screen and blocks until it exits.
func Run(deps Deps) error {
	log.MuteStderr(true)
	defer log.MuteStderr(false)

	_, err := tea.NewProgram(New(deps), tea.WithAltScreen()).Run()
	return err
}

func waitFor(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return msg
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.loadList(),
		waitFor(m.deps.Store.Changes(), transcriptChangedMsg{}),
		waitFor(m.deps.Selector.Changes(), selectorChangedMsg{}),
	)
}

func (m Model) loadList() tea.Cmd {
	sel := m.deps.Selector
	return func() tea.Msg {
		return listLoadedMsg{err: sel.RefreshList(context.Background())}
	}
}

func (m Model) selectChat(conv api.Conversation) tea.Cmd {
	sel := m.deps.Selector
	return func() tea.Msg {
		sel.Select(context.Background(), conv)
		return selectedMsg{id: conv.ID}
	}
}

func (m Model) newChat() tea.Cmd {
	sel := m.deps.Selector
	return func() tea.Msg {
		conv, err := sel.New(context.Background())
		return newChatMsg{conv: conv, err: err}
	}
}

func (m Model) send(text string) tea.Cmd {
	ctrl := m.deps.Controller
	return func() tea.Msg {
		res, err := ctrl.Send(context.Background(), text)
		return sendDoneMsg{res: res, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		m.refreshTranscript()

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case transcriptChangedMsg:
		m.refreshTranscript()
		cmds = append(cmds, waitFor(m.deps.Store.Changes(), transcriptChangedMsg{}))

	case selectorChangedMsg:
		m.clampCursor()
		cmds = append(cmds, waitFor(m.deps.Selector.Changes(), selectorChangedMsg{}))

	case listLoadedMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("could not load chats: %w", msg.err)
		}
		m.clampCursor()

	case selectedMsg:
		m.status = ""
		m.err = nil
		m.focus = focusInput
		m.input.Focus()

	case newChatMsg:
		if msg.err != nil {
			m.err = msg.err
			break
		}
		m.err = nil
		m.status = "Started a new chat"
		m.focus = focusInput
		m.input.Focus()

	case sendDoneMsg:
		m.streaming = false
		switch {
		case msg.err == nil:
			m.err = nil
			m.status = fmt.Sprintf("~%d tokens in %s", msg.res.Tokens, msg.res.Duration.Round(10*time.Millisecond))
		case errors.Is(msg.err, chat.ErrNoActiveChat):
			m.err = errors.New("select a chat or press ctrl+n first")
		case errors.Is(msg.err, chat.ErrNotReady):
			m.err = errors.New("chat is still loading, try again")
		case errors.Is(msg.err, chat.ErrEmptyMessage), errors.Is(msg.err, chat.ErrSessionActive):
		default:
			m.err = msg.err
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.focus == focusInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes bindings that are not plain text input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.deps.Controller.Cancel()
		return tea.Quit, true

	case key.Matches(msg, m.keys.Cancel):
		if m.deps.Controller.Cancel() {
			m.status = "Stopping reply..."
		}
		return nil, true

	case key.Matches(msg, m.keys.Focus):
		if m.focus == focusInput {
			m.focus = focusSidebar
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return nil, true

	case key.Matches(msg, m.keys.NewChat):
		return m.newChat(), true

	case key.Matches(msg, m.keys.Refresh):
		return m.loadList(), true

	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
		return nil, false
	}

	if m.focus == focusSidebar {
		list := m.deps.Selector.List()
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(list)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Send):
			if m.cursor < len(list) {
				return m.selectChat(list[m.cursor]), true
			}
		}
		return nil, true
	}

	if key.Matches(msg, m.keys.Send) {
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.streaming {
			return nil, true
		}
		m.input.SetValue("")
		m.streaming = true
		m.status = ""
		m.err = nil
		return m.send(text), true
	}
	return nil, false
}

func (m *Model) clampCursor() {
	n := len(m.deps.Selector.List())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) layout() {
	headerHeight := 1
	inputHeight := 3
	statusHeight := 1
	w := m.width - sidebarWidth - 3
	if w < 20 {
		w = 20
	}
	h := m.height - headerHeight - inputHeight - statusHeight
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 4
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(m.deps.Store.Messages(), m.viewport.Width))
	if atBottom || m.streaming {
		m.viewport.GotoBottom()
	}
}

func renderTranscript(msgs []api.Message, width int) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	body := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Sender {
		case api.SenderUser:
			b.WriteString(userLabelStyle.Render("You"))
		default:
			b.WriteString(aiLabelStyle.Render("AI"))
		}
		b.WriteString("\n")

		content := msg.Content
		switch {
		case msg.Sender == api.SenderAI && content == "":
			b.WriteString(mutedStyle.Render("..."))
		case strings.HasPrefix(content, chat.ErrorPrefix):
			b.WriteString(errorStyle.Width(width).Render(content))
		default:
			b.WriteString(body.Render(content))
		}
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	sel := m.deps.Selector
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Render(sel.Title()),
		modeStyle.Render(string(m.deps.Controller.Mode())),
	)
	if m.deps.Version != "" {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, modeStyle.Render(m.deps.Version))
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.statusLine(),
		m.inputView(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), main)
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func (m Model) sidebarView() string {
	sel := m.deps.Selector
	activeID := sel.ActiveID()
	var b strings.Builder
	b.WriteString(sidebarTitleStyle.Render("Chats"))
	b.WriteString("\n")

	list := sel.List()
	if len(list) == 0 {
		b.WriteString(mutedStyle.Render("none yet"))
	}
	for i, c := range list {
		title := c.Title
		if title == "" {
			title = conversation.DefaultTitle
		}
		if len([]rune(title)) > sidebarWidth-4 {
			title = string([]rune(title)[:sidebarWidth-5]) + "…"
		}
		prefix := "  "
		style := chatItemStyle
		if c.ID == activeID {
			style = chatActiveStyle
		}
		if m.focus == focusSidebar && i == m.cursor {
			prefix = "› "
			style = chatCursorStyle
		}
		b.WriteString(style.Render(prefix + title))
		b.WriteString("\n")
	}

	style := sidebarStyle
	if m.focus == focusSidebar {
		style = sidebarFocusedStyle
	}
	return style.Height(m.height - 1).Render(b.String())
}

func (m Model) statusLine() string {
	switch {
	case m.err != nil:
		return statusStyle.Render(errorStyle.Render(m.err.Error()))
	case m.streaming:
		return statusStyle.Render(m.spinner.View() + " receiving reply (esc to stop)")
	case m.status != "":
		return statusStyle.Render(m.status)
	}
	var hints []string
	for _, b := range m.keys.help() {
		h := b.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	return statusStyle.Render(strings.Join(hints, " · "))
}

func (m Model) inputView() string {
	style := inputBorderStyle
	if m.focus == focusInput {
		style = inputFocusedStyle
	}
	return style.Width(m.viewport.Width - 2).Render(m.input.View())
}
