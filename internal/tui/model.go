// Package tui is the terminal transcript: it paints chat turns, the typing
// indicator and event cards, and feeds user input to the session.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/bevie/chatclient/internal/eventcard"
	"github.com/bevie/chatclient/internal/session"
	"github.com/bevie/chatclient/internal/theme"
)

type Options struct {
	AssistantName string
	Bridge        *Bridge
	// Themes persists ctrl+t toggles. Optional.
	Themes *theme.Store
	Theme  theme.Theme
	// Send hands input to the session.
	Send   func(text string) error
	Logger *zap.Logger
}

type Model struct {
	assistant string
	bridge    *Bridge
	themes    *theme.Store
	send      func(string) error
	log       *zap.Logger

	turns   []session.ChatTurn
	waiting bool
	status  string
	failed  bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model

	theme  theme.Theme
	styles styles
}

func New(opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bridge == nil {
		opts.Bridge = NewBridge()
	}
	if opts.Theme == "" {
		opts.Theme = theme.Light
	}

	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Type a message..."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 3

	m := Model{
		assistant: opts.AssistantName,
		bridge:    opts.Bridge,
		themes:    opts.Themes,
		send:      opts.Send,
		log:       opts.Logger.Named("tui"),
		status:    "connecting...",
		input:     input,
		timeline:  timeline,
		spinner:   sp,
	}
	m.applyTheme(opts.Theme)
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.bridge.wait())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case turnMsg:
		m.turns = append(m.turns, msg.turn)
		m.renderTimeline()
		cmds = append(cmds, m.bridge.wait())
	case waitingMsg:
		wasWaiting := m.waiting
		m.waiting = bool(msg)
		if m.waiting && !wasWaiting {
			cmds = append(cmds, m.spinner.Tick)
		}
		cmds = append(cmds, m.bridge.wait())
	case themeMsg:
		m.applyTheme(theme.Theme(msg))
		cmds = append(cmds, m.bridge.wait())
	case statusMsg:
		m.status = string(msg)
		m.failed = false
		cmds = append(cmds, m.bridge.wait())
	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+t":
			m.toggleTheme()
			return m, tea.Batch(cmds...)
		case "pgup", "pgdown", "ctrl+u", "ctrl+d":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		case "enter":
			m.submit()
			return m, tea.Batch(cmds...)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) submit() {
	if m.send == nil {
		return
	}
	err := m.send(m.input.Value())
	switch {
	case err == nil:
		m.input.Reset()
	case errors.Is(err, session.ErrEmptyMessage):
	case errors.Is(err, session.ErrClosed):
		m.status = "disconnected · press esc to quit"
		m.failed = true
	default:
		m.log.Warn("Send failed", zap.Error(err))
		m.status = "send failed"
		m.failed = true
	}
}

func (m *Model) toggleTheme() {
	next := m.theme.Toggled()
	if m.themes != nil {
		saved, err := m.themes.Toggle()
		if err != nil {
			m.log.Warn("Failed to save theme", zap.Error(err))
		}
		next = saved
	}
	m.applyTheme(next)
}

func (m *Model) applyTheme(t theme.Theme) {
	m.theme = t
	m.styles = newStyles(t)
	m.spinner.Style = m.styles.spinner
	m.renderTimeline()
}

func (m *Model) resize() {
	contentWidth := maxInt(20, m.width-2)
	m.input.Width = maxInt(10, contentWidth-6)
	m.timeline.Width = maxInt(10, contentWidth-4)
	// header 3, typing line 1, input 3, help 1, panel border 2
	m.timeline.Height = maxInt(3, m.height-10)
}

func (m *Model) renderTimeline() {
	atBottom := m.timeline.AtBottom()
	offset := m.timeline.YOffset

	m.timeline.SetContent(m.timelineContent())
	if atBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(offset)
	}
}

func (m *Model) timelineContent() string {
	if len(m.turns) == 0 {
		return m.styles.help.Render("No messages yet. Say hello.")
	}
	width := maxInt(10, m.timeline.Width)
	var b strings.Builder
	for i, turn := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderTurn(turn, width))
	}
	return b.String()
}

func (m *Model) renderTurn(turn session.ChatTurn, width int) string {
	style, ok := m.styles.sender[turn.Sender]
	if !ok {
		style = m.styles.sender[session.SenderSystem]
	}
	header := style.Render(turn.DisplayName)
	if !turn.Timestamp.IsZero() {
		header += " " + m.styles.timestamp.Render(turn.Timestamp.Format("15:04"))
	}

	text := turn.Text
	if turn.EventLink != "" {
		text = turn.Body
	}
	parts := []string{header, m.styles.body.Width(width).Render(text)}
	if turn.EventLink != "" {
		parts = append(parts, m.styles.link.Render("📅 View Calendar Event")+" "+m.styles.timestamp.Render(turn.EventLink))
	}
	if turn.EventCard != nil {
		parts = append(parts, m.renderCard(*turn.EventCard))
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderCard(ev eventcard.Event) string {
	return m.styles.card.Render(
		m.styles.cardTitle.Render("📅 "+ev.Title) + "\n" +
			fmt.Sprintf("Date: %s\nTime: %s", ev.Date, ev.Time),
	)
}

func (m Model) View() string {
	contentWidth := maxInt(20, m.width-2)

	statusStyle := m.styles.status
	if m.failed {
		statusStyle = m.styles.errorStatus
	}
	header := m.styles.header.Width(contentWidth).Render(
		m.styles.title.Render(m.assistant) + "  " + statusStyle.Render(m.status),
	)

	timeline := m.styles.panel.Width(contentWidth).Render(m.timeline.View())

	typing := ""
	if m.waiting {
		typing = m.spinner.View() + m.styles.typing.Render(" "+m.assistant+" is typing...")
	}

	input := m.styles.inputPanel.Width(contentWidth).Render(m.input.View())
	help := m.styles.help.Render("enter send · ctrl+t theme · pgup/pgdn scroll · esc quit")

	return m.styles.root.Render(lipgloss.JoinVertical(lipgloss.Left, header, timeline, typing, input, help))
}

// Theme reports the palette in use.
func (m Model) Theme() theme.Theme { return m.theme }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
