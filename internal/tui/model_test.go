package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bevie/chatclient/internal/eventcard"
	"github.com/bevie/chatclient/internal/session"
	"github.com/bevie/chatclient/internal/theme"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func sized(t *testing.T, opts Options) Model {
	t.Helper()
	if opts.AssistantName == "" {
		opts.AssistantName = "Bevie"
	}
	return update(t, New(opts), tea.WindowSizeMsg{Width: 100, Height: 40})
}

func TestModel_RendersTurnWithLinkAndCard(t *testing.T) {
	m := sized(t, Options{})

	m = update(t, m, turnMsg{turn: session.ChatTurn{
		Sender:      session.SenderAssistant,
		DisplayName: "Bevie",
		Text:        "Sure, I'll schedule a meeting on Friday at 3pm.\n\n📅 View Calendar Event: https://cal/x",
		Body:        "Sure, I'll schedule a meeting on Friday at 3pm.",
		EventLink:   "https://cal/x",
		EventCard:   &eventcard.Event{Title: "Meeting", Date: "Friday", Time: "3pm"},
		Timestamp:   time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
	}})

	view := m.View()
	assert.Contains(t, view, "schedule a meeting")
	assert.Contains(t, view, "View Calendar Event")
	assert.Contains(t, view, "https://cal/x")
	assert.Contains(t, view, "Meeting")
	assert.Contains(t, view, "Date: Friday")
	assert.Contains(t, view, "Time: 3pm")
	assert.Contains(t, view, "15:04")
}

func TestModel_EmptyTranscript(t *testing.T) {
	m := sized(t, Options{})
	assert.Contains(t, m.View(), "No messages yet")
}

func TestModel_TypingIndicator(t *testing.T) {
	m := sized(t, Options{})

	m = update(t, m, waitingMsg(true))
	assert.Contains(t, m.View(), "Bevie is typing")

	m = update(t, m, waitingMsg(false))
	assert.NotContains(t, m.View(), "is typing")
}

func TestModel_EnterSendsAndClearsInput(t *testing.T) {
	var sent []string
	m := sized(t, Options{Send: func(text string) error {
		sent = append(sent, text)
		return nil
	}})

	m.input.SetValue("hello")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"hello"}, sent)
	assert.Empty(t, m.input.Value())
}

func TestModel_SendErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		keepInput bool
		status    string
	}{
		{name: "empty", err: session.ErrEmptyMessage, keepInput: true, status: "connecting..."},
		{name: "closed", err: session.ErrClosed, keepInput: true, status: "disconnected · press esc to quit"},
		{name: "other", err: errors.New("boom"), keepInput: true, status: "send failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sized(t, Options{Send: func(string) error { return tt.err }})
			m.input.SetValue("  ")
			m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

			assert.Equal(t, "  ", m.input.Value())
			assert.Equal(t, tt.status, m.status)
		})
	}
}

func TestModel_StatusMessage(t *testing.T) {
	m := sized(t, Options{})
	m = update(t, m, statusMsg("connected"))
	assert.Contains(t, m.View(), "connected")
}

func TestModel_ToggleThemePersists(t *testing.T) {
	store := theme.NewStore(t.TempDir(), nil)
	_, err := store.Load()
	require.NoError(t, err)

	m := sized(t, Options{Themes: store})
	assert.Equal(t, theme.Light, m.Theme())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.Equal(t, theme.Dark, m.Theme())
	assert.Equal(t, theme.Dark, store.Current())

	reloaded, err := theme.NewStore(store.Dir(), nil).Load()
	require.NoError(t, err)
	assert.Equal(t, theme.Dark, reloaded)
}

func TestModel_ExternalThemeChange(t *testing.T) {
	m := sized(t, Options{})
	m = update(t, m, themeMsg(theme.Dark))
	assert.Equal(t, theme.Dark, m.Theme())
}

func TestModel_QuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{{Type: tea.KeyCtrlC}, {Type: tea.KeyEsc}} {
		_, cmd := sized(t, Options{}).Update(key)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.Quit(), cmd())
	}
}

func TestBridge_DeliversInOrder(t *testing.T) {
	b := NewBridge()
	b.RenderTurn(session.ChatTurn{Text: "one"})
	b.SetWaiting(true)

	first := b.wait()()
	second := b.wait()()
	assert.Equal(t, "one", first.(turnMsg).turn.Text)
	assert.Equal(t, waitingMsg(true), second)
}

func TestBridge_CloseUnblocks(t *testing.T) {
	b := NewBridge()
	b.Close()
	b.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			b.SetStatus("x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked after close")
	}
}
