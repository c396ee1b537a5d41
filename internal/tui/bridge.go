package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bevie/chatclient/internal/session"
	"github.com/bevie/chatclient/internal/theme"
)

type (
	turnMsg    struct{ turn session.ChatTurn }
	waitingMsg bool
	themeMsg   theme.Theme
	statusMsg  string
)

// Bridge carries session output into the bubbletea program. It implements
// session.Renderer and session.PresenceView.
type Bridge struct {
	inbound chan tea.Msg
	done    chan struct{}
	once    sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{
		inbound: make(chan tea.Msg, 256),
		done:    make(chan struct{}),
	}
}

func (b *Bridge) RenderTurn(turn session.ChatTurn) { b.push(turnMsg{turn: turn}) }

func (b *Bridge) SetWaiting(waiting bool) { b.push(waitingMsg(waiting)) }

// SetTheme switches the palette, e.g. after another instance toggled it.
func (b *Bridge) SetTheme(t theme.Theme) { b.push(themeMsg(t)) }

// SetStatus replaces the connection line in the header.
func (b *Bridge) SetStatus(status string) { b.push(statusMsg(status)) }

// Close releases anyone blocked pushing to a program that has exited.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bridge) push(msg tea.Msg) {
	select {
	case b.inbound <- msg:
	case <-b.done:
	}
}

func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.inbound:
			return msg
		case <-b.done:
			return nil
		}
	}
}
