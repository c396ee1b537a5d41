package session

import (
	"time"

	"github.com/bevie/chatclient/internal/eventcard"
)

type Sender string

const (
	SenderUser      Sender = "User"
	SenderAssistant Sender = "Assistant"
	SenderSystem    Sender = "System"
)

// ChatTurn is one finished half of an exchange. The renderer owns it once
// it has been handed over.
type ChatTurn struct {
	ID          string
	Sender      Sender
	DisplayName string
	// Text is what gets painted, including any spliced calendar link.
	Text string
	// Body is the reply as received, before link splicing.
	Body      string
	EventLink string
	EventCard *eventcard.Event
	Timestamp time.Time
}

// Renderer paints finished turns.
type Renderer interface {
	RenderTurn(turn ChatTurn)
}

// PresenceView shows or hides the typing indicator and inline spinner.
type PresenceView interface {
	SetWaiting(waiting bool)
}

// Notifier plays the send and receive cues.
type Notifier interface {
	PlaySend()
	PlayReceive()
}

// DiagnosticsSink ships log lines to the remote collector. Delivery is best
// effort and must not block.
type DiagnosticsSink interface {
	Info(message string)
	Error(message string)
}

// Transport is the live connection. Writes must not wait for any reply.
type Transport interface {
	SendText(text string) error
	Close(code int, reason string) error
}

const calendarLinkLabel = "📅 View Calendar Event"

// spliceLink appends the calendar link below the reply body.
func spliceLink(body, link string) string {
	return body + "\n\n" + calendarLinkLabel + ": " + link
}
