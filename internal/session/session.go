// Package session runs one chat connection: it decodes inbound frames,
// carries calendar links from tool responses to the next reply, drives the
// typing indicator and hands finished turns to the renderer.
//
// All state is owned by the goroutine running Run. The exported Handle*,
// Send, Opened and Close methods only enqueue events for it, so transport
// callbacks and UI input may call them from any goroutine.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bevie/chatclient/internal/config"
	"github.com/bevie/chatclient/internal/eventcard"
	"github.com/bevie/chatclient/internal/metrics"
	"github.com/bevie/chatclient/internal/protocol"
)

type ConnState int

const (
	Connecting ConnState = iota
	Open
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "connecting"
	}
}

// Close codes sent on teardown.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
)

type TeardownCause int

const (
	// CauseExit is an ordinary shutdown of the client.
	CauseExit TeardownCause = iota
	// CauseNavigate means the client is going away, e.g. its terminal was
	// closed or it was told to hang up by a signal.
	CauseNavigate
)

// CloseCodeFor picks the close code and reason for a teardown cause.
func CloseCodeFor(cause TeardownCause) (int, string) {
	if cause == CauseNavigate {
		return CloseGoingAway, "Client navigating away"
	}
	return CloseNormal, "Client closed connection"
}

const (
	systemErrorText   = "⚠️ WebSocket error"
	systemClosedText  = "Connection closed by server"
	systemOfflineText = "⚠️ Not connected"
)

type Options struct {
	Protocol config.ProtocolConfig
	Features config.Features

	Renderer     Renderer
	PresenceView PresenceView
	Notifier     Notifier
	Diagnostics  DiagnosticsSink
	Extractor    eventcard.Extractor

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
	// NewID defaults to random UUIDs.
	NewID func() string
}

type Session struct {
	id      string
	opts    Options
	log     *zap.Logger
	decoder *protocol.Decoder

	// Loop-owned state.
	state     ConnState
	transport Transport
	pending   PendingLink
	presence  *Presence

	events chan event
	// quit releases blocked senders once the loop stops; done follows after
	// the queue has been drained.
	quit    chan struct{}
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

type event any

type (
	openedEvent struct{ transport Transport }
	frameEvent  struct{ raw []byte }
	errorEvent  struct{ err error }
	remoteClose struct {
		code   int
		reason string
	}
	sendEvent  struct{ text string }
	closeEvent struct{ cause TeardownCause }
)

func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	switch {
	case !opts.Features.EventCards:
		opts.Extractor = eventcard.Nop
	case opts.Extractor == nil:
		opts.Extractor = eventcard.Heuristic{}
	}

	s := &Session{
		id:      uuid.New().String(),
		opts:    opts,
		decoder: protocol.NewDecoder(protocol.ParseMode(opts.Protocol.Mode)),
		events:  make(chan event, 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.log = opts.Logger.With(zap.String("session", s.id))
	s.presence = NewPresence(s.presenceChanged)
	return s
}

func (s *Session) ID() string { return s.id }

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Opened hands the session a connected transport. It returns false when the
// session has already finished; the caller then still owns t.
func (s *Session) Opened(t Transport) bool { return s.enqueue(openedEvent{transport: t}) }

// HandleFrame queues one inbound frame. Frames are processed in call order.
func (s *Session) HandleFrame(raw []byte) {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	s.enqueue(frameEvent{raw: buf})
}

// HandleTransportError reports a connection fault, including a failed dial.
func (s *Session) HandleTransportError(err error) { s.enqueue(errorEvent{err: err}) }

// HandleRemoteClose reports that the server closed the connection cleanly.
func (s *Session) HandleRemoteClose(code int, reason string) {
	s.enqueue(remoteClose{code: code, reason: reason})
}

// Send queues user input for delivery. Blank input is rejected.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if !s.enqueue(sendEvent{text: text}) {
		return ErrClosed
	}
	return nil
}

// Close tears the session down.
func (s *Session) Close(cause TeardownCause) { s.enqueue(closeEvent{cause: cause}) }

func (s *Session) enqueue(ev event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-s.quit:
		return false
	}
}

// Run processes events until the connection is closed or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	defer s.stop()
	for {
		select {
		case <-ctx.Done():
			s.teardown(CauseExit)
			return ctx.Err()
		case ev := <-s.events:
			s.dispatch(ev)
			if s.state == Closed {
				return nil
			}
		}
	}
}

// stop refuses further events and closes any transport that was handed over
// but never picked up by the loop.
func (s *Session) stop() {
	close(s.quit)
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	for {
		select {
		case ev := <-s.events:
			if opened, ok := ev.(openedEvent); ok {
				code, reason := CloseCodeFor(CauseExit)
				_ = opened.transport.Close(code, reason)
			}
		default:
			close(s.done)
			return
		}
	}
}

func (s *Session) dispatch(ev event) {
	switch ev := ev.(type) {
	case openedEvent:
		s.handleOpened(ev.transport)
	case frameEvent:
		s.handleFrame(ev.raw)
	case errorEvent:
		s.handleTransportError(ev.err)
	case remoteClose:
		s.handleRemoteClose(ev.code, ev.reason)
	case sendEvent:
		s.handleSend(ev.text)
	case closeEvent:
		s.teardown(ev.cause)
	}
}

func (s *Session) handleOpened(t Transport) {
	if s.state != Connecting {
		code, reason := CloseCodeFor(CauseExit)
		_ = t.Close(code, reason)
		return
	}
	s.transport = t
	s.state = Open
	s.log.Info("WebSocket connected")
	s.diagInfo("WebSocket connected")
}

func (s *Session) handleFrame(raw []byte) {
	if s.state != Open {
		s.log.Debug("Dropping frame on inactive connection", zap.Stringer("state", s.state))
		return
	}

	decoded, err := s.decoder.Decode(raw)
	if err != nil {
		s.opts.Metrics.DecodeError("frame")
		s.reportError("Failed to parse WebSocket message", err)
		return
	}
	s.opts.Metrics.Frame(decoded.Kind.String())

	switch decoded.Kind {
	case protocol.KindToolResponse:
		s.handleToolResponse(decoded.ToolResponse)
	case protocol.KindText:
		s.handleText(decoded)
	default:
		s.log.Debug("Ignoring frame", zap.String("type", string(decoded.Type)))
	}
}

func (s *Session) handleToolResponse(content protocol.ToolResponseContent) {
	if !s.opts.Features.ToolResponses {
		return
	}
	text, ok := content.First()
	if !ok {
		return
	}
	payload, ok, err := protocol.UnwrapToolPayload(text)
	if err != nil {
		s.opts.Metrics.DecodeError("payload")
		s.reportError("Failed to parse tool response payload", err)
		return
	}
	if !ok {
		return
	}
	link, ok := payload.HTMLLink()
	if !ok {
		return
	}
	overwrote := s.pending.Deposit(link)
	s.opts.Metrics.LinkDeposited(overwrote)
	if overwrote {
		s.log.Debug("Replaced unconsumed calendar link", zap.String("link", link))
	}
}

func (s *Session) handleText(decoded protocol.Decoded) {
	if !decoded.Plain && decoded.Text.Sender != s.opts.Protocol.AssistantSender {
		s.log.Debug("Ignoring text from other sender", zap.String("sender", decoded.Text.Sender))
		return
	}

	s.presence.OnAssistantReply()
	if s.opts.Features.Sounds && s.opts.Notifier != nil {
		s.opts.Notifier.PlayReceive()
	}

	body := decoded.Text.Content
	turn := s.newTurn(SenderAssistant, s.opts.Protocol.AssistantName, body)
	turn.Body = body

	if link, ok := s.pending.ConsumeIfPresent(); ok {
		turn.Text = spliceLink(body, link)
		turn.EventLink = link
		s.opts.Metrics.LinkConsumed()
	}
	if card, ok := s.opts.Extractor.Extract(body); ok {
		turn.EventCard = &card
	}

	s.render(turn)
}

func (s *Session) handleTransportError(err error) {
	if s.state == Closed {
		return
	}
	s.state = Closed
	s.releaseTransport()
	s.presence.OnTransportError()
	s.opts.Metrics.TransportError()

	terr := &TransportError{Err: err}
	s.reportError("WebSocket error", terr)
	s.render(s.newTurn(SenderSystem, string(SenderSystem), systemErrorText))
}

func (s *Session) handleRemoteClose(code int, reason string) {
	if s.state == Closed {
		return
	}
	s.state = Closed
	s.transport = nil
	s.presence.OnTransportError()
	s.log.Info("Server closed connection", zap.Int("code", code), zap.String("reason", reason))
	s.diagInfo("WebSocket closed by server")
	s.render(s.newTurn(SenderSystem, string(SenderSystem), systemClosedText))
}

func (s *Session) handleSend(text string) {
	if s.state != Open {
		s.render(s.newTurn(SenderSystem, string(SenderSystem), systemOfflineText))
		return
	}

	s.diagInfo("User sent: " + text)
	s.render(s.newTurn(SenderUser, s.opts.Protocol.UserName, text))
	if s.opts.Features.Sounds && s.opts.Notifier != nil {
		s.opts.Notifier.PlaySend()
	}

	s.presence.OnUserSend()
	if err := s.transport.SendText(text); err != nil {
		s.handleTransportError(err)
	}
}

func (s *Session) teardown(cause TeardownCause) {
	prev := s.state
	s.state = Closed
	if prev != Open || s.transport == nil {
		return
	}
	code, reason := CloseCodeFor(cause)
	if err := s.transport.Close(code, reason); err != nil {
		s.log.Warn("Close failed", zap.Error(err))
	}
	s.transport = nil
	s.log.Info("Session closed", zap.Int("code", code), zap.String("reason", reason))
}

// releaseTransport drops a connection that has already failed. The close
// frame is best effort; it mostly frees the reader.
func (s *Session) releaseTransport() {
	if s.transport == nil {
		return
	}
	code, reason := CloseCodeFor(CauseExit)
	_ = s.transport.Close(code, reason)
	s.transport = nil
}

func (s *Session) newTurn(sender Sender, name, text string) ChatTurn {
	return ChatTurn{
		ID:          s.opts.NewID(),
		Sender:      sender,
		DisplayName: name,
		Text:        text,
		Timestamp:   s.opts.Now(),
	}
}

func (s *Session) render(turn ChatTurn) {
	s.opts.Metrics.Turn(string(turn.Sender), turn.EventCard != nil)
	if s.opts.Renderer != nil {
		s.opts.Renderer.RenderTurn(turn)
	}
}

func (s *Session) presenceChanged(state PresenceState) {
	waiting := state == Waiting
	s.opts.Metrics.SetWaiting(waiting)
	if s.opts.PresenceView != nil {
		s.opts.PresenceView.SetWaiting(waiting)
	}
}

func (s *Session) reportError(msg string, err error) {
	s.log.Warn(msg, zap.Error(err))
	s.diagError(msg + ": " + err.Error())
}

func (s *Session) diagInfo(msg string) {
	if s.opts.Diagnostics != nil {
		s.opts.Diagnostics.Info(msg)
	}
}

func (s *Session) diagError(msg string) {
	if s.opts.Diagnostics != nil {
		s.opts.Diagnostics.Error(msg)
	}
}
