package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bevie/chatclient/internal/config"
	"github.com/bevie/chatclient/internal/eventcard"
	"github.com/bevie/chatclient/internal/metrics"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
	closed  bool
	code    int
	reason  string
}

func (f *fakeTransport) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.code = code
	f.reason = reason
	return nil
}

type recorder struct {
	mu       sync.Mutex
	turns    []ChatTurn
	waiting  []bool
	sends    int
	receives int
	infos    []string
	errors   []string
}

func (r *recorder) RenderTurn(turn ChatTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turn)
}

func (r *recorder) SetWaiting(waiting bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting = append(r.waiting, waiting)
}

func (r *recorder) PlaySend()    { r.mu.Lock(); r.sends++; r.mu.Unlock() }
func (r *recorder) PlayReceive() { r.mu.Lock(); r.receives++; r.mu.Unlock() }

func (r *recorder) Info(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, message)
}

func (r *recorder) Error(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
}

func (r *recorder) Turns() []ChatTurn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChatTurn(nil), r.turns...)
}

var allFeatures = config.Features{ToolResponses: true, Sounds: true, EventCards: true}

func newTestSession(t *testing.T, features config.Features) (*Session, *recorder, *fakeTransport) {
	t.Helper()
	rec := &recorder{}
	n := 0
	s := New(Options{
		Protocol: config.ProtocolConfig{
			Mode:            config.ModeJSON,
			AssistantSender: "AssistantAgent",
			AssistantName:   "Bevie",
			UserName:        "You",
		},
		Features:     features,
		Renderer:     rec,
		PresenceView: rec,
		Notifier:     rec,
		Diagnostics:  rec,
		Metrics:      metrics.New(prometheus.NewRegistry()),
		Now:          func() time.Time { return time.Date(2025, 1, 2, 15, 4, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return "turn-" + string(rune('0'+n))
		},
	})
	tr := &fakeTransport{}
	s.dispatch(openedEvent{transport: tr})
	require.Equal(t, Open, s.state)
	return s, rec, tr
}

const (
	toolFrameX = `{"type":"tool_response","content":{"tool_responses":[` +
		`{"content":"('{\\\"htmlLink\\\":\\\"https://x\\\"}', None)"}]}}`
	toolFrameY = `{"type":"tool_response","content":{"tool_responses":[` +
		`{"content":"('{\\\"htmlLink\\\":\\\"https://y\\\"}', None)"}]}}`
)

func textFrame(sender, body string) []byte {
	return []byte(`{"type":"text","content":{"sender":"` + sender + `","content":"` + body + `"}}`)
}

func TestSession_DecodeErrorKeepsSessionOpen(t *testing.T) {
	s, rec, _ := newTestSession(t, allFeatures)

	assert.NotPanics(t, func() {
		s.dispatch(frameEvent{raw: []byte("{not json")})
	})

	assert.Equal(t, Open, s.state)
	assert.Empty(t, rec.Turns())
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "Failed to parse WebSocket message")
}

func TestSession_LinkCarriedToNextReplyOnly(t *testing.T) {
	s, rec, _ := newTestSession(t, allFeatures)

	s.dispatch(frameEvent{raw: []byte(toolFrameX)})
	s.dispatch(frameEvent{raw: textFrame("AssistantAgent", "Done!")})
	s.dispatch(frameEvent{raw: textFrame("AssistantAgent", "Anything else?")})

	turns := rec.Turns()
	require.Len(t, turns, 2)

	first := turns[0]
	assert.Equal(t, SenderAssistant, first.Sender)
	assert.Equal(t, "Bevie", first.DisplayName)
	assert.True(t, strings.HasPrefix(first.Text, "Done!"))
	assert.Contains(t, first.Text, "https://x")
	assert.Equal(t, "https://x", first.EventLink)
	assert.Equal(t, "Done!", first.Body)

	second := turns[1]
	assert.Empty(t, second.EventLink)
	assert.Equal(t, "Anything else?", second.Text)
}

func TestSession_LatestLinkWins(t *testing.T) {
	s, rec, _ := newTestSession(t, allFeatures)

	s.dispatch(frameEvent{raw: []byte(toolFrameX)})
	s.dispatch(frameEvent{raw: []byte(toolFrameY)})
	s.dispatch(frameEvent{raw: textFrame("AssistantAgent", "Done!")})

	turns := rec.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "https://y", turns[0].EventLink)
	assert.NotContains(t, turns[0].Text, "https://x")
}

func TestSession_BadToolPayloadIsNotFatal(t *testing.T) {
	s, rec, _ := newTestSession(t, allFeatures)

	frame := `{"type":"tool_response","content":{"tool_responses":[{"content":"('oops', None)"}]}}`
	s.dispatch(frameEvent{raw: []byte(frame)})
	s.dispatch(frameEvent{raw: textFrame("AssistantAgent", "Done!")})

	assert.Equal(t, Open, s.state)
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "tool response payload")
	turns := rec.Turns()
	require.Len(t, turns, 1)
	assert.Empty(t, turns[0].EventLink)
}

func TestSession_EventCardFromPreLinkText(t *testing.T) {
	s, rec, _ := newTestSession(t, allFeatures)

	s.dispatch(frameEvent{raw: []byte(toolFrameX)})
	s.dispatch(frameEvent{raw: textFrame("AssistantAgent", "Sure, I'll schedule a meeting on Friday at 3pm.")})

	turns := rec.Turns()
	require.Len(t, turns, 1)
	require.NotNil(t, turns[0].EventCard)
	assert.Equal(t, eventcard.Event{Title: "Meeting", Date: "Friday", Time: "3pm"}, *turns[0].EventCard)
}

func TestSession_PresenceAcrossExchange(t *testing.T) {
	s, rec, tr := newTestSession(t, allFeatures)

	s.dispatch(sendEvent{text: "book lunch"})
	assert.Equal(t, Waiting, s.presence.State())
	assert.Equal(t, []string{"book lunch"}, tr.sent)

	s.dispatch(frameEvent{raw: textFrame("AssistantAgent", "Booked.")})
	assert.Equal(t, Idle, s.presence.State())

	assert.Equal(t, []bool{true, false}, rec.waiting)
	assert.Equal(t, 1, rec.sends)
	assert.Equal(t, 1, rec.receives)
	assert.Contains(t, rec.infos, "User sent: book lunch")

	turns := rec.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, SenderUser, turns[0].Sender)
	assert.Equal(t, "You", turns[0].DisplayName)
	assert.Equal(t, SenderAssistant, turns[1].Sender)
}

func TestSession_TransportErrorClearsPresence(t *testing.T) {
	s, rec, _ := newTestSession(t, allFeatures)

	s.dispatch(sendEvent{text: "hello"})
	require.Equal(t, Waiting, s.presence.State())

	s.dispatch(errorEvent{err: errors.New("connection reset")})

	assert.Equal(t, Idle, s.presence.State())
	assert.Equal(t, Closed, s.state)

	turns := rec.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, SenderSystem, turns[1].Sender)
	assert.Equal(t, systemErrorText, turns[1].Text)
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "connection reset")

	// A second fault on the same connection produces nothing new.
	s.dispatch(errorEvent{err: errors.New("again")})
	assert.Len(t, rec.Turns(), 2)
}

func TestSession_SendFailureIsTransportError(t *testing.T) {
	s, rec, tr := newTestSession(t, allFeatures)
	tr.sendErr = errors.New("broken pipe")

	s.dispatch(sendEvent{text: "hello"})

	assert.Equal(t, Idle, s.presence.State())
	assert.Equal(t, Closed, s.state)
	assert.True(t, tr.closed)
	turns := rec.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, SenderSystem, turns[1].Sender)
}

func TestSession_IgnoresOtherSenders(t *testing.T) {
	s, rec, _ := newTestSession(t, allFeatures)

	s.dispatch(sendEvent{text: "hi"})
	s.dispatch(frameEvent{raw: textFrame("user_proxy", "hi")})

	assert.Equal(t, Waiting, s.presence.State())
	assert.Len(t, rec.Turns(), 1)
}

func TestSession_FeaturesOff(t *testing.T) {
	s, rec, _ := newTestSession(t, config.Features{})

	s.dispatch(frameEvent{raw: []byte(toolFrameX)})
	s.dispatch(sendEvent{text: "hi"})
	s.dispatch(frameEvent{raw: textFrame("AssistantAgent", "Sure, I'll schedule a meeting on Friday at 3pm.")})

	turns := rec.Turns()
	require.Len(t, turns, 2)
	assert.Empty(t, turns[1].EventLink)
	assert.Nil(t, turns[1].EventCard)
	assert.Zero(t, rec.sends)
	assert.Zero(t, rec.receives)
}

func TestSession_PlainMode(t *testing.T) {
	rec := &recorder{}
	s := New(Options{
		Protocol: config.ProtocolConfig{Mode: config.ModePlain, AssistantSender: "AssistantAgent"},
		Renderer: rec,
	})
	s.dispatch(openedEvent{transport: &fakeTransport{}})
	s.dispatch(frameEvent{raw: []byte("hello there")})

	turns := rec.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "hello there", turns[0].Text)
}

func TestSession_SendRejectsBlank(t *testing.T) {
	s, _, _ := newTestSession(t, allFeatures)
	assert.ErrorIs(t, s.Send("   "), ErrEmptyMessage)
	assert.ErrorIs(t, s.Send(""), ErrEmptyMessage)
}

func TestSession_SendBeforeOpen(t *testing.T) {
	rec := &recorder{}
	s := New(Options{Renderer: rec, PresenceView: rec})

	s.dispatch(sendEvent{text: "hi"})

	assert.Equal(t, Idle, s.presence.State())
	turns := rec.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, SenderSystem, turns[0].Sender)
}

func TestSession_FramesDroppedAfterClose(t *testing.T) {
	s, rec, tr := newTestSession(t, allFeatures)

	s.dispatch(closeEvent{cause: CauseExit})
	s.dispatch(frameEvent{raw: textFrame("AssistantAgent", "late")})

	assert.Empty(t, rec.Turns())
	assert.True(t, tr.closed)
	assert.Equal(t, CloseNormal, tr.code)
}

func TestSession_OpenedAfterCloseClosesTransport(t *testing.T) {
	s := New(Options{})
	s.dispatch(closeEvent{cause: CauseExit})

	tr := &fakeTransport{}
	s.dispatch(openedEvent{transport: tr})
	assert.True(t, tr.closed)
	assert.Equal(t, Closed, s.state)
}

func TestCloseCodeFor(t *testing.T) {
	code, reason := CloseCodeFor(CauseNavigate)
	assert.Equal(t, 1001, code)
	assert.Equal(t, "Client navigating away", reason)

	code, reason = CloseCodeFor(CauseExit)
	assert.Equal(t, 1000, code)
	assert.Equal(t, "Client closed connection", reason)
}

func TestSession_RemoteClose(t *testing.T) {
	s, rec, _ := newTestSession(t, allFeatures)
	s.dispatch(sendEvent{text: "hi"})

	s.dispatch(remoteClose{code: 1000, reason: "bye"})

	assert.Equal(t, Closed, s.state)
	assert.Equal(t, Idle, s.presence.State())
	turns := rec.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, systemClosedText, turns[1].Text)
}

func TestTransportError_Unwraps(t *testing.T) {
	cause := errors.New("eof")
	err := error(&TransportError{Err: cause})

	var terr *TransportError
	assert.True(t, errors.As(err, &terr))
	assert.ErrorIs(t, err, cause)
}

func TestSession_RunLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	s := New(Options{
		Protocol: config.ProtocolConfig{AssistantSender: "AssistantAgent", AssistantName: "Bevie"},
		Features: allFeatures,
		Renderer: rec,
	})
	tr := &fakeTransport{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.True(t, s.Opened(tr))
	s.HandleFrame([]byte(toolFrameX))
	s.HandleFrame(textFrame("AssistantAgent", "Done!"))
	require.NoError(t, s.Send("thanks"))
	s.Close(CauseNavigate)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session loop did not stop")
	}

	turns := rec.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "https://x", turns[0].EventLink)
	assert.Equal(t, SenderUser, turns[1].Sender)
	assert.Equal(t, []string{"thanks"}, tr.sent)
	assert.Equal(t, CloseGoingAway, tr.code)

	assert.ErrorIs(t, s.Send("after"), ErrClosed)
	assert.False(t, s.Opened(&fakeTransport{}))
}

func TestSession_CancelledBeforeOpenClosesQueuedTransport(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := New(Options{})
		tr := &fakeTransport{}
		require.True(t, s.Opened(tr))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, s.Run(ctx), context.Canceled)

		tr.mu.Lock()
		closed, code := tr.closed, tr.code
		tr.mu.Unlock()
		require.True(t, closed, "run %d left the transport open", i)
		assert.Equal(t, CloseNormal, code)
		assert.False(t, s.Opened(&fakeTransport{}))
	}
}

func TestSession_RunStopsOnContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	s := New(Options{Diagnostics: rec})
	tr := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.True(t, s.Opened(tr))
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.infos) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("session loop did not stop")
	}
	<-s.Done()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.True(t, tr.closed)
	assert.Equal(t, CloseNormal, tr.code)
}

func TestSession_ID(t *testing.T) {
	a, b := New(Options{}), New(Options{})
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
