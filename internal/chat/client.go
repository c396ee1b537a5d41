// Package chat connects a session to the WebSocket backend.
package chat

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bevie/chatclient/internal/config"
	"github.com/bevie/chatclient/internal/metrics"
	"github.com/bevie/chatclient/internal/session"
	"github.com/bevie/chatclient/internal/ws"
)

type Options struct {
	Config *config.Config

	Renderer     session.Renderer
	PresenceView session.PresenceView
	Notifier     session.Notifier
	Diagnostics  session.DiagnosticsSink

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// OnStatus receives short connection status lines for the UI.
	OnStatus func(status string)
	// UserAgent is sent on the upgrade request when set.
	UserAgent string
}

type Client struct {
	cfg      *config.Config
	sess     *session.Session
	conn     *ws.Client
	log      *zap.Logger
	onStatus func(string)
}

func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	cfg := opts.Config

	sess := session.New(session.Options{
		Protocol:     cfg.Protocol,
		Features:     cfg.Features,
		Renderer:     opts.Renderer,
		PresenceView: opts.PresenceView,
		Notifier:     opts.Notifier,
		Diagnostics:  opts.Diagnostics,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
	})

	conn := ws.NewClient(
		cfg.Server.WSURL,
		time.Duration(cfg.Server.DialTimeoutMs)*time.Millisecond,
		time.Duration(cfg.Server.WriteTimeoutMs)*time.Millisecond,
		opts.Logger,
	)
	conn.SetFrameHandler(sess.HandleFrame)
	conn.SetErrorHandler(sess.HandleTransportError)
	conn.SetCloseHandler(sess.HandleRemoteClose)
	if opts.UserAgent != "" {
		conn.SetHeader("User-Agent", opts.UserAgent)
	}

	c := &Client{
		cfg:      cfg,
		sess:     sess,
		conn:     conn,
		log:      opts.Logger.Named("chat").With(zap.String("session", sess.ID())),
		onStatus: opts.OnStatus,
	}
	conn.SetOnConnect(c.handleConnect)
	return c
}

// Send forwards user input to the session.
func (c *Client) Send(text string) error { return c.sess.Send(text) }

// Close ends the session, sending the close code that matches cause.
func (c *Client) Close(cause session.TeardownCause) { c.sess.Close(cause) }

// Done is closed when the session has ended.
func (c *Client) Done() <-chan struct{} { return c.sess.Done() }

// Run connects and blocks until the session ends. A cancelled ctx is a
// normal shutdown.
func (c *Client) Run(ctx context.Context) error {
	runErr := make(chan error, 1)
	go func() { runErr <- c.sess.Run(ctx) }()

	c.status("connecting...")
	if err := c.conn.Connect(ctx); err != nil {
		c.log.Warn("Connect failed", zap.String("url", c.cfg.Server.WSURL), zap.Error(err))
		c.sess.HandleTransportError(err)
	}

	err := <-runErr
	c.conn.Wait()
	c.status("disconnected")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) handleConnect() {
	if !c.sess.Opened(c.conn) {
		code, reason := session.CloseCodeFor(session.CauseExit)
		_ = c.conn.Close(code, reason)
		return
	}
	c.status("connected to " + c.cfg.Server.WSURL)
}

func (c *Client) status(s string) {
	if c.onStatus != nil {
		c.onStatus(s)
	}
}
