package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type FrameHandler func(data []byte)

type ErrorHandler func(err error)

type CloseHandler func(code int, reason string)

type ConnectHandler func()

var ErrNotConnected = errors.New("not connected")

type Client struct {
	url          string
	header       http.Header
	dialTimeout  time.Duration
	writeTimeout time.Duration
	log          *zap.Logger

	conn *websocket.Conn
	mu   sync.Mutex

	onFrame   FrameHandler
	onError   ErrorHandler
	onClose   CloseHandler
	onConnect ConnectHandler

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewClient(url string, dialTimeout, writeTimeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:          url,
		header:       http.Header{},
		dialTimeout:  dialTimeout,
		writeTimeout: writeTimeout,
		log:          logger.Named("ws"),
		done:         make(chan struct{}),
	}
}

func (c *Client) SetFrameHandler(handler FrameHandler) {
	c.onFrame = handler
}

func (c *Client) SetErrorHandler(handler ErrorHandler) {
	c.onError = handler
}

func (c *Client) SetCloseHandler(handler CloseHandler) {
	c.onClose = handler
}

// SetOnConnect registers a hook that runs once the connection is up and
// before any frame is delivered.
func (c *Client) SetOnConnect(handler ConnectHandler) {
	c.onConnect = handler
}

// SetHeader adds a header to the upgrade request.
func (c *Client) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// Connect dials the server and starts delivering frames to the handlers.
func (c *Client) Connect(ctx context.Context) error {
	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.dialTimeout)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Debug("Connected", zap.String("url", c.url))

	if c.onConnect != nil {
		c.onConnect()
	}

	c.wg.Add(1)
	go c.reader(conn)
	return nil
}

func (c *Client) reader(conn *websocket.Conn) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			_ = conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) &&
				(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
				c.log.Debug("Server closed connection", zap.Int("code", closeErr.Code))
				if c.onClose != nil {
					c.onClose(closeErr.Code, closeErr.Text)
				}
				return
			}

			c.log.Debug("Read error", zap.Error(err))
			if c.onError != nil {
				c.onError(err)
			}
			return
		}

		if c.onFrame != nil {
			c.onFrame(message)
		}
	}
}

// SendText writes one text frame. It does not wait for any reply.
func (c *Client) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close sends a close frame with code and reason and drops the connection.
// Handlers are not called for the resulting read error.
func (c *Client) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(time.Second)
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			err = fmt.Errorf("failed to send close frame: %w", werr)
		}
		_ = c.conn.Close()
		c.conn = nil
	})
	return err
}

// Wait blocks until the reader goroutine has exited.
func (c *Client) Wait() {
	c.wg.Wait()
}
