package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bevie/chatclient/internal/metrics"
)

// Client posts one request per log line without blocking the caller.
// Failed deliveries go to the local log and, when set, the spool.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
	spool   *Spool
	log     *zap.Logger
	metrics *metrics.Metrics

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:     url,
		timeout: timeout,
		http:    &http.Client{},
		log:     logger.Named("diag"),
	}
}

func (c *Client) SetSpool(s *Spool) {
	c.spool = s
}

func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

func (c *Client) Info(message string) { c.Log(LevelInfo, message) }

func (c *Client) Error(message string) { c.Log(LevelError, message) }

// Log ships message in the background.
func (c *Client) Log(level, message string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.fallback(LogEntry{Message: message, Level: level}, "client closed")
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		entry := LogEntry{Message: message, Level: level}
		if err := c.post(entry); err != nil {
			c.fallback(entry, err.Error())
			return
		}
		c.metrics.Diagnostic(level, "delivered")
	}()
}

func (c *Client) post(entry LogEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to log to server: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	return nil
}

func (c *Client) fallback(entry LogEntry, reason string) {
	c.metrics.Diagnostic(entry.Level, "dropped")
	c.log.Debug("Diagnostic not delivered",
		zap.String("level", entry.Level),
		zap.String("message", entry.Message),
		zap.String("reason", reason))

	if c.spool == nil {
		return
	}
	if err := c.spool.Push(SpoolEntry{
		Time:    time.Now().UTC(),
		Level:   entry.Level,
		Message: entry.Message,
		Reason:  reason,
	}); err != nil {
		c.log.Warn("Failed to write diagnostics fallback", zap.Error(err))
	}
}

// Close waits for in-flight deliveries. Later log lines go straight to the
// fallback.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}
