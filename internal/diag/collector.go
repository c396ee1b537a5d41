package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxLogBody = 64 * 1024

// Collector receives client log lines on POST /log and writes them to its
// own logger at the posted level. It also serves /metrics.
type Collector struct {
	listen   string
	log      *zap.Logger
	gatherer prometheus.Gatherer
	server   *http.Server
	addr     net.Addr
}

func NewCollector(listen string, logger *zap.Logger, gatherer prometheus.Gatherer) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		listen:   listen,
		log:      logger.Named("client"),
		gatherer: gatherer,
	}
}

func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/log", c.handleLog)
	if c.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
	}
	return withCORS(mux)
}

// Start binds the listen address and serves in the background until Stop.
func (c *Collector) Start() error {
	ln, err := net.Listen("tcp", c.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.listen, err)
	}
	c.addr = ln.Addr()
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	c.log.Info("Diagnostics collector listening", zap.Stringer("addr", c.addr))
	go func() {
		if err := c.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.log.Error("Diagnostics collector error", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once Start has succeeded.
func (c *Collector) Addr() net.Addr { return c.addr }

func (c *Collector) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

func (c *Collector) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxLogBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	var entry LogEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	switch normalizeLevel(entry.Level) {
	case "error":
		c.log.Error(entry.Message)
	case "warn":
		c.log.Warn(entry.Message)
	case "debug":
		c.log.Debug(entry.Message)
	default:
		c.log.Info(entry.Message)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// withCORS lets browser-hosted clients post log lines from any origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}
