package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bevie/chatclient/internal/chat"
	"github.com/bevie/chatclient/internal/diag"
	"github.com/bevie/chatclient/internal/metrics"
	"github.com/bevie/chatclient/internal/notify"
	"github.com/bevie/chatclient/internal/session"
	"github.com/bevie/chatclient/internal/theme"
	"github.com/bevie/chatclient/internal/tui"
)

const diagnosticsSpoolMax = 1000

func runChat(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var sink session.DiagnosticsSink = nopSink{}
	if !cfg.Diagnostics.Disabled {
		client := diag.NewClient(cfg.Diagnostics.URL, time.Duration(cfg.Diagnostics.TimeoutMs)*time.Millisecond, logger)
		client.SetMetrics(m)
		spool, err := diag.NewSpool(cfg.Storage.StateDir, diagnosticsSpoolMax)
		if err != nil {
			logger.Warn("Diagnostics spool unavailable", zap.Error(err))
		} else {
			client.SetSpool(spool)
			defer spool.Close()
		}
		defer client.Close()
		sink = client
	}

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	themes := theme.NewStore(cfg.Storage.StateDir, logger)
	current, err := themes.Load()
	if err != nil {
		logger.Warn("Failed to load theme preference", zap.Error(err))
	}

	bridge := tui.NewBridge()
	defer bridge.Close()

	var notifier session.Notifier = notify.Silent{}
	if cfg.Features.Sounds {
		notifier = notify.NewBell(os.Stderr)
	}

	client := chat.New(chat.Options{
		Config:       cfg,
		Renderer:     bridge,
		PresenceView: bridge,
		Notifier:     notifier,
		Diagnostics:  sink,
		Logger:       logger,
		Metrics:      m,
		OnStatus:     bridge.SetStatus,
		UserAgent:    "bevie/" + Version,
	})

	go func() {
		if err := themes.Watch(ctx, bridge.SetTheme); err != nil {
			logger.Warn("Theme watch stopped", zap.Error(err))
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	program := tea.NewProgram(tui.New(tui.Options{
		AssistantName: cfg.Protocol.AssistantName,
		Bridge:        bridge,
		Themes:        themes,
		Theme:         current,
		Send:          client.Send,
		Logger:        logger,
	}), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithoutSignalHandler())

	// A signal means the terminal or its owner is going away, which closes
	// with 1001. Quitting from the UI is an ordinary close.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received signal", zap.String("signal", sig.String()))
			client.Close(session.CauseNavigate)
			program.Quit()
		case <-ctx.Done():
		}
	}()

	_, uiErr := program.Run()
	bridge.Close()
	client.Close(session.CauseExit)

	select {
	case err = <-runErr:
	case <-time.After(5 * time.Second):
		logger.Warn("Session did not stop in time")
		cancel()
		err = <-runErr
	}
	if uiErr != nil {
		return fmt.Errorf("terminal UI failed: %w", uiErr)
	}
	return err
}

func runCollector(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	collector := diag.NewCollector(cfg.Collector.Listen, logger, reg)
	if err := collector.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return collector.Stop(shutdownCtx)
}

type nopSink struct{}

func (nopSink) Info(string)  {}
func (nopSink) Error(string) {}
