package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/config"
	"github.com/c360studio/reportengine/gateway"
	"github.com/c360studio/reportengine/locker"
	"github.com/c360studio/reportengine/metrics"
)

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig applies the layered config and the --root override.
func (g *globalOptions) loadConfig(logger *slog.Logger) (*config.Config, error) {
	loader := config.NewLoader(logger)
	if g.root != "" {
		loader = loader.WithStartDir(g.root)
	}
	cfg, err := loader.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.root != "" {
		abs, err := filepath.Abs(g.root)
		if err != nil {
			return nil, fmt.Errorf("resolve root: %w", err)
		}
		cfg.Workspace.Root = abs
	}
	return cfg, nil
}

// caseApp wires the components of one case for a command.
type caseApp struct {
	cfg     *config.Config
	logger  *slog.Logger
	ws      *casefile.Workspace
	bundle  *casefile.Bundle
	locker  *locker.Locker
	metrics *metrics.Metrics
	gateway *gateway.Gateway
	nats    *nats.Conn

	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

// openCase loads the case bundle and locker. With a non-nil out the
// gateway is opened as well and its signals are printed to out.
func openCase(ctx context.Context, g *globalOptions, caseID string, out io.Writer) (*caseApp, error) {
	logger := newLogger(g.logLevel)
	slog.SetDefault(logger)

	cfg, err := g.loadConfig(logger)
	if err != nil {
		return nil, err
	}
	if err := casefile.ValidateCaseID(caseID); err != nil {
		return nil, err
	}

	ws := casefile.NewWorkspace(cfg.Workspace.Root)
	bundle, err := ws.Load(ctx, caseID)
	if err != nil {
		if errors.Is(err, casefile.ErrCaseNotFound) {
			return nil, fmt.Errorf("%w: %s (run '%s init %s' first)", err, caseID, appName, caseID)
		}
		return nil, err
	}

	l, err := locker.Open(ws, caseID, cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &caseApp{
		cfg:     cfg,
		logger:  logger,
		ws:      ws,
		bundle:  bundle,
		locker:  l,
		metrics: metrics.New(),
	}
	app.serveMetrics(ctx, g.metricsAddr)

	if out == nil {
		return app, nil
	}

	observers := []gateway.Observer{
		gateway.NewLogObserver(logger),
		gateway.NewMetricsObserver(app.metrics),
		signalPrinter(out),
	}
	if cfg.NATS.URL != "" {
		conn, err := gateway.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS mirror disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			app.nats = conn
			observers = append(observers, gateway.NewNATSObserver(conn, cfg.NATS.SubjectPrefix, logger))
		}
	}

	gw, err := gateway.New(ctx, gateway.Options{
		Workspace: ws,
		Bundle:    bundle,
		Locker:    l,
		Config:    cfg,
		Metrics:   app.metrics,
		Observers: observers,
		Logger:    logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.gateway = gw
	return app, nil
}

// serveMetrics starts the metrics endpoint when addr is set.
func (a *caseApp) serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.stopMetrics = cancel
	a.metricsDone = make(chan struct{})
	go func() {
		defer close(a.metricsDone)
		if err := metrics.Serve(ctx, addr, a.metrics, a.logger); err != nil {
			a.logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
}

// Close releases the locker, the NATS connection and the metrics server.
func (a *caseApp) Close() {
	if a.nats != nil {
		_ = a.nats.Drain()
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
		<-a.metricsDone
	}
	if err := a.locker.Close(); err != nil {
		a.logger.Warn("Failed to close locker", "error", err)
	}
}
