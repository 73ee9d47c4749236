package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ScruffR/uCamIII/internal/config"
	"github.com/ScruffR/uCamIII/internal/ledger"
	"github.com/ScruffR/uCamIII/internal/metrics"
	"github.com/ScruffR/uCamIII/internal/sequence"
	"github.com/ScruffR/uCamIII/internal/server"
	"github.com/ScruffR/uCamIII/internal/stream"
)

const (
	serviceName    = "ucam-receiver"
	serviceVersion = "1.0.0"
)

func main() {
	// An empty path runs on built-in defaults
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("data_port", config.DataPort),
		slog.String("output_dir", config.OutputDir),
		slog.String("bind_address", cfg.Receiver.BindAddress),
		slog.String("wire_encoding", cfg.Receiver.WireEncoding),
		slog.Int("idle_timeout", cfg.Receiver.IdleTimeout),
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.Bool("postgres_enabled", cfg.Ledger.Postgres.Enabled),
		slog.Bool("pubsub_enabled", cfg.Ledger.PubSub.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	recorder, closeLedger, err := initLedger(ctx, cfg.Ledger, logger)
	if err != nil {
		logger.Error("Failed to initialize transfer ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeLedger()

	allocator := sequence.NewAllocator(config.OutputDir)
	streamMgr, err := stream.NewManager(logger, allocator, appMetrics, stream.ManagerConfig{
		WireEncoding:  cfg.Receiver.WireEncoding,
		Recorder:      recorder,
		RecordTimeout: cfg.Ledger.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create stream manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Stream manager initialized", slog.String("output_dir", allocator.Dir()))

	dataAddr := fmt.Sprintf("%s:%d", cfg.Receiver.BindAddress, config.DataPort)
	tcpServer := server.NewTCPServer(dataAddr, &cfg.Receiver, logger, streamMgr, appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, streamMgr, tcpServer, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// A bind failure on the data port is fatal
	if err := tcpServer.Start(); err != nil {
		logger.Error("Failed to start TCP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("data_address", dataAddr),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Closes open connections; their files keep whatever arrived
	if err := tcpServer.Stop(); err != nil {
		logger.Error("Error stopping TCP server", slog.String("error", err.Error()))
	}

	streamMgr.Stop()

	stats := streamMgr.GetStats()
	logger.Info("Final transfer statistics",
		slog.Uint64("opened", stats.Opened),
		slog.Uint64("completed", stats.Completed),
		slog.Uint64("aborted", stats.Aborted),
		slog.Uint64("failed", stats.Failed),
		slog.Int("sequence_cursor", stats.SequenceCursor),
	)

	logger.Info("Service stopped")
}

// initLedger connects the configured transfer sinks. The returned func
// releases them and is safe to call when nothing was enabled.
func initLedger(ctx context.Context, cfg config.LedgerConfig, logger *slog.Logger) (ledger.Recorder, func(), error) {
	var recorders ledger.Multi
	var closers []func()

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Postgres.Enabled {
		pool, err := ledger.NewDB(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, func() {}, fmt.Errorf("postgres connect: %w", err)
		}
		closers = append(closers, pool.Close)

		if err := ledger.EnsureSchema(ctx, pool); err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("postgres schema: %w", err)
		}

		recorders = append(recorders, ledger.NewPostgres(pool))
		logger.Info("Postgres transfer ledger enabled")
	}

	if cfg.PubSub.Enabled {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("pubsub client: %w", err)
		}
		closers = append(closers, func() { client.Close() })

		publisher := ledger.NewPubSub(client.Topic(cfg.PubSub.TopicID))
		closers = append(closers, publisher.Stop)

		recorders = append(recorders, publisher)
		logger.Info("Pub/Sub transfer notifications enabled",
			slog.String("project_id", cfg.PubSub.ProjectID),
			slog.String("topic_id", cfg.PubSub.TopicID),
		)
	}

	if len(recorders) == 0 {
		return ledger.Noop{}, closeAll, nil
	}
	return recorders, closeAll, nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
